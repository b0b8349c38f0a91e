package db

import (
	"mp_ledger/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Models lists every table the service owns, in migration order
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Profile{},
		&domain.Wallet{},
		&domain.LedgerEntry{},
		&domain.IdempotencyKey{},
		&domain.PendingTransaction{},
		&domain.AuditLog{},
		&domain.PostUnlock{},
		&domain.Purchase{},
		&domain.Product{},
		&domain.DownloadToken{},
	}
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(Models()...); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}
