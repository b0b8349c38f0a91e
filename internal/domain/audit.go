package domain

// AuditLog Model — write-only event trail, broader than the MP ledger
// (covers non-monetary events like membership changes)
type AuditLog struct {
	ID     uint   `gorm:"primaryKey"`    // Primary key
	UserID string `gorm:"index;size:64"` // Foreign key to User
	Action string `gorm:"not null"`      // Event name (grant, spend, set_membership, ...)
	Meta   string // JSON-encoded event details
	TS     int64  `gorm:"autoCreateTime:milli"` // Timestamp in milliseconds
}
