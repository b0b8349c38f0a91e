package domain

// Ledger entry kinds
const (
	LedgerKindGrant = "grant" // MP injected into a bucket
	LedgerKindSpend = "spend" // MP consumed across buckets
)

// LedgerEntry Model — append-only, never updated or deleted once written
type LedgerEntry struct {
	ID           string `gorm:"primaryKey;size:36"` // UUID
	UserID       string `gorm:"index;size:64"`      // Foreign key to User
	Kind         string `gorm:"not null"`           // Entry kind: grant or spend
	MPKind       string // Bucket for grants (free/paid); empty for spends
	Amount       int64  `gorm:"not null"` // Signed: positive for grant, negative for spend
	BalanceAfter int64  `gorm:"not null"` // Total free+paid after the entry
	RefType      string // What the entry relates to (post, product, system)
	RefID        string // Identifier within RefType
	CreatedAt    int64  `gorm:"autoCreateTime:milli"` // Timestamp of creation in milliseconds
}
