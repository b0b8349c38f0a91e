package domain

// PendingTransaction Model — an open purchase obligation awaiting payment
// confirmation; deleted when the matching spend is finalized
type PendingTransaction struct {
	ID            uint    `gorm:"primaryKey"`           // Primary key
	PaymentIntent *string `gorm:"uniqueIndex;size:191"` // Payment-provider intent, attached once known
	SessionID     *string `gorm:"uniqueIndex;size:191"` // Checkout session that started the purchase
	UserID        string  `gorm:"index;size:64"`        // Foreign key to User
	Cost          int64   `gorm:"not null"`             // MP to spend on finalize
	RefType       string  `gorm:"not null"`             // Unlock target type (post, product)
	RefID         string  `gorm:"not null"`             // Unlock target identifier
	XPKind        string  `gorm:"not null"`             // XP conversion to apply (article, market)
	CreatedAt     int64   `gorm:"autoCreateTime:milli"` // Timestamp of creation in milliseconds
}
