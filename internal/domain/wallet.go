package domain

// MP bucket kinds
const (
	MPKindFree = "free" // Granted MP (membership, promotions)
	MPKindPaid = "paid" // Purchased MP
)

// Wallet Model
type Wallet struct {
	UserID string `gorm:"primaryKey;size:64"` // Foreign key to User
	Free   int64  `gorm:"not null;default:0"` // Free MP balance
	Paid   int64  `gorm:"not null;default:0"` // Paid MP balance
}
