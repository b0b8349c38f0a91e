package domain

// XP conversion kinds for spends
const (
	XPKindArticle = "article" // 1 XP per MP
	XPKindMarket  = "market"  // 1.5 XP per MP, rounded half up
)

// Spend reference types
const (
	RefTypePost    = "post"    // Article unlock
	RefTypeProduct = "product" // Market product purchase
)

// PostUnlock Model — records that a user unlocked an article
type PostUnlock struct {
	ID         uint   `gorm:"primaryKey"`                          // Primary key
	UserID     string `gorm:"uniqueIndex:ux_post_unlock;size:64"`  // Foreign key to User
	PostID     string `gorm:"uniqueIndex:ux_post_unlock;size:191"` // Unlocked article slug
	UnlockedAt int64  `gorm:"autoCreateTime:milli"`                // Timestamp in milliseconds
	Method     string `gorm:"not null;default:mp"`                 // How the unlock was paid for
}

// Purchase Model — records that a user bought a market product
type Purchase struct {
	ID        uint   `gorm:"primaryKey"`                       // Primary key
	UserID    string `gorm:"uniqueIndex:ux_purchase;size:64"`  // Foreign key to User
	ProductID string `gorm:"uniqueIndex:ux_purchase;size:191"` // Purchased product
	CreatedAt int64  `gorm:"autoCreateTime:milli"`             // Timestamp in milliseconds
}

// Product Model — catalog entry for a downloadable market item
type Product struct {
	ID       string `gorm:"primaryKey;size:191"` // Product identifier
	Name     string // Display name
	PriceMP  int64  // Price in MP
	AssetKey string // Object-storage key of the downloadable asset
}

// DownloadToken Model — single-use, time-limited grant to fetch one asset
type DownloadToken struct {
	Token     string `gorm:"primaryKey;size:36"` // UUID handed to the buyer
	UserID    string `gorm:"index;size:64"`      // Foreign key to User
	ProductID string `gorm:"size:191"`           // Product the token belongs to
	AssetKey  string // Object-storage key captured at issue time
	ExpiresAt int64  `gorm:"not null"` // Expiry timestamp in milliseconds
	UsedAt    *int64 // Set on first redemption; nil while unused
}
