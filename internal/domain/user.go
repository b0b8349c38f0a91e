package domain

// Membership states for a profile
const (
	MembershipActive = "ACTIVE" // Paying member
	MembershipNone   = "NONE"   // No active membership
)

// User Model
type User struct {
	ID        string `gorm:"primaryKey;size:64"` // Opaque identity key, provisioned on first touch
	Email     string // Contact email recorded at provisioning
	CreatedAt int64  `gorm:"autoCreateTime:milli"` // Timestamp of creation in milliseconds
}

// Profile Model
type Profile struct {
	UserID     string `gorm:"primaryKey;size:64"`    // Foreign key to User
	Membership string `gorm:"not null;default:NONE"` // Membership: ACTIVE or NONE
	Level      int    `gorm:"not null;default:1"`    // Level in [1,100]
	CurrentXP  int64  `gorm:"not null;default:0"`    // XP toward the next level; 0 at level 100
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli"`  // Timestamp of last update in milliseconds
}
