// Package leveling holds the pure XP and level math. All formulas are integer
// arithmetic so half-cases round the same way on every platform.
package leveling

// LevelMax is the highest reachable level
const LevelMax = 100

// RequiredXP returns the XP needed to go from level L to L+1.
// round_half_up((9L^2 + 9L + 3) / 10) expressed in integers.
func RequiredXP(level int) int64 {
	l := int64(level)
	return (9*l*l + 9*l + 3 + 5) / 10 // +5 before /10 gives round half up
}

// WalletCap returns the maximum free+paid MP a user may hold at a level
func WalletCap(level int) int64 {
	return int64(level) * 1000
}

// XPFromArticle converts MP spent on an article unlock to XP (1:1)
func XPFromArticle(spentMP int64) int64 {
	return spentMP
}

// XPFromMarket converts MP spent on a market purchase to XP.
// round_half_up(1.5 * mp) expressed in integers: floor((3*mp + 1) / 2).
func XPFromMarket(spentMP int64) int64 {
	return (3*spentMP + 1) / 2
}

// Award is the result of applying XP to a level state
type Award struct {
	Level     int   // New level in [1,100]
	CurrentXP int64 // XP toward the next level; 0 at level 100
	Added     int64 // XP actually credited (0 when already at the cap)
}

// AwardXP adds baseXp to a level state and cascades level-ups until the
// remaining XP no longer covers the next threshold or the level cap is hit.
// XP beyond level 100 is discarded, never carried or refunded.
func AwardXP(level int, currentXp, baseXp int64) Award {
	if level >= LevelMax {
		return Award{Level: LevelMax, CurrentXP: 0, Added: 0}
	}
	xp := currentXp + baseXp
	// Cascade: one award may cross several levels
	for level < LevelMax && xp >= RequiredXP(level) {
		xp -= RequiredXP(level)
		level++
	}
	if level >= LevelMax {
		level = LevelMax
		xp = 0
	}
	return Award{Level: level, CurrentXP: xp, Added: baseXp}
}
