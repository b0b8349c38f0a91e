// Package mp holds the pure wallet balance arithmetic. It performs no I/O;
// the ledger service reads the stored wallet, runs these functions, and
// persists the result inside its own transaction.
package mp

import (
	"errors"

	"mp_ledger/internal/domain"
	"mp_ledger/internal/leveling"
)

// Balance arithmetic errors
var (
	ErrInsufficient = errors.New("insufficient MP balance") // Spend exceeds free+paid
	ErrCapExceeded  = errors.New("wallet cap exceeded")     // Grant would breach the level cap
)

// Wallet is the in-memory view the arithmetic operates on
type Wallet struct {
	Free  int64 // Free MP bucket
	Paid  int64 // Paid MP bucket
	Level int   // Owner's level, determines the cap
}

// Total returns free+paid
func (w Wallet) Total() int64 {
	return w.Free + w.Paid
}

// Cap returns the wallet capacity at the owner's level
func (w Wallet) Cap() int64 {
	return leveling.WalletCap(w.Level)
}

// Spend consumes MP in user-favorable order: free first, then paid.
// Returns the updated wallet and the exact split consumed from each bucket;
// the split governs how the stored columns are decremented even though spend
// ledger entries record only the net amount.
func Spend(w Wallet, amount int64) (Wallet, int64, int64, error) {
	if amount > w.Total() {
		return w, 0, 0, ErrInsufficient
	}
	spentFree := min(w.Free, amount)
	spentPaid := amount - spentFree
	w.Free -= spentFree
	w.Paid -= spentPaid
	return w, spentFree, spentPaid, nil
}

// CanInject reports whether adding amount stays within the wallet cap
func CanInject(w Wallet, amount int64) bool {
	return w.Total()+amount <= w.Cap()
}

// Grant adds amount to exactly one bucket, enforcing the cap invariant
func Grant(w Wallet, kind string, amount int64) (Wallet, error) {
	if !CanInject(w, amount) {
		return w, ErrCapExceeded
	}
	if kind == domain.MPKindFree {
		w.Free += amount
	} else {
		w.Paid += amount
	}
	return w, nil
}

// SuggestPacks computes the shortfall against required and how many grant
// packs of packSize cover it. Advisory only; used by the dry-run path.
func SuggestPacks(required, balance, packSize int64) (need, packs int64) {
	need = max(required-balance, 0)
	packs = (need + packSize - 1) / packSize
	return need, packs
}
