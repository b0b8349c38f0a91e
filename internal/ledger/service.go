// Package ledger is the transaction orchestrator: every MP balance mutation
// goes through here, serialized per user and committed atomically together
// with its ledger entry, audit entry and unlock side effects.
package ledger

import (
	"encoding/json"
	"errors"
	"time"

	"mp_ledger/internal/domain"
	"mp_ledger/internal/leveling"
	"mp_ledger/internal/mp"

	"github.com/google/uuid" // Ledger entry IDs and download tokens
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config carries the tunables the orchestrator needs
type Config struct {
	EtherGrantMP     int64         // MP granted per purchasable pack
	EtherPriceCents  int64         // Price of one pack in cents
	DownloadTokenTTL time.Duration // Lifetime of issued download tokens
}

// Service owns Wallet and Profile rows; no other component writes them
type Service struct {
	db    *gorm.DB    // Persistent store (transactions + unique constraints required)
	cfg   Config      // Orchestrator tunables
	users *keyedMutex // Per-user serialization boundary
}

// New builds a Service over the given store
func New(db *gorm.DB, cfg Config) *Service {
	return &Service{db: db, cfg: cfg, users: newKeyedMutex()}
}

// WalletSnapshot is the read view returned after operations
type WalletSnapshot struct {
	Free       int64  `json:"free"`       // Free MP balance
	Paid       int64  `json:"paid"`       // Paid MP balance
	Total      int64  `json:"total"`      // free+paid
	Cap        int64  `json:"cap"`        // Wallet capacity at the current level
	Level      int    `json:"level"`      // Current level
	CurrentXP  int64  `json:"current_xp"` // XP toward the next level
	Membership string `json:"membership"` // ACTIVE or NONE
}

// GrantResult is the outcome of a Grant call
type GrantResult struct {
	Idempotent bool           `json:"idempotent"` // True when the key was already claimed and nothing moved
	Wallet     WalletSnapshot `json:"wallet"`     // Snapshot after (or as of) the call
}

// SpendResult is the outcome of a Spend or Finalize call
type SpendResult struct {
	UserID        string         `json:"-"`                        // Whose wallet moved (finalize resolves it from the pending row)
	Wallet        WalletSnapshot `json:"wallet"`                   // Snapshot after the spend
	XPAdded       int64          `json:"xp_added"`                 // XP credited by this spend
	DownloadToken string         `json:"download_token,omitempty"` // Set for product purchases
}

// ensure lazily provisions the user, profile and wallet rows on first touch.
// Insert-or-ignore semantics: existing rows are left untouched.
func (s *Service) ensure(tx *gorm.DB, userID string) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.User{ID: userID}).Error; err != nil {
		return err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Profile{UserID: userID, Membership: domain.MembershipNone, Level: 1}).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Wallet{UserID: userID}).Error
}

// load reads the wallet and profile rows for a user
func (s *Service) load(tx *gorm.DB, userID string) (domain.Wallet, domain.Profile, error) {
	var w domain.Wallet
	var p domain.Profile
	if err := tx.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return w, p, err
	}
	if err := tx.Where("user_id = ?", userID).First(&p).Error; err != nil {
		return w, p, err
	}
	return w, p, nil
}

// snapshot builds the read view from freshly loaded rows
func (s *Service) snapshot(tx *gorm.DB, userID string) (WalletSnapshot, error) {
	w, p, err := s.load(tx, userID)
	if err != nil {
		return WalletSnapshot{}, err
	}
	return WalletSnapshot{
		Free:       w.Free,
		Paid:       w.Paid,
		Total:      w.Free + w.Paid,
		Cap:        leveling.WalletCap(p.Level),
		Level:      p.Level,
		CurrentXP:  p.CurrentXP,
		Membership: p.Membership,
	}, nil
}

// audit appends a write-only audit trail entry inside the current transaction
func (s *Service) audit(tx *gorm.DB, userID, action string, meta any) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return tx.Create(&domain.AuditLog{UserID: userID, Action: action, Meta: string(b)}).Error
}

// Grant injects MP into one bucket. When idempotencyKey is set and already
// claimed (payment-provider webhook redelivery), nothing moves and the result
// carries Idempotent=true. Claiming happens inside the same transaction as the
// mutation so a failed grant releases the key for the retry.
func (s *Service) Grant(userID, kind string, amount int64, idempotencyKey string) (GrantResult, error) {
	if userID == "" || amount <= 0 || (kind != domain.MPKindFree && kind != domain.MPKindPaid) {
		return GrantResult{}, ErrBadRequest
	}
	unlock := s.users.lock(userID)
	defer unlock()

	var out GrantResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			err := tx.Create(&domain.IdempotencyKey{Key: idempotencyKey}).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				out.Idempotent = true // Already handled; skip re-mutation
				return nil
			}
			if err != nil {
				return err
			}
		}
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		w, p, err := s.load(tx, userID)
		if err != nil {
			return err
		}
		// Capacity check against the level-scaled cap
		bal := mp.Wallet{Free: w.Free, Paid: w.Paid, Level: p.Level}
		if _, err := mp.Grant(bal, kind, amount); err != nil {
			return err // mp.ErrCapExceeded rolls back the key claim too
		}
		// Atomic bucket increment
		column := "paid"
		if kind == domain.MPKindFree {
			column = "free"
		}
		if err := tx.Model(&domain.Wallet{}).Where("user_id = ?", userID).
			Update(column, gorm.Expr(column+" + ?", amount)).Error; err != nil {
			return err
		}
		// Append the immutable ledger entry
		entry := domain.LedgerEntry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Kind:         domain.LedgerKindGrant,
			MPKind:       kind,
			Amount:       amount,
			BalanceAfter: bal.Total() + amount,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if err := s.audit(tx, userID, "grant", map[string]any{"kind": kind, "amount": amount, "idempotency_key": idempotencyKey}); err != nil {
			return err
		}
		out.Wallet, err = s.snapshot(tx, userID)
		return err
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "kind": kind, "amount": amount, "error": err.Error()}).Error("Grant failed")
		return GrantResult{}, wrapTxErr(err)
	}
	if out.Idempotent {
		// Replay: report the current state without having touched it
		snap, err := s.currentSnapshot(userID)
		if err != nil {
			return GrantResult{}, wrapTxErr(err)
		}
		out.Wallet = snap
	}
	return out, nil
}

// Spend consumes MP free-first, appends the ledger entry, applies the unlock
// side effect for refType, awards XP and updates the profile — all in one
// atomic unit. Any step failing rolls the whole sequence back.
func (s *Service) Spend(userID string, amount int64, refType, refID, xpKind string) (SpendResult, error) {
	if userID == "" || amount <= 0 {
		return SpendResult{}, ErrBadRequest // A zero-cost spend would still unlock content
	}
	unlock := s.users.lock(userID)
	defer unlock()

	var out SpendResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		res, err := s.applySpend(tx, userID, amount, refType, refID, xpKind)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "amount": amount, "ref_type": refType, "ref_id": refID, "error": err.Error()}).Error("Spend failed")
		return SpendResult{}, wrapTxErr(err)
	}
	return out, nil
}

// applySpend is the shared spend sequence used by Spend and FinalizePendingTx.
// Caller must hold the user lock and run it inside a transaction.
func (s *Service) applySpend(tx *gorm.DB, userID string, amount int64, refType, refID, xpKind string) (SpendResult, error) {
	w, p, err := s.load(tx, userID)
	if err != nil {
		return SpendResult{}, err
	}
	// Free-before-paid split; the split drives the column decrements even
	// though the spend entry records only the net amount
	bal := mp.Wallet{Free: w.Free, Paid: w.Paid, Level: p.Level}
	_, spentFree, spentPaid, err := mp.Spend(bal, amount)
	if err != nil {
		return SpendResult{}, err
	}
	if err := tx.Model(&domain.Wallet{}).Where("user_id = ?", userID).
		Updates(map[string]any{
			"free": gorm.Expr("free - ?", spentFree),
			"paid": gorm.Expr("paid - ?", spentPaid),
		}).Error; err != nil {
		return SpendResult{}, err
	}
	entry := domain.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         domain.LedgerKindSpend,
		Amount:       -amount,
		BalanceAfter: bal.Total() - amount,
		RefType:      refType,
		RefID:        refID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return SpendResult{}, err
	}
	if err := s.audit(tx, userID, "spend", map[string]any{"amount": amount, "ref_type": refType, "ref_id": refID}); err != nil {
		return SpendResult{}, err
	}
	// Unlock side effect keyed by refType
	var token string
	switch refType {
	case domain.RefTypePost:
		if refID != "" {
			pu := domain.PostUnlock{UserID: userID, PostID: refID, Method: "mp"}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pu).Error; err != nil {
				return SpendResult{}, err
			}
		}
	case domain.RefTypeProduct:
		if refID != "" {
			pur := domain.Purchase{UserID: userID, ProductID: refID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pur).Error; err != nil {
				return SpendResult{}, err
			}
			token, err = s.issueDownloadToken(tx, userID, refID)
			if err != nil {
				return SpendResult{}, err
			}
		}
	}
	// Convert the spend to XP and cascade level-ups
	base := leveling.XPFromArticle(amount)
	if xpKind == domain.XPKindMarket {
		base = leveling.XPFromMarket(amount)
	}
	award := leveling.AwardXP(p.Level, p.CurrentXP, base)
	if err := tx.Model(&domain.Profile{}).Where("user_id = ?", userID).
		Updates(map[string]any{"level": award.Level, "current_xp": award.CurrentXP}).Error; err != nil {
		return SpendResult{}, err
	}
	snap, err := s.snapshot(tx, userID)
	if err != nil {
		return SpendResult{}, err
	}
	return SpendResult{UserID: userID, Wallet: snap, XPAdded: award.Added, DownloadToken: token}, nil
}

// SetMembership overwrites the membership flag. Not idempotency-guarded:
// setting the same value twice is a no-op in effect.
func (s *Service) SetMembership(userID, membership string) (WalletSnapshot, error) {
	unlock := s.users.lock(userID)
	defer unlock()

	var snap WalletSnapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&domain.Profile{}).Where("user_id = ?", userID).
			Update("membership", membership).Error; err != nil {
			return err
		}
		if err := s.audit(tx, userID, "set_membership", map[string]any{"membership": membership}); err != nil {
			return err
		}
		var err error
		snap, err = s.snapshot(tx, userID)
		return err
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "membership": membership, "error": err.Error()}).Error("SetMembership failed")
		return WalletSnapshot{}, wrapTxErr(err)
	}
	return snap, nil
}

// DryRunResult is the advisory top-up computation
type DryRunResult struct {
	Membership string `json:"membership"`  // Current membership
	Enough     bool   `json:"enough"`      // Balance already covers required
	Required   int64  `json:"required"`    // Amount the caller wants to spend
	Balance    int64  `json:"balance"`     // Current free+paid
	Need       int64  `json:"need"`        // Shortfall against required
	Packs      int64  `json:"packs"`       // Grant packs needed to cover the shortfall
	Grant      int64  `json:"grant"`       // Total MP those packs would inject
	PriceCents int64  `json:"price_cents"` // Total price of those packs
	Cap        int64  `json:"cap"`         // Wallet capacity at the current level
	Overflow   bool   `json:"overflow"`    // Whether applying the packs would breach the cap
}

// DryRun computes how many grant packs cover a shortfall and whether applying
// them would overflow the cap. Advisory only; mutates nothing beyond lazy
// provisioning. Overflow uses the exact comparison the live grant enforces.
func (s *Service) DryRun(userID string, required int64) (DryRunResult, error) {
	var out DryRunResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		w, p, err := s.load(tx, userID)
		if err != nil {
			return err
		}
		total := w.Free + w.Paid
		need, packs := mp.SuggestPacks(required, total, s.cfg.EtherGrantMP)
		grant := packs * s.cfg.EtherGrantMP
		cap := leveling.WalletCap(p.Level)
		out = DryRunResult{
			Membership: p.Membership,
			Enough:     need == 0,
			Required:   required,
			Balance:    total,
			Need:       need,
			Packs:      packs,
			Grant:      grant,
			PriceCents: packs * s.cfg.EtherPriceCents,
			Cap:        cap,
			Overflow:   total+grant > cap, // Same boundary as the live grant rejection
		}
		return nil
	})
	if err != nil {
		return DryRunResult{}, wrapTxErr(err)
	}
	return out, nil
}

// GetWallet returns the current wallet/profile snapshot, provisioning on first touch
func (s *Service) GetWallet(userID string) (WalletSnapshot, error) {
	var snap WalletSnapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensure(tx, userID); err != nil {
			return err
		}
		var err error
		snap, err = s.snapshot(tx, userID)
		return err
	})
	if err != nil {
		return WalletSnapshot{}, wrapTxErr(err)
	}
	return snap, nil
}

// currentSnapshot reads the snapshot outside any mutation
func (s *Service) currentSnapshot(userID string) (WalletSnapshot, error) {
	return s.snapshot(s.db, userID)
}

// GetLedger returns the most recent ledger entries, newest first, limit capped at 200
func (s *Service) GetLedger(userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	var entries []domain.LedgerEntry
	err := s.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, wrapTxErr(err)
	}
	return entries, nil
}
