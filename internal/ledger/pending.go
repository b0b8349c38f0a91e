package ledger

import (
	"errors"
	"time"

	"mp_ledger/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StartPendingTx records a purchase started on the payment side before its
// outcome is known. First-write-wins: a duplicate start for the same session
// or intent is a no-op, which protects against retried checkout creation.
func (s *Service) StartPendingTx(userID string, cost int64, refType, refID, xpKind string, paymentIntent, sessionID *string) error {
	if userID == "" || cost <= 0 || refType == "" || refID == "" ||
		(xpKind != domain.XPKindArticle && xpKind != domain.XPKindMarket) {
		return ErrBadRequest
	}
	row := domain.PendingTransaction{
		PaymentIntent: paymentIntent,
		SessionID:     sessionID,
		UserID:        userID,
		Cost:          cost,
		RefType:       refType,
		RefID:         refID,
		XPKind:        xpKind,
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return wrapTxErr(err)
	}
	return nil
}

// UpdatePendingTx attaches the payment intent to a row previously identified
// only by its session, but never overwrites an intent already set (multiple
// webhook deliveries may race on this).
func (s *Service) UpdatePendingTx(sessionID, paymentIntent string) error {
	err := s.db.Model(&domain.PendingTransaction{}).
		Where("session_id = ? AND (payment_intent IS NULL OR payment_intent = '')", sessionID).
		Update("payment_intent", paymentIntent).Error
	if err != nil {
		return wrapTxErr(err)
	}
	return nil
}

// FinalizePendingTx applies the spend a pending purchase was opened for, once
// the payment is confirmed. The pending row is deleted in the same transaction
// as the spend, so a replayed finalize finds no row and gets ErrTxNotFound
// instead of double-spending. An insufficient balance leaves the row in place.
func (s *Service) FinalizePendingTx(paymentIntent string) (SpendResult, error) {
	var row domain.PendingTransaction
	if err := s.db.Where("payment_intent = ?", paymentIntent).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SpendResult{}, ErrTxNotFound
		}
		return SpendResult{}, wrapTxErr(err)
	}

	unlock := s.users.lock(row.UserID)
	defer unlock()

	var out SpendResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Delete-inside-tx is the idempotency anchor: exactly one concurrent
		// finalize observes RowsAffected == 1
		res := tx.Where("payment_intent = ?", paymentIntent).Delete(&domain.PendingTransaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTxNotFound
		}
		if err := s.ensure(tx, row.UserID); err != nil {
			return err
		}
		spent, err := s.applySpend(tx, row.UserID, row.Cost, row.RefType, row.RefID, row.XPKind)
		if err != nil {
			return err
		}
		if err := s.audit(tx, row.UserID, "tx_finalize", map[string]any{
			"payment_intent": paymentIntent, "ref_type": row.RefType, "ref_id": row.RefID, "cost": row.Cost,
		}); err != nil {
			return err
		}
		out = spent
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": row.UserID, "payment_intent": paymentIntent, "error": err.Error()}).Error("Finalize failed")
		return SpendResult{}, wrapTxErr(err)
	}
	return out, nil
}

// PurgeExpiredPending deletes pending rows older than ttl (abandoned
// checkouts). ttl <= 0 disables purging. Called from the admin surface; the
// core runs no background tasks of its own.
func (s *Service) PurgeExpiredPending(ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-ttl).UnixMilli()
	res := s.db.Where("created_at < ?", cutoff).Delete(&domain.PendingTransaction{})
	if res.Error != nil {
		return 0, wrapTxErr(res.Error)
	}
	if res.RowsAffected > 0 {
		logrus.WithFields(logrus.Fields{"purged": res.RowsAffected}).Info("Purged expired pending transactions")
	}
	return res.RowsAffected, nil
}
