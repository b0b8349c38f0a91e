package ledger

import (
	"errors"
	"time"

	"mp_ledger/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// issueDownloadToken creates a single-use, time-limited token for a product's
// asset inside the current transaction. A product missing from the catalog
// still gets a token with an empty asset key; the storage layer decides what
// that means.
func (s *Service) issueDownloadToken(tx *gorm.DB, userID, productID string) (string, error) {
	var prod domain.Product
	assetKey := ""
	if err := tx.Where("id = ?", productID).First(&prod).Error; err == nil {
		assetKey = prod.AssetKey
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	token := domain.DownloadToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		AssetKey:  assetKey,
		ExpiresAt: time.Now().Add(s.cfg.DownloadTokenTTL).UnixMilli(),
	}
	if err := tx.Create(&token).Error; err != nil {
		return "", err
	}
	return token.Token, nil
}

// RedeemDownload validates a download token and marks it used. Unknown,
// expired or already-used tokens all fail with ErrTokenInvalid; a token is
// redeemable exactly once.
func (s *Service) RedeemDownload(token string) (domain.DownloadToken, error) {
	var row domain.DownloadToken
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token = ?", token).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenInvalid
			}
			return err
		}
		now := time.Now().UnixMilli()
		if row.UsedAt != nil || now > row.ExpiresAt {
			return ErrTokenInvalid
		}
		// Conditional update makes concurrent redemptions lose cleanly
		res := tx.Model(&domain.DownloadToken{}).
			Where("token = ? AND used_at IS NULL", token).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenInvalid
		}
		row.UsedAt = &now
		return nil
	})
	if err != nil {
		return domain.DownloadToken{}, wrapTxErr(err)
	}
	return row, nil
}
