package ledger

import (
	"errors"

	"mp_ledger/internal/mp"
)

// Domain outcome taxonomy. All rule violations are returned as one of these;
// nothing escapes the service as a raw storage error.
var (
	ErrBadRequest          = errors.New("bad request")                   // Malformed trigger
	ErrCapExceeded         = mp.ErrCapExceeded                           // Grant would breach the wallet cap
	ErrInsufficientBalance = mp.ErrInsufficient                          // Spend exceeds free+paid
	ErrTxNotFound          = errors.New("pending transaction not found") // Finalize references an unknown payment
	ErrTokenInvalid        = errors.New("download token invalid")        // Unknown, expired or already used token
	ErrTransactionFailed   = errors.New("transaction failed")            // Atomic commit failed; everything rolled back
)

// wrapTxErr passes domain outcomes through untouched and folds anything else
// (storage failures mid-sequence) into ErrTransactionFailed
func wrapTxErr(err error) error {
	if err == nil {
		return nil
	}
	for _, domainErr := range []error{ErrBadRequest, ErrCapExceeded, ErrInsufficientBalance, ErrTxNotFound, ErrTokenInvalid} {
		if errors.Is(err, domainErr) {
			return err
		}
	}
	return errors.Join(ErrTransactionFailed, err)
}
