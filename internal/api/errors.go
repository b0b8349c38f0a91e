package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"mp_ledger/internal/ledger" // Orchestrator error taxonomy

	"github.com/gin-gonic/gin" // Gin web framework
)

// respondError maps the orchestrator's typed outcomes to HTTP statuses.
// The core itself is transport-agnostic; this is the only place statuses live.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
	case errors.Is(err, ledger.ErrCapExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "Wallet cap exceeded"})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient MP"})
	case errors.Is(err, ledger.ErrTxNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending transaction not found"})
	case errors.Is(err, ledger.ErrTokenInvalid):
		c.JSON(http.StatusNotFound, gin.H{"error": "Download token invalid"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction failed"})
	}
}
