package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"mp_ledger/internal/config" // Application configuration
	"mp_ledger/internal/domain" // Domain models
	"mp_ledger/internal/ledger" // Transaction orchestrator
	"mp_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// SessionRequest represents a session-minting request from the identity glue
type SessionRequest struct {
	UserID string `json:"user_id" binding:"required"` // Opaque user identity key
}

// SessionHandler mints a JWT for a user ID. The identity layer (magic links,
// SSO) lives outside this service and calls in with the service secret.
func SessionHandler(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		token, err := utils.GenerateJWT(req.UserID, jwtSecret) // Mint the session token
		if err != nil {
			// If minting fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token}) // Return the session token
	}
}

// GrantRequest represents an MP injection from the payment/membership glue
type GrantRequest struct {
	UserID         string `json:"user_id" binding:"required"`              // Target user
	Kind           string `json:"kind" binding:"required,oneof=free paid"` // Bucket to credit
	Amount         int64  `json:"amount" binding:"required,gt=0"`          // MP to inject
	IdempotencyKey string `json:"idempotency_key"`                         // Dedupe token for webhook retries
}

// GrantHandler injects MP into a user's wallet, idempotently when a key is given
func GrantHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the grant through the orchestrator
		res, err := svc.Grant(req.UserID, req.Kind, req.Amount, req.IdempotencyKey)
		if err != nil {
			respondError(c, err)
			return
		}
		// Log the grant outcome
		logrus.WithFields(logrus.Fields{
			"user_id":    req.UserID,     // Target user
			"kind":       req.Kind,       // Bucket credited
			"amount":     req.Amount,     // MP injected
			"idempotent": res.Idempotent, // Whether this was a replay
		}).Info("Grant transaction") // Log grant success
		invalidateUserCache(rdb, req.UserID) // Drop stale cache entries
		// Return success response
		c.JSON(http.StatusOK, gin.H{"ok": true, "idempotent": res.Idempotent, "wallet": res.Wallet})
	}
}

// MembershipRequest represents a membership change from the subscription glue
type MembershipRequest struct {
	UserID     string `json:"user_id" binding:"required"`                      // Target user
	Membership string `json:"membership" binding:"required,oneof=ACTIVE NONE"` // New membership state
	InvoiceID  string `json:"invoice_id"`                                      // Billing anchor for the monthly grant
}

// MembershipHandler overwrites the membership flag. Activation with an invoice
// anchor also grants the configured monthly free MP, idempotent per invoice.
func MembershipHandler(svc *ledger.Service, cfg *config.Config, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MembershipRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Overwrite the membership flag
		snap, err := svc.SetMembership(req.UserID, req.Membership)
		if err != nil {
			respondError(c, err)
			return
		}
		granted := false
		// Monthly free MP on activation, keyed by the billing invoice
		if req.Membership == domain.MembershipActive && req.InvoiceID != "" && cfg.MPGrantMonthly > 0 {
			res, err := svc.Grant(req.UserID, domain.MPKindFree, cfg.MPGrantMonthly, "invoice:"+req.InvoiceID)
			if err != nil {
				respondError(c, err)
				return
			}
			granted = !res.Idempotent
			snap = res.Wallet
		}
		// Log the membership change
		logrus.WithFields(logrus.Fields{
			"user_id":    req.UserID,     // Target user
			"membership": req.Membership, // New state
			"granted":    granted,        // Whether the monthly MP landed
		}).Info("Membership change") // Log membership change
		invalidateUserCache(rdb, req.UserID) // Drop stale cache entries
		// Return success response
		c.JSON(http.StatusOK, gin.H{"ok": true, "wallet": snap})
	}
}

// TxStartRequest represents the opening of a pending purchase
type TxStartRequest struct {
	UserID        string  `json:"user_id" binding:"required"`                            // Buyer
	Cost          int64   `json:"cost" binding:"required,gt=0"`                          // MP to spend on finalize
	RefType       string  `json:"ref_type" binding:"required,oneof=post product system"` // Unlock target type
	RefID         string  `json:"ref_id" binding:"required"`                             // Unlock target identifier
	XPKind        string  `json:"xp_kind" binding:"required,oneof=article market"`       // XP conversion to apply
	PaymentIntent *string `json:"payment_intent"`                                        // Intent when already known
	SessionID     *string `json:"session_id"`                                            // Checkout session identifier
}

// TxStartHandler records a pending purchase before its payment settles
func TxStartHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TxStartRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// First-write-wins insert; duplicates are a no-op
		if err := svc.StartPendingTx(req.UserID, req.Cost, req.RefType, req.RefID, req.XPKind, req.PaymentIntent, req.SessionID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true}) // Return success response
	}
}

// TxUpdateRequest attaches a payment intent to a session-keyed pending purchase
type TxUpdateRequest struct {
	SessionID     string `json:"session_id" binding:"required"`     // Checkout session identifier
	PaymentIntent string `json:"payment_intent" binding:"required"` // Intent assigned by the provider
}

// TxUpdateHandler attaches the payment intent once the provider assigns it
func TxUpdateHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TxUpdateRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Attach the intent; never overwrites one already set
		if err := svc.UpdatePendingTx(req.SessionID, req.PaymentIntent); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true}) // Return success response
	}
}

// TxFinalizeRequest finalizes a pending purchase after its payment settled
type TxFinalizeRequest struct {
	PaymentIntent string `json:"payment_intent" binding:"required"` // Confirmed payment intent
}

// TxFinalizeHandler applies the recorded spend once the payment is confirmed
func TxFinalizeHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TxFinalizeRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Finalize through the orchestrator
		res, err := svc.FinalizePendingTx(req.PaymentIntent)
		if err != nil {
			respondError(c, err)
			return
		}
		// Log the finalize outcome
		logrus.WithFields(logrus.Fields{
			"payment_intent": req.PaymentIntent, // Confirmed intent
			"xp_added":       res.XPAdded,       // XP credited
		}).Info("Pending transaction finalized") // Log finalize success
		invalidateUserCache(rdb, res.UserID) // Drop stale cache entries
		// Return success response
		resp := gin.H{"ok": true, "wallet": res.Wallet, "xp_added": res.XPAdded}
		if res.DownloadToken != "" {
			resp["download_token"] = res.DownloadToken // Single-use asset token for product purchases
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TxPurgeHandler deletes pending purchases older than the configured TTL
// (abandoned checkouts). Exposed for the deployment's cleanup schedule.
func TxPurgeHandler(svc *ledger.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ttl := time.Duration(cfg.PendingTxTTLHours) * time.Hour // Configured cutoff age
		purged, err := svc.PurgeExpiredPending(ttl)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "purged": purged}) // Return purge count
	}
}

// AuditListHandler returns recent audit trail entries for reporting.
// The core itself never reads these; this is the external reporting read.
func AuditListHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100 // Default limit
		// If limit exists in query
		if l := c.Query("limit"); l != "" {
			// Convert limit to integer
			if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
				limit = v // Set limit if valid
			}
		}
		q := db.Order("ts desc").Limit(limit) // Newest first
		// Optional user filter
		if userID := c.Query("user_id"); userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		var logs []domain.AuditLog // Slice to hold entries
		// Fetch the entries
		if err := q.Find(&logs).Error; err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": logs}) // Return audit entries
	}
}
