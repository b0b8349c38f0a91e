package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"mp_ledger/internal/ledger" // Transaction orchestrator
	"mp_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// walletCacheKey builds the Redis key for a user's wallet snapshot
func walletCacheKey(userID string) string {
	return "mpwallet:user:" + userID
}

// invalidateUserCache drops the cached wallet snapshot and ledger pages for a
// user after any mutation (simple version: the default and max ledger limits)
func invalidateUserCache(rdb *redis.Client, userID string) {
	ctx := context.Background()
	_ = utils.DeleteCache(ctx, rdb, walletCacheKey(userID)) // Invalidate wallet cache
	for _, limit := range []int{50, 200} {
		// Delete cached ledger pages
		_ = utils.DeleteCache(ctx, rdb, "mpledger:user:"+userID+":limit:"+strconv.Itoa(limit))
	}
}

// GetWalletHandler returns the wallet/profile snapshot for the authenticated user
func GetWalletHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get userID from context
		userID, exists := c.Get("userID")
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                             // Context for Redis operations
		cacheKey := walletCacheKey(userID.(string))             // Cache key for the snapshot
		var snap ledger.WalletSnapshot                          // Snapshot struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &snap) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": snap, "cached": true})
			return
		}
		// If not in cache, fetch through the orchestrator (provisions lazily)
		snap, err = svc.GetWallet(userID.(string))
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, snap, 60*time.Second) // Cache the snapshot for 60 seconds
		c.JSON(http.StatusOK, gin.H{"wallet": snap, "cached": false})
	}
}

// SpendRequest represents a spend request
type SpendRequest struct {
	Amount  int64  `json:"amount" binding:"required,gt=0"`                         // MP to consume
	RefType string `json:"ref_type" binding:"omitempty,oneof=post product system"` // Unlock target type
	RefID   string `json:"ref_id"`                                                 // Unlock target identifier
	XPKind  string `json:"xp_kind" binding:"required,oneof=article market"`        // XP conversion to apply
}

// SpendHandler consumes MP from the authenticated user's wallet, applying the
// unlock side effect and XP award atomically
func SpendHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get userID from context
		userID, exists := c.Get("userID")
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req SpendRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the spend through the orchestrator
		res, err := svc.Spend(userID.(string), req.Amount, req.RefType, req.RefID, req.XPKind)
		if err != nil {
			respondError(c, err)
			return
		}
		// Log successful spend
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,      // User ID
			"amount":   req.Amount,  // Spend amount
			"ref_type": req.RefType, // Unlock target type
			"ref_id":   req.RefID,   // Unlock target identifier
			"xp_added": res.XPAdded, // XP credited
		}).Info("Spend transaction") // Log spend success
		invalidateUserCache(rdb, userID.(string)) // Drop stale cache entries
		// Return success response
		resp := gin.H{"ok": true, "wallet": res.Wallet, "xp_added": res.XPAdded}
		if res.DownloadToken != "" {
			resp["download_token"] = res.DownloadToken // Single-use asset token for product purchases
		}
		c.JSON(http.StatusOK, resp)
	}
}

// DryRunRequest represents an advisory top-up computation request
type DryRunRequest struct {
	Required int64 `json:"required" binding:"gte=0"` // MP the caller wants to spend
}

// DryRunHandler computes the pack count and overflow advisory without mutating anything
func DryRunHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get userID from context
		userID, exists := c.Get("userID")
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DryRunRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the advisory computation
		res, err := svc.DryRun(userID.(string), req.Required)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res) // Return the advisory figures
	}
}

// GetLedgerHandler returns the most recent ledger entries for the authenticated user
func GetLedgerHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get userID from context
		userID, exists := c.Get("userID")
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		limit := 50 // Default limit
		// If limit exists in query
		if l := c.Query("limit"); l != "" {
			// Convert limit to integer
			if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
				limit = v // Set limit if valid
			}
		}
		ctx := context.Background() // Context for Redis operations
		// Redis cache key
		cacheKey := "mpledger:user:" + userID.(string) + ":limit:" + strconv.Itoa(limit)
		var cached []map[string]any // Cached entries
		// Try to get from cache
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"items": cached, "cached": true})
			return
		}
		// Fetch from the orchestrator
		entries, err := svc.GetLedger(userID.(string), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, entries, 60*time.Second) // Cache the page for 60 seconds
		c.JSON(http.StatusOK, gin.H{"items": entries, "cached": false})
	}
}

// DownloadHandler redeems a single-use download token and returns the asset
// key for the storage layer. Presigning/serving the object is out of scope.
func DownloadHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token") // Token from the path
		// Redeem the token (single use, time limited)
		row, err := svc.RedeemDownload(token)
		if err != nil {
			respondError(c, err)
			return
		}
		// Return the asset reference for the storage layer
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"product_id": row.ProductID, // Purchased product
			"asset_key":  row.AssetKey,  // Object-storage key
		})
	}
}
