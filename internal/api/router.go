package api

import (
	"mp_ledger/internal/config"     // Application configuration
	"mp_ledger/internal/ledger"     // Transaction orchestrator
	"mp_ledger/internal/middleware" // Auth middleware

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// RegisterRoutes wires the user and service surfaces onto the router.
// rdb may be nil, in which case read caching is disabled.
func RegisterRoutes(r *gin.Engine, svc *ledger.Service, db *gorm.DB, cfg *config.Config, rdb *redis.Client) {
	// User routes (protected by JWT)
	mpGroup := r.Group("/mp")
	mpGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	mpGroup.GET("/wallet", GetWalletHandler(svc, rdb))    // Wallet snapshot
	mpGroup.POST("/spend", SpendHandler(svc, rdb))        // Spend MP
	mpGroup.POST("/dryrun", DryRunHandler(svc))           // Advisory top-up
	mpGroup.GET("/ledger", GetLedgerHandler(svc, rdb))    // Ledger history
	mpGroup.GET("/download/:token", DownloadHandler(svc)) // Token redemption

	// Service routes (payment/identity glue, protected by the shared secret)
	serviceGroup := r.Group("/service")
	serviceGroup.Use(middleware.ServiceSecretMiddleware(cfg.ServiceSecret))
	serviceGroup.POST("/session", SessionHandler(cfg.JWTSecret))       // Session minting
	serviceGroup.POST("/grant", GrantHandler(svc, rdb))                // MP grant
	serviceGroup.POST("/membership", MembershipHandler(svc, cfg, rdb)) // Membership change
	serviceGroup.POST("/tx/start", TxStartHandler(svc))                // Pending purchase start
	serviceGroup.POST("/tx/update", TxUpdateHandler(svc))              // Payment intent attach
	serviceGroup.POST("/tx/finalize", TxFinalizeHandler(svc, rdb))     // Pending purchase finalize
	serviceGroup.POST("/tx/purge", TxPurgeHandler(svc, cfg))           // Abandoned checkout purge
	serviceGroup.GET("/audit", AuditListHandler(db))                   // Audit trail reporting
}
