package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mp_ledger/internal/config"
	mdb "mp_ledger/internal/db"
	"mp_ledger/internal/domain"
	"mp_ledger/internal/ledger"
	"mp_ledger/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testServiceSecret = "test-service-secret"
)

// setupRouter builds the full route table over a per-test in-memory database.
// Redis is nil, which disables caching.
func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(mdb.Models()...))

	cfg := &config.Config{
		JWTSecret:         testJWTSecret,
		ServiceSecret:     testServiceSecret,
		EtherGrantMP:      333,
		EtherPriceCents:   300,
		MPGrantMonthly:    1000,
		DownloadTokenTTL:  300,
		PendingTxTTLHours: 24,
	}
	svc := ledger.New(gdb, ledger.Config{
		EtherGrantMP:     cfg.EtherGrantMP,
		EtherPriceCents:  cfg.EtherPriceCents,
		DownloadTokenTTL: time.Duration(cfg.DownloadTokenTTL) * time.Second,
	})
	r := gin.New()
	RegisterRoutes(r, svc, gdb, cfg, nil)
	return r, gdb
}

// httpDo performs a request with optional JSON body and headers
func httpDo(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// userHeaders builds the bearer auth headers for a user
func userHeaders(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := utils.GenerateJWT(userID, testJWTSecret)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// serviceHeaders builds the shared-secret headers for the service surface
func serviceHeaders() map[string]string {
	return map[string]string{"X-Service-Secret": testServiceSecret}
}

func TestAuthRequired(t *testing.T) {
	r, _ := setupRouter(t)

	// User surface rejects missing and malformed tokens
	w := httpDo(r, "GET", "/mp/wallet", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = httpDo(r, "GET", "/mp/wallet", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Service surface rejects a missing or wrong secret
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free", "amount": 10}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free", "amount": 10},
		map[string]string{"X-Service-Secret": "wrong"})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWalletProvisionsOnFirstTouch(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "GET", "/mp/wallet", nil, userHeaders(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet ledger.WalletSnapshot `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(0), resp.Wallet.Total)
	require.Equal(t, 1, resp.Wallet.Level)
	require.Equal(t, int64(1000), resp.Wallet.Cap)
	require.Equal(t, domain.MembershipNone, resp.Wallet.Membership)
}

func TestGrantSpendRoundTrip(t *testing.T) {
	r, _ := setupRouter(t)

	// Spending before any grant is rejected with 402
	w := httpDo(r, "POST", "/mp/spend",
		gin.H{"amount": 30, "ref_type": "post", "ref_id": "slug-a", "xp_kind": "article"},
		userHeaders(t, "u1"))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	// Grant through the service surface
	w = httpDo(r, "POST", "/service/grant",
		gin.H{"user_id": "u1", "kind": "free", "amount": 100}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	// The spend now succeeds and reports the XP credit
	w = httpDo(r, "POST", "/mp/spend",
		gin.H{"amount": 30, "ref_type": "post", "ref_id": "slug-a", "xp_kind": "article"},
		userHeaders(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet  ledger.WalletSnapshot `json:"wallet"`
		XPAdded int64                 `json:"xp_added"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(70), resp.Wallet.Total)
	require.Equal(t, int64(30), resp.XPAdded)

	// The ledger lists both entries, newest first
	w = httpDo(r, "GET", "/mp/ledger?limit=10", nil, userHeaders(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []domain.LedgerEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
}

func TestGrantValidation(t *testing.T) {
	r, _ := setupRouter(t)

	// Missing fields and bad enum values are rejected before the core runs
	w := httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "gold", "amount": 10}, serviceHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free"}, serviceHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free", "amount": -5}, serviceHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A cap breach maps to 409
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free", "amount": 1001}, serviceHeaders())
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestGrantIdempotencyOverHTTP(t *testing.T) {
	r, _ := setupRouter(t)

	body := gin.H{"user_id": "u1", "kind": "paid", "amount": 200, "idempotency_key": "evt_1"}
	w := httpDo(r, "POST", "/service/grant", body, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	// Webhook redelivery: 200 again, flagged idempotent, no balance change
	w = httpDo(r, "POST", "/service/grant", body, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Idempotent bool                  `json:"idempotent"`
		Wallet     ledger.WalletSnapshot `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Idempotent)
	require.Equal(t, int64(200), resp.Wallet.Paid)
}

func TestDryRunEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "free", "amount": 100}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	w = httpDo(r, "POST", "/mp/dryrun", gin.H{"required": 400}, userHeaders(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	var res ledger.DryRunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.False(t, res.Enough)
	require.Equal(t, int64(300), res.Need)
	require.Equal(t, int64(1), res.Packs)
	require.Equal(t, int64(300), res.PriceCents)
}

func TestMembershipMonthlyGrant(t *testing.T) {
	r, _ := setupRouter(t)

	// Activation with an invoice anchor grants the monthly free MP
	body := gin.H{"user_id": "u1", "membership": "ACTIVE", "invoice_id": "inv_1"}
	w := httpDo(r, "POST", "/service/membership", body, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet ledger.WalletSnapshot `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, domain.MembershipActive, resp.Wallet.Membership)
	require.Equal(t, int64(1000), resp.Wallet.Free)

	// Redelivered webhook: same invoice, no double grant
	w = httpDo(r, "POST", "/service/membership", body, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(1000), resp.Wallet.Free)

	// Deactivation flips the flag and grants nothing
	w = httpDo(r, "POST", "/service/membership", gin.H{"user_id": "u1", "membership": "NONE"}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, domain.MembershipNone, resp.Wallet.Membership)
	require.Equal(t, int64(1000), resp.Wallet.Free)
}

func TestPendingLifecycleOverHTTP(t *testing.T) {
	r, gdb := setupRouter(t)

	require.NoError(t, gdb.Create(&domain.Product{ID: "p1", Name: "Pack", PriceMP: 150, AssetKey: "assets/p1.zip"}).Error)
	w := httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u1", "kind": "paid", "amount": 200}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	// Start -> update -> finalize
	w = httpDo(r, "POST", "/service/tx/start",
		gin.H{"user_id": "u1", "cost": 150, "ref_type": "product", "ref_id": "p1", "xp_kind": "market", "session_id": "sess_1"},
		serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	w = httpDo(r, "POST", "/service/tx/update",
		gin.H{"session_id": "sess_1", "payment_intent": "pi_1"}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	w = httpDo(r, "POST", "/service/tx/finalize", gin.H{"payment_intent": "pi_1"}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Wallet        ledger.WalletSnapshot `json:"wallet"`
		DownloadToken string                `json:"download_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(50), resp.Wallet.Total)
	require.NotEmpty(t, resp.DownloadToken)

	// Replayed finalize maps to 404
	w = httpDo(r, "POST", "/service/tx/finalize", gin.H{"payment_intent": "pi_1"}, serviceHeaders())
	require.Equal(t, http.StatusNotFound, w.Code)

	// The token redeems once, then 404s
	w = httpDo(r, "GET", "/mp/download/"+resp.DownloadToken, nil, userHeaders(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	var dl struct {
		AssetKey string `json:"asset_key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dl))
	require.Equal(t, "assets/p1.zip", dl.AssetKey)
	w = httpDo(r, "GET", "/mp/download/"+resp.DownloadToken, nil, userHeaders(t, "u1"))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionAndAudit(t *testing.T) {
	r, _ := setupRouter(t)

	// Identity glue mints a session for a user
	w := httpDo(r, "POST", "/service/session", gin.H{"user_id": "u9"}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.Token)

	// The minted token works against the user surface
	w = httpDo(r, "GET", "/mp/wallet", nil, map[string]string{"Authorization": "Bearer " + sess.Token})
	require.Equal(t, http.StatusOK, w.Code)

	// Mutations leave audit entries behind
	w = httpDo(r, "POST", "/service/grant", gin.H{"user_id": "u9", "kind": "free", "amount": 10}, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	w = httpDo(r, "GET", "/service/audit?user_id=u9", nil, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Items []domain.AuditLog `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	require.NotEmpty(t, audit.Items)
	require.Equal(t, "grant", audit.Items[0].Action)
}

func TestPurgeEndpoint(t *testing.T) {
	r, gdb := setupRouter(t)

	// Plant an old pending row directly
	session := "sess_stale"
	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	require.NoError(t, gdb.Create(&domain.PendingTransaction{
		SessionID: &session, UserID: "u1", Cost: 100,
		RefType: domain.RefTypePost, RefID: "slug", XPKind: domain.XPKindArticle,
	}).Error)
	require.NoError(t, gdb.Model(&domain.PendingTransaction{}).
		Where("session_id = ?", session).Update("created_at", old).Error)

	w := httpDo(r, "POST", "/service/tx/purge", nil, serviceHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Purged int64 `json:"purged"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.Purged)
}
