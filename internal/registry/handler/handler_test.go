package handler_test

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/blacklist"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/issuance"
	"github.com/certguard/certguard/internal/registry/handler"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/verification"
	"github.com/certguard/certguard/internal/verifylog"
	"github.com/certguard/certguard/internal/watermark"
)

var testKey = sync.OnceValues(func() (*rsa.PrivateKey, error) {
	return identity.GenerateKey()
})

type fixture struct {
	router    *gin.Engine
	ledger    *certledger.MemoryLedger
	blacklist *blacklist.MemoryStore
	log       *verifylog.MemoryStore
	tokens    *identity.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	key, err := testKey()
	require.NoError(t, err)
	tokens := identity.NewTokenIssuer(key, "http://certguard.test", 0)

	f := &fixture{
		ledger:    certledger.New(),
		blacklist: blacklist.NewMemoryStore(),
		log:       verifylog.NewMemoryStore(),
		tokens:    tokens,
	}

	userSvc := users.NewService(users.NewMemoryRepository(), logger)
	require.NoError(t, userSvc.Seed(context.Background(), users.DemoAccounts()))

	issuer := issuance.NewService(f.ledger, issuance.DefaultConfig(), logger)
	engine := verification.NewEngine(f.ledger, f.blacklist, f.log, verification.DefaultConfig(), logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(userSvc, tokens, logger).Register(v1)
	handler.NewCertificateHandler(issuer, f.ledger, tokens, logger).Register(v1)
	handler.NewVerifyHandler(engine, logger).Register(v1)
	handler.NewLedgerHandler(f.ledger, tokens, logger).Register(v1)
	handler.NewBlacklistHandler(f.blacklist, tokens, logger).Register(v1)
	handler.NewDashboardHandler(f.log, tokens, logger).Register(v1)
	f.router = r
	return f
}

func (f *fixture) token(t *testing.T, role users.Role) string {
	t.Helper()
	tok, err := f.tokens.Issue("test-user", "test@certguard.test", string(role))
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func certBody(id, institution string) map[string]any {
	return map[string]any{
		"id":                 id,
		"studentName":        "Ada Lovelace",
		"course":             "BTech CS",
		"issuingInstitution": institution,
		"grade":              "A",
		"rollNumber":         "R-17",
		"year":               2024,
	}
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return watermark.EncodeDataURI("image/png", buf.Bytes())
}

// issue creates a certificate as an institution and returns the response body.
func (f *fixture) issue(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleInstitution), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("success", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "admin@certguard.com", "password": "password123", "role": "Admin",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode(t, w)
		tok, _ := resp["token"].(string)
		claims, err := f.tokens.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "Admin", claims.Role)
		assert.Equal(t, "admin@certguard.com", claims.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "admin@certguard.com", "password": "nope-nope", "role": "Admin",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid email or password.", decode(t, w)["error"])
	})

	t.Run("role mismatch", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "admin@certguard.com", "password": "password123", "role": "Institution",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "User is not registered as a(n) Institution.", decode(t, w)["error"])
	})

	t.Run("unknown role", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "admin@certguard.com", "password": "password123", "role": "Student",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSession(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/auth/session", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/auth/session", f.token(t, users.RoleVerifier), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Verifier", resp["role"])
	assert.Equal(t, "test@certguard.test", resp["email"])
	assert.Equal(t, "test-user", resp["user_id"])
	assert.NotEmpty(t, resp["expires_at"])
}

func TestIssue_RoleEnforcement(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/certificates", "", certBody("CERT-1", "IIT Bombay"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleVerifier), certBody("CERT-1", "IIT Bombay"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleAdmin), certBody("CERT-1", "IIT Bombay"))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)
	body := certBody("CERT-1", "IIT Bombay")
	delete(body, "grade")
	body["studentName"] = "   "

	w := f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleInstitution), body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "Please fill all required fields: studentName, grade", resp["error"])
}

func TestIssue_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.issue(t, certBody("CERT-1", "IIT Bombay"))

	w := f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleInstitution), certBody("CERT-1", "IIT Bombay"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIssue_ImageTooSmall(t *testing.T) {
	f := newFixture(t)
	body := certBody("CERT-1", "IIT Bombay")
	body["imageDataUri"] = pngDataURI(t, 8, 8)

	w := f.do(t, http.MethodPost, "/api/v1/certificates", f.token(t, users.RoleInstitution), body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	n, err := f.ledger.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIssueAndVerify_Valid(t *testing.T) {
	f := newFixture(t)
	resp := f.issue(t, certBody("CERT-1001", "IIT Bombay"))

	cert := resp["certificate"].(map[string]any)
	assert.Equal(t, "CERT-1001", cert["id"])
	assert.Len(t, cert["hash"], 64)
	assert.NotEmpty(t, resp["qrImage"])

	w := f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"qrDataUri": resp["qrPayload"].(string)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode(t, w)
	assert.Equal(t, "Valid", got["status"])
	details := got["details"].(map[string]any)
	assert.Equal(t, "not_performed", details["watermarkCheck"].(map[string]any)["outcome"])
}

func TestIssueAndVerify_Watermark(t *testing.T) {
	f := newFixture(t)
	body := certBody("CERT-2002", "NIT Trichy")
	body["imageDataUri"] = pngDataURI(t, 64, 64)
	resp := f.issue(t, body)

	marked, _ := resp["watermarkedImage"].(string)
	require.NotEmpty(t, marked)
	assert.Equal(t, false, resp["watermarkTruncated"])

	w := f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{
		"qrDataUri":       resp["qrPayload"].(string),
		"documentDataUri": marked,
	})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "Valid", got["status"])
	wm := got["details"].(map[string]any)["watermarkCheck"].(map[string]any)
	assert.Equal(t, "passed", wm["outcome"])

	// An unmarked document carries no watermark.
	w = f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{
		"qrDataUri":       resp["qrPayload"].(string),
		"documentDataUri": pngDataURI(t, 64, 64),
	})
	got = decode(t, w)
	assert.Equal(t, "Partially Valid", got["status"])
	assert.Equal(t, "The QR code is valid, but the document's security watermark is invalid.", got["reason"])
}

func TestVerify_MalformedQR(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"qrDataUri": "not a qr payload"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "Invalid", got["status"])
	assert.Equal(t, "The provided document does not contain a valid, scannable QR code.", got["reason"])
}

func TestVerify_BadDocument(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{
		"qrDataUri":       "x",
		"documentDataUri": "data:image/png;base64,!!!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyBatch(t *testing.T) {
	f := newFixture(t)
	a := f.issue(t, certBody("CERT-1", "IIT Bombay"))
	b := f.issue(t, certBody("CERT-2", "Unknown College"))

	w := f.do(t, http.MethodPost, "/api/v1/verify/batch", "", map[string]any{
		"certificates": []map[string]string{
			{"qrDataUri": a["qrPayload"].(string)},
			{"qrDataUri": b["qrPayload"].(string)},
			{"qrDataUri": "garbage"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, "Valid", results[0].(map[string]any)["status"])
	assert.Equal(t, "Partially Valid", results[1].(map[string]any)["status"])
	assert.Equal(t, "Invalid", results[2].(map[string]any)["status"])
}

func TestLedger_TamperVerifyReset(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, users.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/v1/ledger/reset", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chain was already empty. Initialized genesis block.", decode(t, w)["message"])

	w = f.do(t, http.MethodPost, "/api/v1/ledger/tamper", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Not enough records to tamper.", decode(t, w)["error"])

	f.issue(t, certBody("CERT-1", "IIT Bombay"))

	w = f.do(t, http.MethodGet, "/api/v1/ledger", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["entries"])

	w = f.do(t, http.MethodGet, "/api/v1/ledger/verify", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["isValid"])

	w = f.do(t, http.MethodPost, "/api/v1/ledger/tamper", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CERT-1", decode(t, w)["certificateId"])

	w = f.do(t, http.MethodGet, "/api/v1/ledger/verify", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.Equal(t, false, report["isValid"])
	assert.Len(t, report["failures"], 1)

	w = f.do(t, http.MethodPost, "/api/v1/ledger/reset", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Certificate chain has been reset to its genesis state.", decode(t, w)["message"])

	n, err := f.ledger.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_AdminOnly(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/ledger", f.token(t, users.RoleInstitution), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/ledger", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlacklist_Flow(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, users.RoleAdmin)
	cert := f.issue(t, certBody("CERT-1", "IIT Bombay"))

	w := f.do(t, http.MethodPost, "/api/v1/blacklist", admin, map[string]string{"entityId": "IIT Bombay"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, blacklist.DefaultReason, decode(t, w)["reason"])

	w = f.do(t, http.MethodPost, "/api/v1/blacklist", admin, map[string]string{"entityId": "IIT Bombay"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "This entity is already blacklisted.", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"qrDataUri": cert["qrPayload"].(string)})
	got := decode(t, w)
	assert.Equal(t, "Invalid", got["status"])
	assert.Equal(t, "Verification failed: The issuing institution 'IIT Bombay' has been blacklisted.", got["reason"])

	w = f.do(t, http.MethodPost, "/api/v1/blacklist/revoke", admin, map[string]string{"entityId": "IIT Bombay"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/blacklist/revoke", admin, map[string]string{"entityId": "IIT Bombay"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/blacklist?status=revoked", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = f.do(t, http.MethodGet, "/api/v1/blacklist?status=bogus", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, users.RoleAdmin)
	cert := f.issue(t, certBody("CERT-1", "IIT Bombay"))

	f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"qrDataUri": cert["qrPayload"].(string)})
	f.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"qrDataUri": "garbage"})

	w := f.do(t, http.MethodGet, "/api/v1/dashboard/alerts", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode(t, w)["alerts"].([]any)
	require.Len(t, alerts, 1)
	assert.Equal(t, verifylog.UnknownCertificate, alerts[0].(map[string]any)["certificateId"])

	w = f.do(t, http.MethodGet, "/api/v1/dashboard/activity?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = f.do(t, http.MethodGet, "/api/v1/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 1, stats["valid"])
	assert.EqualValues(t, 1, stats["invalid"])

	w = f.do(t, http.MethodGet, "/api/v1/dashboard/activity?limit=0", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewAndSuggest(t *testing.T) {
	f := newFixture(t)
	inst := f.token(t, users.RoleInstitution)

	body := certBody("CERT-1001", "IIT Bombay")
	body["year"] = "2024"
	w := f.do(t, http.MethodPost, "/api/v1/certificates/preview", inst, body)
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode(t, w)
	assert.Len(t, preview["hash"], 64)

	// Preview never writes.
	n, err := f.ledger.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Issuing the same fields yields the previewed hash.
	issued := f.issue(t, certBody("CERT-1001", "IIT Bombay"))
	assert.Equal(t, preview["hash"], issued["certificate"].(map[string]any)["hash"])

	w = f.do(t, http.MethodPost, "/api/v1/certificates/suggest", inst, map[string]string{
		"documentDataUri": pngDataURI(t, 4, 4),
	})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestGetCertificate(t *testing.T) {
	f := newFixture(t)
	f.issue(t, certBody("CERT-1", "IIT Bombay"))
	admin := f.token(t, users.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/v1/certificates/CERT-1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada Lovelace", decode(t, w)["studentName"])

	w = f.do(t, http.MethodGet, "/api/v1/certificates/CERT-404", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 1))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var deadline time.Time
	var hasDeadline bool
	r := gin.New()
	r.Use(handler.RequestTimeout(2 * time.Second))
	r.GET("/ping", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	start := time.Now()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(2*time.Second), deadline, time.Second)

	r = gin.New()
	r.Use(handler.RequestTimeout(0))
	r.GET("/ping", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.False(t, hasDeadline)
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	r.GET("/metrics", handler.MetricsHandler())

	handler.RecordVerification("Valid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `certguard_verifications_total{status="Valid"}`)
}
