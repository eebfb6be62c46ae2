// Package client provides the CertGuard Go SDK for issuing and verifying
// certificates against a CertGuard server.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("certguard: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client is the CertGuard SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithBearerToken attaches a session token obtained from Login to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed server.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a new Client connected to baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// Login authenticates in the given role and keeps the session token for
// subsequent requests.
func (c *Client) Login(ctx context.Context, email, password, role string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password, "role": role}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.bearerToken = resp.Token
	c.mu.Unlock()
	return resp.Token, nil
}

// Session returns the identity behind the client's bearer token.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/auth/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Issue appends a certificate to the ledger.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*IssuedCertificate, error) {
	var out IssuedCertificate
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/certificates", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Preview returns the hash and QR payload f would be issued with.
func (c *Client) Preview(ctx context.Context, f Fields) (*Preview, error) {
	var out Preview
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/certificates/preview", f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Suggest asks the server to read certificate fields from a scanned document.
func (c *Client) Suggest(ctx context.Context, documentDataURI string) (*Suggestion, error) {
	var out Suggestion
	body := map[string]string{"documentDataUri": documentDataURI}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/certificates/suggest", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCertificate returns the ledger record with the given id.
func (c *Client) GetCertificate(ctx context.Context, id string) (*Record, error) {
	var out Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/certificates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify verifies one certificate. Invalid certificates are a verdict, not an error.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	var out Verdict
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyBatch verifies several certificates; verdicts are in request order.
func (c *Client) VerifyBatch(ctx context.Context, reqs []VerifyRequest) ([]Verdict, error) {
	var out struct {
		Results []Verdict `json:"results"`
	}
	body := map[string]any{"certificates": reqs}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/verify/batch", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// LedgerOverview returns the chain length and root hash.
func (c *Client) LedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LedgerRecords returns every record on the chain.
func (c *Client) LedgerRecords(ctx context.Context) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/records", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// VerifyLedger walks the chain on the server.
func (c *Client) VerifyLedger(ctx context.Context) (*IntegrityReport, error) {
	var out IntegrityReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tamper alters one random record for demonstration.
func (c *Client) Tamper(ctx context.Context) (*TamperResult, error) {
	var out TamperResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ledger/tamper", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetLedger resets the chain to genesis and returns the server message.
func (c *Client) ResetLedger(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ledger/reset", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// AddBlacklist blacklists an issuing institution.
func (c *Client) AddBlacklist(ctx context.Context, entityID, reason string) (*BlacklistEntry, error) {
	var out BlacklistEntry
	body := map[string]string{"entityId": entityID, "reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/blacklist", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeBlacklist lifts the active blacklisting of an institution.
func (c *Client) RevokeBlacklist(ctx context.Context, entityID string) error {
	body := map[string]string{"entityId": entityID}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/blacklist/revoke", body, nil)
}

// ListBlacklist returns blacklist entries; an empty status lists all of them.
func (c *Client) ListBlacklist(ctx context.Context, status string) ([]BlacklistEntry, error) {
	path := "/api/v1/blacklist"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Entries []BlacklistEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Alerts returns the latest Invalid verdicts.
func (c *Client) Alerts(ctx context.Context, limit int) ([]LogEntry, error) {
	var out struct {
		Alerts []LogEntry `json:"alerts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withLimit("/api/v1/dashboard/alerts", "limit", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// Activity returns the latest verification attempts.
func (c *Client) Activity(ctx context.Context, limit int) ([]LogEntry, error) {
	var out struct {
		Entries []LogEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withLimit("/api/v1/dashboard/activity", "limit", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Stats returns verdict counts for the last days days.
func (c *Client) Stats(ctx context.Context, days int) (*Stats, error) {
	var out Stats
	if err := c.doJSON(ctx, http.MethodGet, withLimit("/api/v1/dashboard/stats", "days", days), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func withLimit(path, key string, n int) string {
	if n <= 0 {
		return path
	}
	return path + "?" + key + "=" + strconv.Itoa(n)
}

// doJSON encodes in (when non-nil), executes the request and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// Issued certificates carry PNG data URIs.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(body))
}
