package issuance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/certguard/certguard/internal/canonical"
	"github.com/certguard/certguard/internal/watermark"
)

// ErrNoSuggester is returned by Suggest when no suggester is configured.
var ErrNoSuggester = errors.New("field suggestion is not configured")

// Suggestion is the set of fields an OCR backend read from a scanned
// certificate. Callers review it before issuing.
type Suggestion struct {
	SuggestedName      string `json:"suggestedName"`
	Course             string `json:"course"`
	IssuingInstitution string `json:"issuingInstitution"`
	SuggestedID        string `json:"suggestedId"`
	Grade              string `json:"grade"`
	RollNumber         string `json:"rollNumber"`
	Year               int    `json:"year"`
}

// Fields converts the suggestion into identity fields.
func (s Suggestion) Fields() canonical.IdentityFields {
	return canonical.IdentityFields{
		ID:                 s.SuggestedID,
		StudentName:        s.SuggestedName,
		Course:             s.Course,
		IssuingInstitution: s.IssuingInstitution,
		Grade:              s.Grade,
		RollNumber:         s.RollNumber,
		Year:               s.Year,
	}
}

// Suggester extracts certificate fields from a scanned document.
type Suggester interface {
	Suggest(ctx context.Context, document []byte, mime string) (*Suggestion, error)
}

// Suggest delegates to the configured Suggester.
func (s *Service) Suggest(ctx context.Context, document []byte, mime string) (*Suggestion, error) {
	if s.suggester == nil {
		return nil, ErrNoSuggester
	}
	return s.suggester.Suggest(ctx, document, mime)
}

// HTTPSuggester posts the document as a data URI to an external OCR endpoint
// and decodes a Suggestion from the JSON response.
type HTTPSuggester struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSuggester creates an HTTPSuggester.
func NewHTTPSuggester(endpoint string, timeout time.Duration) *HTTPSuggester {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSuggester{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Suggest implements Suggester.
func (h *HTTPSuggester) Suggest(ctx context.Context, document []byte, mime string) (*Suggestion, error) {
	body, err := json.Marshal(map[string]string{
		"documentDataUri": watermark.EncodeDataURI(mime, document),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal suggest request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build suggest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggest request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("suggest: unexpected status %d: %s", resp.StatusCode, msg)
	}
	var out Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}
	return &out, nil
}
