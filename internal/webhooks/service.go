// Package webhooks delivers signed event notifications to endpoints
// registered by administrators.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/verification"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-CertGuard-Signature"

const maxAttempts = 3

// ErrUnknownEvent is returned when a subscription names an unsupported event.
var ErrUnknownEvent = errors.New("unknown webhook event type")

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages webhook subscriptions and event dispatching.
type Service struct {
	store      Store
	httpClient *http.Client
	backoff    []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    []time.Duration{time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetBackoff replaces the delays between delivery attempts.
func (s *Service) SetBackoff(delays ...time.Duration) {
	s.backoff = delays
}

// Subscribe creates a subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, createdBy string, req *CreateSubscriptionRequest) (*Subscription, error) {
	for _, e := range req.Events {
		if !slices.Contains(EventTypes, e) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		ID:        uuid.New(),
		URL:       req.URL,
		Events:    slices.Compact(slices.Sorted(slices.Values(req.Events))),
		Secret:    secret,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe deletes a subscription.
func (s *Service) Unsubscribe(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// List returns every subscription, newest first.
func (s *Service) List(ctx context.Context) ([]*Subscription, error) {
	return s.store.List(ctx)
}

// Deliveries returns the latest delivery attempts of a subscription.
func (s *Service) Deliveries(ctx context.Context, id uuid.UUID) ([]*Delivery, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDeliveries(ctx, id)
}

// Dispatch fans out an event to all matching subscriptions. Deliveries run in
// the background and outlive ctx's cancellation.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	subs, err := s.store.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	dctx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(dctx, sub, event)
		}()
	}
}

// NotifyForgery implements verification.Notifier.
func (s *Service) NotifyForgery(ctx context.Context, res *verification.Result) error {
	s.Dispatch(ctx, EventVerificationInvalid, map[string]string{
		"certificateId": res.CertificateID,
		"status":        string(res.Status),
		"reason":        res.Reason,
	})
	return nil
}

// Wait blocks until in-flight deliveries have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := SignPayload(body, sub.Secret)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if !s.sleep(ctx, attempt-2) {
				return
			}
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
			DeliveredAt:    time.Now().UTC(),
		}
		if recordErr := s.store.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}
		if s.onMetrics != nil {
			s.onMetrics(success)
		}
		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

func (s *Service) sleep(ctx context.Context, i int) bool {
	if len(s.backoff) == 0 {
		return true
	}
	d := s.backoff[min(i, len(s.backoff)-1)]
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// SignPayload computes the value of SignatureHeader for body.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
