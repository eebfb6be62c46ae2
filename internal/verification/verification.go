// Package verification decides whether a presented certificate is authentic.
//
// A verification runs an ordered pipeline of named checks against the QR
// payload, the central registry, the blacklist and, when a document image is
// supplied, its invisible watermark. Each check yields a tagged CheckResult;
// the verdict is synthesised from those results and every attempt is logged.
package verification

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/verifylog"
)

// Registry is the read side of the certificate ledger.
type Registry interface {
	GetByID(ctx context.Context, id string) (*certledger.Record, error)
}

// Blacklist reports whether an issuing institution is blacklisted.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, entityID string) (bool, error)
}

// Log records verification attempts.
type Log interface {
	Append(ctx context.Context, e *verifylog.Entry) error
}

// Notifier is told about Invalid verdicts.
type Notifier interface {
	NotifyForgery(ctx context.Context, res *Result) error
}

// Request is one verification attempt.
type Request struct {
	// QRPayload is the framed QR content or its raw JSON.
	QRPayload string
	// Document is an optional certificate image for the watermark scan.
	Document []byte
}

// Details holds every check result.
type Details struct {
	DBCheck          CheckResult `json:"dbCheck"`
	SignatureCheck   CheckResult `json:"signatureCheck"`
	WatermarkCheck   CheckResult `json:"watermarkCheck"`
	InstitutionCheck CheckResult `json:"institutionCheck"`
	CourseCheck      CheckResult `json:"courseCheck"`
}

// Result is the verdict of one verification.
type Result struct {
	Status        verifylog.Status `json:"status"`
	Reason        string           `json:"reason"`
	CertificateID string           `json:"certificateId"`
	Details       Details          `json:"details"`
}

// Engine runs verifications. It is safe for concurrent use.
type Engine struct {
	registry  Registry
	blacklist Blacklist
	log       Log
	notifier  Notifier
	cfg       Config
	logger    *zap.Logger
}

// NewEngine creates an Engine. blacklist and log may be nil.
func NewEngine(registry Registry, blacklist Blacklist, log Log, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		registry:  registry,
		blacklist: blacklist,
		log:       log,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// SetNotifier attaches a forgery notifier after construction.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Config returns the effective policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// Verify runs the pipeline for one request and logs exactly one entry.
// Verdicts, including Invalid ones, are returned as results; an error means
// a store could not be consulted and no verdict was reached. Such attempts
// are still logged as Invalid but never trigger a forgery notification.
func (e *Engine) Verify(ctx context.Context, req Request) (*Result, error) {
	s := &state{req: req}
	for _, st := range pipeline {
		halt, err := st.run(e, ctx, s)
		if err != nil {
			err = fmt.Errorf("%s check: %w", st.name, err)
			e.appendLog(ctx, s.result().CertificateID, verifylog.StatusInvalid, reasonIncomplete+" "+err.Error())
			return nil, err
		}
		if halt {
			s.halted = st.name
			break
		}
	}
	if !s.settled {
		e.synthesize(s)
	}
	s.fillSkipped()

	res := s.result()
	e.record(ctx, res)
	return res, nil
}

// VerifyBatch verifies reqs concurrently and returns results in input order.
func (e *Engine) VerifyBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Verify(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) record(ctx context.Context, res *Result) {
	e.appendLog(ctx, res.CertificateID, res.Status, res.Reason)
	if res.Status == verifylog.StatusInvalid && e.notifier != nil {
		if err := e.notifier.NotifyForgery(ctx, res); err != nil {
			e.logger.Warn("forgery notification failed (non-fatal)", zap.Error(err))
		}
	}
	e.logger.Info("certificate verified",
		zap.String("cert_id", res.CertificateID),
		zap.String("status", string(res.Status)),
	)
}

func (e *Engine) appendLog(ctx context.Context, certID string, status verifylog.Status, reason string) {
	if e.log == nil {
		return
	}
	entry := verifylog.NewEntry(certID, status, reason)
	if err := e.log.Append(ctx, entry); err != nil {
		e.logger.Error("verification log append failed (non-fatal)",
			zap.String("cert_id", entry.CertificateID),
			zap.Error(err),
		)
	}
}

func matchesAny(value string, allowed []string) bool {
	v := strings.ToLower(value)
	for _, a := range allowed {
		if strings.Contains(v, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// state carries one verification through the pipeline.
type state struct {
	req     Request
	payload qr.Payload
	record  *certledger.Record
	details Details

	status  verifylog.Status
	reason  string
	settled bool
	halted  string
}

func (s *state) settle(status verifylog.Status, reason string) {
	s.status, s.reason, s.settled = status, reason, true
}

func (s *state) result() *Result {
	id := s.payload.ID
	if id == "" {
		id = verifylog.UnknownCertificate
	}
	return &Result{Status: s.status, Reason: s.reason, CertificateID: id, Details: s.details}
}

// fillSkipped labels the checks that never ran.
func (s *state) fillSkipped() {
	skipped := "Verification failed before this step"
	fill := func(c *CheckResult, msg string) {
		if c.Outcome == NotPerformed && c.Message == "" {
			c.Message = msg
		}
	}
	if s.halted == stepQR {
		fill(&s.details.DBCheck, "Invalid QR")
		fill(&s.details.SignatureCheck, "Invalid QR")
	}
	fill(&s.details.SignatureCheck, skipped)
	fill(&s.details.InstitutionCheck, skipped)
	fill(&s.details.CourseCheck, skipped)
}
