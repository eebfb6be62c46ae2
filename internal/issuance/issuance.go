// Package issuance turns validated certificate details into a ledger record,
// its QR payload and a watermarked certificate image.
package issuance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/canonical"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/watermark"
)

// hashLen is the length of the hex signature embedded in every watermark.
const hashLen = 64

var (
	// ErrImageTooSmall is returned when the certificate image cannot hold the
	// full signature and over-capacity embedding is rejected.
	ErrImageTooSmall = fmt.Errorf("certificate image too small for watermark: %w", watermark.ErrCapacityExceeded)

	// ErrInvalidImage is returned when the certificate image cannot be decoded.
	ErrInvalidImage = errors.New("certificate image could not be decoded")
)

// ValidationError lists required fields that were left empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Please fill all required fields: " + strings.Join(e.Missing, ", ")
}

// Ledger is the write side of the certificate registry.
type Ledger interface {
	Append(ctx context.Context, f canonical.IdentityFields) (*certledger.Record, error)
}

// Config controls issuance policy.
type Config struct {
	// RejectOverCapacity fails issuance for images too small to carry the
	// signature. When false the watermark is truncated and a warning logged.
	RejectOverCapacity bool
	// QRSize is the edge length of rendered QR images in pixels.
	QRSize int
}

// DefaultConfig returns the standard issuance policy.
func DefaultConfig() Config {
	return Config{RejectOverCapacity: true, QRSize: qr.DefaultSize}
}

// Request is a certificate to issue. Image is the optional rendered
// certificate to watermark.
type Request struct {
	Fields canonical.IdentityFields
	Image  []byte
}

// Certificate is the outcome of a successful issuance.
type Certificate struct {
	Record             *certledger.Record
	QRPayload          string
	QRImage            []byte
	WatermarkedImage   []byte
	WatermarkTruncated bool
}

// Preview is the signature a certificate would receive, computed without
// touching the ledger.
type Preview struct {
	Fields    canonical.IdentityFields `json:"fields"`
	Hash      string                   `json:"hash"`
	QRPayload string                   `json:"qrPayload"`
}

// Service issues certificates.
type Service struct {
	ledger    Ledger
	suggester Suggester
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a Service.
func NewService(ledger Ledger, cfg Config, logger *zap.Logger) *Service {
	if cfg.QRSize <= 0 {
		cfg.QRSize = qr.DefaultSize
	}
	return &Service{ledger: ledger, cfg: cfg, logger: logger}
}

// SetSuggester attaches an OCR field suggester.
func (s *Service) SetSuggester(sg Suggester) {
	s.suggester = sg
}

// Preview normalises loosely typed form input and returns the hash and QR
// payload it would be issued with.
func (s *Service) Preview(input map[string]any) Preview {
	f := canonical.FromMap(input)
	h := canonical.Hash(f)
	return Preview{Fields: f, Hash: h, QRPayload: qr.Encode(qr.Payload{ID: f.ID, Signature: h})}
}

// Issue validates req, appends it to the ledger and produces the QR code and
// watermarked image. The image is checked before the ledger is touched so a
// rejected image never leaves an orphaned record.
func (s *Service) Issue(ctx context.Context, req Request) (*Certificate, error) {
	f := canonical.Normalize(req.Fields)
	if missing := f.Missing(); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	var img image.Image
	truncated := false
	if len(req.Image) > 0 {
		var err error
		img, err = watermark.DecodeImage(bytes.NewReader(req.Image))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
		if watermark.Capacity(img) < hashLen {
			if s.cfg.RejectOverCapacity {
				return nil, ErrImageTooSmall
			}
			truncated = true
		}
	}

	rec, err := s.ledger.Append(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("append certificate: %w", err)
	}

	payload := qr.Payload{ID: rec.ID, Signature: rec.Hash}
	cert := &Certificate{
		Record:             rec,
		QRPayload:          qr.Encode(payload),
		WatermarkTruncated: truncated,
	}

	// The record is committed from here on; rendering failures are reported
	// but the certificate stays issued.
	if cert.QRImage, err = qr.PNG(payload, s.cfg.QRSize); err != nil {
		s.logger.Error("qr rendering failed (non-fatal)", zap.String("cert_id", rec.ID), zap.Error(err))
	}
	if img != nil {
		if truncated {
			s.logger.Warn("watermark truncated: image below capacity",
				zap.String("cert_id", rec.ID),
				zap.Int("capacity", watermark.Capacity(img)),
			)
		}
		cert.WatermarkedImage, err = watermark.PNGBytes(watermark.Embed(img, rec.Hash))
		if err != nil {
			s.logger.Error("watermark encoding failed (non-fatal)", zap.String("cert_id", rec.ID), zap.Error(err))
		}
	}

	s.logger.Info("certificate issued",
		zap.String("cert_id", rec.ID),
		zap.Int("seq", rec.Seq),
		zap.String("hash", rec.Hash),
	)
	return cert, nil
}
