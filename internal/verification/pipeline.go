package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/verifylog"
	"github.com/certguard/certguard/internal/watermark"
)

const (
	stepQR        = "qr"
	stepRegistry  = "registry"
	stepBlacklist = "blacklist"
	stepSignature = "signature"
	stepContent   = "content"
	stepWatermark = "watermark"
)

// A step returns halt=true to stop the pipeline after settling the verdict.
type step struct {
	name string
	run  func(e *Engine, ctx context.Context, s *state) (halt bool, err error)
}

var pipeline = []step{
	{stepQR, (*Engine).decodeQR},
	{stepRegistry, (*Engine).lookup},
	{stepBlacklist, (*Engine).checkBlacklist},
	{stepSignature, (*Engine).checkSignature},
	{stepContent, (*Engine).checkContent},
	{stepWatermark, (*Engine).checkWatermark},
}

const (
	reasonNoQR           = "The provided document does not contain a valid, scannable QR code."
	reasonNotInRegistry  = "The certificate is invalid. It was not found in the central registry."
	reasonSignature      = "The certificate is invalid. The QR code signature does not match the official record."
	reasonAuthentic      = "The certificate is fully authentic. All cryptographic and content checks passed."
	reasonOtherChecks    = "The QR code is valid, but other security checks failed."
	reasonIncomplete     = "Verification could not be completed:"
	msgNoDocument        = "No document provided for watermark scan"
	msgSignatureValid    = "QR cryptographic signature is valid"
	msgSignatureMismatch = "QR signature mismatch - document may be altered"
	msgNoWatermark       = "No watermark found in document"
	msgWatermarkMismatch = "Watermark signature mismatch - document may be a counterfeit"
	msgWatermarkValid    = "Watermark cryptographic signature is valid"
)

func (e *Engine) decodeQR(_ context.Context, s *state) (bool, error) {
	p, err := qr.Decode(s.req.QRPayload)
	if err != nil {
		s.settle(verifylog.StatusInvalid, reasonNoQR)
		return true, nil
	}
	s.payload = p
	return false, nil
}

func (e *Engine) lookup(ctx context.Context, s *state) (bool, error) {
	rec, err := e.registry.GetByID(ctx, s.payload.ID)
	if errors.Is(err, certledger.ErrNotFound) {
		s.details.DBCheck = fail("No record found for ID: " + s.payload.ID)
		s.settle(verifylog.StatusInvalid, reasonNotInRegistry)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	s.record = rec
	s.details.DBCheck = pass("Record found for " + rec.StudentName)
	return false, nil
}

func (e *Engine) checkBlacklist(ctx context.Context, s *state) (bool, error) {
	if e.blacklist == nil {
		return false, nil
	}
	inst := s.record.IssuingInstitution
	banned, err := e.blacklist.IsBlacklisted(ctx, inst)
	if err != nil {
		return false, err
	}
	if banned {
		s.settle(verifylog.StatusInvalid,
			fmt.Sprintf("Verification failed: The issuing institution '%s' has been blacklisted.", inst))
		return true, nil
	}
	return false, nil
}

// checkSignature compares the QR signature with the registry's authoritative
// hash. A mismatch settles the verdict but content checks still run.
func (e *Engine) checkSignature(_ context.Context, s *state) (bool, error) {
	if s.payload.Signature != s.record.Hash {
		s.details.SignatureCheck = fail(msgSignatureMismatch)
		s.settle(verifylog.StatusInvalid, reasonSignature)
		return false, nil
	}
	s.details.SignatureCheck = pass(msgSignatureValid)
	return false, nil
}

func (e *Engine) checkContent(_ context.Context, s *state) (bool, error) {
	r := s.record
	if matchesAny(r.IssuingInstitution, e.cfg.Institutions) {
		s.details.InstitutionCheck = pass(r.IssuingInstitution)
	} else {
		s.details.InstitutionCheck = fail(fmt.Sprintf("Institution '%s' is not on the approved list", r.IssuingInstitution))
	}
	if matchesAny(r.Course, e.cfg.Courses) {
		s.details.CourseCheck = pass(r.Course)
	} else {
		s.details.CourseCheck = fail(fmt.Sprintf("Course '%s' is not on the approved list", r.Course))
	}
	return false, nil
}

func (e *Engine) checkWatermark(_ context.Context, s *state) (bool, error) {
	if s.settled {
		return false, nil
	}
	if len(s.req.Document) == 0 {
		s.details.WatermarkCheck = notPerformed(msgNoDocument)
		return false, nil
	}
	got, ok := watermark.ExtractFromBytes(s.req.Document)
	switch {
	case !ok:
		s.details.WatermarkCheck = fail(msgNoWatermark)
	case got != s.record.Hash:
		s.details.WatermarkCheck = fail(msgWatermarkMismatch)
	default:
		s.details.WatermarkCheck = pass(msgWatermarkValid)
	}
	return false, nil
}

// synthesize derives the verdict once every check has run and the signature
// matched. A watermark that was not performed is neutral unless the policy
// requires one.
func (e *Engine) synthesize(s *state) {
	d := s.details
	wm := d.WatermarkCheck.Outcome
	cryptoOK := d.SignatureCheck.Passed() &&
		(wm == Passed || (wm == NotPerformed && !e.cfg.RequireWatermark))
	instOK, courseOK := d.InstitutionCheck.Passed(), d.CourseCheck.Passed()

	switch {
	case cryptoOK && instOK && courseOK:
		s.settle(verifylog.StatusValid, reasonAuthentic)

	case cryptoOK:
		var reasons []string
		if !instOK {
			reasons = append(reasons, "the issuing institution is not recognized")
		}
		if !courseOK {
			reasons = append(reasons, "the course is not recognized")
		}
		s.settle(verifylog.StatusPartiallyValid,
			"Cryptographic signatures are valid, but "+strings.Join(reasons, " and ")+".")

	default:
		var reasons []string
		if wm == Failed {
			reasons = append(reasons, "the document's security watermark is invalid")
		}
		if !instOK {
			reasons = append(reasons, "the institution is unrecognized")
		}
		if !courseOK {
			reasons = append(reasons, "the course is unrecognized")
		}
		if len(reasons) == 0 {
			s.settle(verifylog.StatusPartiallyValid, reasonOtherChecks)
			return
		}
		s.settle(verifylog.StatusPartiallyValid, "The QR code is valid, but "+strings.Join(reasons, ", ")+".")
	}
}
