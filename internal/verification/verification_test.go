package verification_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/blacklist"
	"github.com/certguard/certguard/internal/canonical"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/email"
	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/verification"
	"github.com/certguard/certguard/internal/verifylog"
	"github.com/certguard/certguard/internal/watermark"
)

var ctx = context.Background()

type fixture struct {
	ledger    *certledger.MemoryLedger
	blacklist *blacklist.MemoryStore
	log       *verifylog.MemoryStore
	engine    *verification.Engine
}

func newFixture(t *testing.T, cfg verification.Config) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    certledger.New(),
		blacklist: blacklist.NewMemoryStore(),
		log:       verifylog.NewMemoryStore(),
	}
	f.engine = verification.NewEngine(f.ledger, f.blacklist, f.log, cfg, zap.NewNop())
	return f
}

func (f *fixture) issue(t *testing.T, id, inst, course string) *certledger.Record {
	t.Helper()
	rec, err := f.ledger.Append(ctx, canonical.IdentityFields{
		ID: id, StudentName: "Ada", Course: course, IssuingInstitution: inst,
		Grade: "A", RollNumber: "R1", Year: 2024,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) logged(t *testing.T) []*verifylog.Entry {
	t.Helper()
	entries, err := f.log.Recent(ctx, 100)
	require.NoError(t, err)
	return entries
}

func document(t *testing.T, sig string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	data, err := watermark.PNGBytes(watermark.Embed(img, sig))
	require.NoError(t, err)
	return data
}

func payloadFor(rec *certledger.Record) string {
	return qr.Encode(qr.Payload{ID: rec.ID, Signature: rec.Hash})
}

// Scenario A: genuine certificate with a matching watermark.
func TestVerify_fullyAuthentic(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "IIT Delhi", "BTech CS")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec), Document: document(t, rec.Hash)})
	require.NoError(t, err)

	assert.Equal(t, verifylog.StatusValid, res.Status)
	assert.Equal(t, "The certificate is fully authentic. All cryptographic and content checks passed.", res.Reason)
	assert.Equal(t, "Passed (Record found for Ada)", res.Details.DBCheck.Summary())
	assert.Equal(t, "Passed (QR cryptographic signature is valid)", res.Details.SignatureCheck.Summary())
	assert.Equal(t, "Passed (Watermark cryptographic signature is valid)", res.Details.WatermarkCheck.Summary())
	assert.Equal(t, "Passed (IIT Delhi)", res.Details.InstitutionCheck.Summary())
	assert.Equal(t, "Passed (BTech CS)", res.Details.CourseCheck.Summary())

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, "C1", logs[0].CertificateID)
	assert.Equal(t, verifylog.StatusValid, logs[0].Status)
}

// Scenario B: the presented QR carries a forged signature.
func TestVerify_signatureMismatch(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "IIT Delhi", "BTech CS")

	forged := qr.Encode(qr.Payload{ID: rec.ID, Signature: "deadbeef"})
	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: forged})
	require.NoError(t, err)

	assert.Equal(t, verifylog.StatusInvalid, res.Status)
	assert.Equal(t, "The certificate is invalid. The QR code signature does not match the official record.", res.Reason)
	assert.Equal(t, verification.Failed, res.Details.SignatureCheck.Outcome)
	assert.Equal(t, "Failed (QR signature mismatch - document may be altered)", res.Details.SignatureCheck.Summary())
	// content checks still run for diagnostics
	assert.Equal(t, verification.Passed, res.Details.InstitutionCheck.Outcome)
	assert.Equal(t, verification.Passed, res.Details.CourseCheck.Outcome)
	assert.Equal(t, verification.NotPerformed, res.Details.WatermarkCheck.Outcome)

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, verifylog.StatusInvalid, logs[0].Status)
}

// Scenario C: the issuing institution has been blacklisted.
func TestVerify_blacklistedInstitution(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "Fake Univ", "BTech CS")
	_, err := f.blacklist.Add(ctx, "Fake Univ", "fraud")
	require.NoError(t, err)

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec), Document: document(t, rec.Hash)})
	require.NoError(t, err)

	assert.Equal(t, verifylog.StatusInvalid, res.Status)
	assert.Equal(t, "Verification failed: The issuing institution 'Fake Univ' has been blacklisted.", res.Reason)
	assert.Equal(t, verification.Passed, res.Details.DBCheck.Outcome)
	assert.Equal(t, verification.NotPerformed, res.Details.SignatureCheck.Outcome)
	assert.Equal(t, verification.NotPerformed, res.Details.WatermarkCheck.Outcome)
	assert.Equal(t, "Not Performed (Verification failed before this step)", res.Details.InstitutionCheck.Summary())
	assert.Len(t, f.logged(t), 1)
}

// Scenario D: the stored record was tampered with after issuance. The QR still
// carries the issuance hash, which is what the registry returns.
func TestVerify_afterLedgerTamper(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "IIT Delhi", "BTech CS")
	_, err := f.ledger.TamperRandom(ctx)
	require.NoError(t, err)

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.NoError(t, err)
	assert.Equal(t, verification.Passed, res.Details.SignatureCheck.Outcome)
	assert.Equal(t, "Passed (Record found for Ada (Tampered))", res.Details.DBCheck.Summary())

	report, err := f.ledger.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
}

func TestVerify_malformedQR(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: "garbage"})
	require.NoError(t, err)

	assert.Equal(t, verifylog.StatusInvalid, res.Status)
	assert.Equal(t, "The provided document does not contain a valid, scannable QR code.", res.Reason)
	assert.Equal(t, "Unknown", res.CertificateID)
	assert.Equal(t, "Not Performed (Invalid QR)", res.Details.DBCheck.Summary())
	assert.Equal(t, "Not Performed (Invalid QR)", res.Details.SignatureCheck.Summary())
	assert.Equal(t, "Not Performed", res.Details.WatermarkCheck.Summary())
	assert.Equal(t, "Not Performed (Verification failed before this step)", res.Details.CourseCheck.Summary())

	logs := f.logged(t)
	require.Len(t, logs, 1)
	assert.Equal(t, "Unknown", logs[0].CertificateID)
}

func TestVerify_notInRegistry(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: qr.Encode(qr.Payload{ID: "NOPE", Signature: "x"})})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusInvalid, res.Status)
	assert.Equal(t, "The certificate is invalid. It was not found in the central registry.", res.Reason)
	assert.Equal(t, "Failed (No record found for ID: NOPE)", res.Details.DBCheck.Summary())
	assert.Equal(t, "NOPE", res.CertificateID)
}

func TestVerify_noDocumentIsNeutralByDefault(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "NIT Trichy", "BTech AI")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusValid, res.Status)
	assert.Equal(t, "Not Performed (No document provided for watermark scan)", res.Details.WatermarkCheck.Summary())
}

func TestVerify_requireWatermarkPolicy(t *testing.T) {
	cfg := verification.DefaultConfig()
	cfg.RequireWatermark = true
	f := newFixture(t, cfg)
	rec := f.issue(t, "C1", "NIT Trichy", "BTech AI")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusPartiallyValid, res.Status)
	assert.Equal(t, "The QR code is valid, but other security checks failed.", res.Reason)
}

func TestVerify_unrecognisedDetails(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "Springfield College", "BA History")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec), Document: document(t, rec.Hash)})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusPartiallyValid, res.Status)
	assert.Equal(t,
		"Cryptographic signatures are valid, but the issuing institution is not recognized and the course is not recognized.",
		res.Reason)
	assert.Equal(t, "Failed (Institution 'Springfield College' is not on the approved list)", res.Details.InstitutionCheck.Summary())
}

func TestVerify_caseInsensitiveWhitelist(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "bits pilani", "btech mech engineering")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusValid, res.Status)
}

func TestVerify_watermarkFailures(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	rec := f.issue(t, "C1", "IIT Delhi", "Philosophy")

	res, err := f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec), Document: document(t, "0000")})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusPartiallyValid, res.Status)
	assert.Equal(t, "Failed (Watermark signature mismatch - document may be a counterfeit)", res.Details.WatermarkCheck.Summary())
	assert.Equal(t, "The QR code is valid, but the document's security watermark is invalid, the course is unrecognized.", res.Reason)

	res, err = f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec), Document: []byte("not an image")})
	require.NoError(t, err)
	assert.Equal(t, "Failed (No watermark found in document)", res.Details.WatermarkCheck.Summary())
	assert.Len(t, f.logged(t), 2)
}

type failingRegistry struct{}

func (failingRegistry) GetByID(context.Context, string) (*certledger.Record, error) {
	return nil, certledger.ErrPersistence
}

func TestVerify_registryErrorIsNotAVerdict(t *testing.T) {
	log := verifylog.NewMemoryStore()
	e := verification.NewEngine(failingRegistry{}, nil, log, verification.DefaultConfig(), zap.NewNop())
	sender := &recordingSender{}
	e.SetNotifier(verification.NewEmailNotifier(sender, "security@certguard.com"))

	rec := &certledger.Record{IdentityFields: canonical.IdentityFields{ID: "C1"}, Hash: "h"}
	res, err := e.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, certledger.ErrPersistence))

	entries, _ := log.Recent(ctx, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, "C1", entries[0].CertificateID)
	assert.Equal(t, verifylog.StatusInvalid, entries[0].Status)
	assert.Contains(t, entries[0].Reason, "Verification could not be completed")
	assert.Empty(t, sender.msgs)
}

type failingBlacklist struct{}

func (failingBlacklist) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("pg down")
}

func TestVerify_blacklistErrorIsLoggedOnce(t *testing.T) {
	l := certledger.New()
	rec, err := l.Append(ctx, canonical.IdentityFields{ID: "C1", IssuingInstitution: "IIT", Course: "BTech CS"})
	require.NoError(t, err)
	log := verifylog.NewMemoryStore()
	e := verification.NewEngine(l, failingBlacklist{}, log, verification.DefaultConfig(), zap.NewNop())

	_, err = e.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg down")

	entries, _ := log.Recent(ctx, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, verifylog.StatusInvalid, entries[0].Status)
	assert.Contains(t, entries[0].Reason, "pg down")
}

type failingLog struct{}

func (failingLog) Append(context.Context, *verifylog.Entry) error { return errors.New("mongo down") }

func TestVerify_logFailureDoesNotMaskVerdict(t *testing.T) {
	l := certledger.New()
	rec, _ := l.Append(ctx, canonical.IdentityFields{ID: "C1", IssuingInstitution: "IIT", Course: "BTech CS"})
	e := verification.NewEngine(l, nil, failingLog{}, verification.DefaultConfig(), zap.NewNop())

	res, err := e.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	require.NoError(t, err)
	assert.Equal(t, verifylog.StatusValid, res.Status)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (s *recordingSender) Send(_ context.Context, m email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func TestVerify_notifiesOnInvalid(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	sender := &recordingSender{}
	f.engine.SetNotifier(verification.NewEmailNotifier(sender, "security@certguard.com"))
	rec := f.issue(t, "C1", "IIT Delhi", "BTech CS")

	_, _ = f.engine.Verify(ctx, verification.Request{QRPayload: payloadFor(rec)})
	assert.Empty(t, sender.msgs)

	_, _ = f.engine.Verify(ctx, verification.Request{QRPayload: "bogus"})
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "[CertGuard] Forgery alert for Unknown", sender.msgs[0].Subject)
	assert.Contains(t, sender.msgs[0].Body, "Not Performed (Invalid QR)")
}

type failingSender struct{}

func (failingSender) Send(context.Context, email.Message) error {
	return errors.New("smtp down")
}

func TestNotifiers_callsEveryNotifier(t *testing.T) {
	ok := &recordingSender{}
	n := verification.Notifiers{
		verification.NewEmailNotifier(failingSender{}, "a@certguard.com"),
		verification.NewEmailNotifier(ok, "b@certguard.com"),
	}

	err := n.NotifyForgery(ctx, &verification.Result{Status: verifylog.StatusInvalid, CertificateID: "X"})
	assert.ErrorContains(t, err, "smtp down")
	require.Len(t, ok.msgs, 1)
	assert.Equal(t, []string{"b@certguard.com"}, ok.msgs[0].To)
}

func TestVerifyBatch_preservesOrder(t *testing.T) {
	f := newFixture(t, verification.DefaultConfig())
	a := f.issue(t, "A", "IIT Delhi", "BTech CS")
	b := f.issue(t, "B", "DTU", "BTech DS")

	reqs := []verification.Request{
		{QRPayload: payloadFor(a)},
		{QRPayload: "bad"},
		{QRPayload: payloadFor(b)},
	}
	results, err := f.engine.VerifyBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "A", results[0].CertificateID)
	assert.Equal(t, verifylog.StatusInvalid, results[1].Status)
	assert.Equal(t, "B", results[2].CertificateID)
	assert.Len(t, f.logged(t), 3)
}
