package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/certguard/certguard/internal/email"
)

// EmailNotifier mails forgery alerts to a fixed set of recipients.
type EmailNotifier struct {
	sender     email.Sender
	recipients []string
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(sender email.Sender, recipients ...string) *EmailNotifier {
	return &EmailNotifier{sender: sender, recipients: recipients}
}

// NotifyForgery implements Notifier.
func (n *EmailNotifier) NotifyForgery(ctx context.Context, res *Result) error {
	if len(n.recipients) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "A certificate failed verification at %s.\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Certificate: %s\n", res.CertificateID)
	fmt.Fprintf(&b, "Reason: %s\n\n", res.Reason)
	d := res.Details
	for _, line := range []struct {
		name string
		c    CheckResult
	}{
		{"Registry", d.DBCheck},
		{"Signature", d.SignatureCheck},
		{"Watermark", d.WatermarkCheck},
		{"Institution", d.InstitutionCheck},
		{"Course", d.CourseCheck},
	} {
		fmt.Fprintf(&b, "  %-12s %s\n", line.name+":", line.c.Summary())
	}

	return n.sender.Send(ctx, email.Message{
		To:      n.recipients,
		Subject: "[CertGuard] Forgery alert for " + res.CertificateID,
		Body:    b.String(),
	})
}

// Notifiers fans a forgery alert out to several notifiers. Every notifier is
// called; their errors are joined.
type Notifiers []Notifier

// NotifyForgery implements Notifier.
func (ns Notifiers) NotifyForgery(ctx context.Context, res *Result) error {
	var errs []error
	for _, n := range ns {
		if err := n.NotifyForgery(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
