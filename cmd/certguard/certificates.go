package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/certguard/certguard/pkg/client"
)

// ── login ────────────────────────────────────────────────────────────────────

var (
	loginEmail    string
	loginPassword string
	loginRole     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a role and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		token, err := c.Login(context.Background(), loginEmail, loginPassword, loginRole)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if err := client.SaveToken(sessionDir, token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s (%s)\n", loginEmail, loginRole)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().StringVar(&loginRole, "role", "Institution", "role: Admin, Institution or Verifier")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		s, err := c.Session(context.Background())
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, s)
		}
		fmt.Fprintf(out, "%s (%s), session expires %s\n", s.Email, s.Role, s.ExpiresAt.Local().Format(time.DateTime))
		return nil
	},
}

// ── issue / preview ──────────────────────────────────────────────────────────

var (
	certFields    client.Fields
	issueImage    string
	issueImageOut string
	issueQROut    string
)

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&certFields.ID, "id", "", "certificate id")
	cmd.Flags().StringVar(&certFields.StudentName, "name", "", "student name")
	cmd.Flags().StringVar(&certFields.Course, "course", "", "course")
	cmd.Flags().StringVar(&certFields.IssuingInstitution, "institution", "", "issuing institution")
	cmd.Flags().StringVar(&certFields.Grade, "grade", "", "grade")
	cmd.Flags().StringVar(&certFields.RollNumber, "roll", "", "roll number")
	cmd.Flags().IntVar(&certFields.Year, "year", 0, "year of completion")
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a certificate onto the ledger",
	Long: `issue appends a certificate to the ledger and prints its signature.

With --image the rendered certificate is watermarked with the signature and
written to --image-out. The QR code PNG is written to --qr-out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.IssueRequest{Fields: certFields}
		if issueImage != "" {
			uri, err := fileDataURI(issueImage)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			req.ImageDataURI = uri
		}

		c, err := newClient(true)
		if err != nil {
			return err
		}
		cert, err := c.Issue(context.Background(), req)
		if err != nil {
			return fmt.Errorf("issue certificate: %w", err)
		}

		if cert.WatermarkedImage != "" && issueImageOut != "" {
			if err := writeDataURI(issueImageOut, cert.WatermarkedImage); err != nil {
				return fmt.Errorf("write watermarked image: %w", err)
			}
		}
		if cert.QRImage != "" && issueQROut != "" {
			if err := writeDataURI(issueQROut, cert.QRImage); err != nil {
				return fmt.Errorf("write QR image: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, cert)
		}
		fmt.Fprintf(out, "✓ Certificate issued\n\n")
		fmt.Fprintf(out, "  ID:        %s\n", cert.Certificate.ID)
		fmt.Fprintf(out, "  Seq:       %d\n", cert.Certificate.Seq)
		fmt.Fprintf(out, "  Signature: %s\n", cert.Certificate.Hash)
		fmt.Fprintf(out, "  QR:        %s\n", cert.QRPayload)
		if cert.WatermarkTruncated {
			fmt.Fprintln(out, "\n  warning: image too small, watermark was truncated")
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Compute the signature a certificate would be issued with",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		p, err := c.Preview(context.Background(), certFields)
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, p)
		}
		fmt.Fprintf(out, "Signature: %s\n", p.Hash)
		fmt.Fprintf(out, "QR:        %s\n", p.QRPayload)
		return nil
	},
}

func init() {
	addFieldFlags(issueCmd)
	addFieldFlags(previewCmd)
	issueCmd.Flags().StringVar(&issueImage, "image", "", "certificate image to watermark (PNG, JPEG or GIF)")
	issueCmd.Flags().StringVar(&issueImageOut, "image-out", "certificate.png", "where to write the watermarked image")
	issueCmd.Flags().StringVar(&issueQROut, "qr-out", "", "where to write the QR code PNG")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyDocument string

var verifyCmd = &cobra.Command{
	Use:   "verify <qr-payload|@file>",
	Short: "Verify a certificate from its QR payload",
	Long: `verify checks a certificate against the registry.

The argument is the scanned QR content: a data URI, the raw JSON, or @path
to read it from a file. With --document the certificate image is scanned for
its invisible watermark as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readArg(args[0])
		if err != nil {
			return err
		}
		req := client.VerifyRequest{QRDataURI: payload}
		if verifyDocument != "" {
			if req.DocumentDataURI, err = fileDataURI(verifyDocument); err != nil {
				return fmt.Errorf("read document: %w", err)
			}
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		v, err := c.Verify(context.Background(), req)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}
		fmt.Fprintf(out, "Status:      %s\n", v.Status)
		fmt.Fprintf(out, "Reason:      %s\n", v.Reason)
		fmt.Fprintf(out, "Certificate: %s\n\n", v.CertificateID)
		for _, line := range []struct {
			name  string
			check client.Check
		}{
			{"Registry", v.Details.DBCheck},
			{"Signature", v.Details.SignatureCheck},
			{"Watermark", v.Details.WatermarkCheck},
			{"Institution", v.Details.InstitutionCheck},
			{"Course", v.Details.CourseCheck},
		} {
			fmt.Fprintf(out, "  %-12s %s\n", line.name+":", line.check.Summary)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyDocument, "document", "", "certificate image to scan for the watermark")
}

// readArg returns arg, or the trimmed contents of the file when arg is @path.
func readArg(arg string) (string, error) {
	path, ok := strings.CutPrefix(arg, "@")
	if !ok {
		return arg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
