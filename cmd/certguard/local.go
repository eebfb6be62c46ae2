package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/watermark"
)

// These commands run locally and never contact the server.

// ── watermark ────────────────────────────────────────────────────────────────

var watermarkStrict bool

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Embed or extract an invisible image watermark",
}

var watermarkEmbedCmd = &cobra.Command{
	Use:   "embed <image> <signature> <out.png>",
	Short: "Hide a signature in an image and write it as PNG",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, signature, outPath := args[0], args[1], args[2]
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		png, err := watermark.EmbedBytes(data, signature, watermarkStrict)
		if err != nil {
			return fmt.Errorf("embed watermark: %w", err)
		}
		if err := os.WriteFile(outPath, png, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Watermarked image written to %s\n", outPath)
		return nil
	},
}

var watermarkExtractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Print the signature hidden in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		payload, ok := watermark.ExtractFromBytes(data)
		if !ok {
			return fmt.Errorf("no watermark found in %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), payload)
		return nil
	},
}

func init() {
	watermarkEmbedCmd.Flags().BoolVar(&watermarkStrict, "strict", false, "fail instead of truncating when the image is too small")
	watermarkCmd.AddCommand(watermarkEmbedCmd)
	watermarkCmd.AddCommand(watermarkExtractCmd)
}

// ── qr ───────────────────────────────────────────────────────────────────────

var (
	qrPNGOut string
	qrSize   int
)

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Encode or decode certificate QR payloads",
}

var qrEncodeCmd = &cobra.Command{
	Use:   "encode <certificate-id> <signature>",
	Short: "Print the QR payload for a certificate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := qr.Payload{ID: args[0], Signature: args[1]}
		if qrPNGOut != "" {
			png, err := qr.PNG(p, qrSize)
			if err != nil {
				return err
			}
			if err := os.WriteFile(qrPNGOut, png, 0o644); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), qr.Encode(p))
		return nil
	},
}

var qrDecodeCmd = &cobra.Command{
	Use:   "decode <payload|@file>",
	Short: "Decode a QR payload into its certificate id and signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readArg(args[0])
		if err != nil {
			return err
		}
		p, err := qr.Decode(raw)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, p)
		}
		fmt.Fprintf(out, "ID:        %s\nSignature: %s\n", p.ID, p.Signature)
		return nil
	},
}

func init() {
	qrEncodeCmd.Flags().StringVar(&qrPNGOut, "png", "", "also write the QR code image to this file")
	qrEncodeCmd.Flags().IntVar(&qrSize, "size", qr.DefaultSize, "QR image edge length in pixels")
	qrCmd.AddCommand(qrEncodeCmd)
	qrCmd.AddCommand(qrDecodeCmd)
}
