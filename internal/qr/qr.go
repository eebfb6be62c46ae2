// Package qr encodes the certificate payload carried by the QR code printed
// on every issued certificate.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrMalformedPayload is returned for any payload that cannot be decoded into
// a certificate id and signature.
var ErrMalformedPayload = errors.New("malformed QR payload")

// MIME is the media type used to frame the payload as a data URI.
const MIME = "text/plain"

// DefaultSize is the default edge length in pixels of rendered QR images.
const DefaultSize = 256

// Payload is the content of a certificate QR code.
type Payload struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`
}

// JSON returns the raw JSON content, as a camera scan of the code yields it.
func (p Payload) JSON() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// Encode frames the payload as "data:text/plain;base64,<json>".
func Encode(p Payload) string {
	return "data:" + MIME + ";base64," + base64.StdEncoding.EncodeToString([]byte(p.JSON()))
}

// Decode parses a framed payload. Raw JSON is accepted as well so that the
// text of a scanned code can be passed through unchanged.
func Decode(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	switch {
	case strings.HasPrefix(s, "{"):
		raw = []byte(s)
	default:
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return Payload{}, fmt.Errorf("%w: missing data URI separator", ErrMalformedPayload)
		}
		b, err := base64.StdEncoding.DecodeString(s[i+1:])
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		raw = b
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if p.ID == "" || p.Signature == "" {
		return Payload{}, fmt.Errorf("%w: missing id or signature", ErrMalformedPayload)
	}
	return p, nil
}

// PNG renders the payload's JSON content as a QR code image.
func PNG(p Payload, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(p.JSON(), qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
