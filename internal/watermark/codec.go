package watermark

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"io"
	"strings"
)

// MaxPixels bounds the dimensions of any image this package decodes.
const MaxPixels = 25_000_000

var (
	// ErrInvalidDataURI is returned for data URIs without a base64 payload.
	ErrInvalidDataURI = errors.New("invalid data URI")

	// ErrImageTooLarge is returned for images whose header declares more
	// than MaxPixels pixels. Nothing beyond the header is decoded.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// EncodePNG writes img losslessly.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	return enc.Encode(w, img)
}

// PNGBytes is EncodePNG into a byte slice.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes a PNG, GIF or JPEG image. A JPEG never carries a
// surviving watermark but is accepted so callers get "absent" rather than an
// error. The header is checked against MaxPixels before any pixel data is
// allocated.
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// ExtractFromBytes decodes data and extracts its payload. Undecodable input
// is reported as no watermark.
func ExtractFromBytes(data []byte) (string, bool) {
	img, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	return Extract(img)
}

// EmbedBytes decodes data, embeds signature and returns PNG bytes.
// With strict set, over-capacity payloads fail with ErrCapacityExceeded.
func EmbedBytes(data []byte, signature string, strict bool) ([]byte, error) {
	img, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out image.Image
	if strict {
		out, err = EmbedStrict(img, signature)
		if err != nil {
			return nil, err
		}
	} else {
		out = Embed(img, signature)
	}
	return PNGBytes(out)
}

// DecodeDataURI returns the bytes of a "data:<mime>;base64,<payload>" URI.
// A bare base64 string is accepted as well.
func DecodeDataURI(uri string) ([]byte, error) {
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		i := strings.IndexByte(uri, ',')
		if i < 0 {
			return nil, ErrInvalidDataURI
		}
		if !strings.HasSuffix(uri[:i], ";base64") {
			return nil, fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURI)
		}
		payload = uri[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	return b, nil
}

// EncodeDataURI frames data as a base64 data URI with the given MIME type.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
