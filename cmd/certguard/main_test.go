package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certguard/certguard/internal/qr"
	"github.com/certguard/certguard/internal/watermark"
	"github.com/certguard/certguard/pkg/client"
)

// execute runs the root command with args and returns its output. Package
// flag variables survive between runs, so the shared ones are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	serverURL, sessionDir, tokenFlag, cfgFile = "", "", "", ""
	jsonOutput, watermarkStrict = false, false
	qrPNGOut = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, dir string, size int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	path := filepath.Join(dir, "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestReadArg(t *testing.T) {
	got, err := readArg(`{"id":"A"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"A"}`, got)

	path := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(path, []byte("  data:text/plain;base64,e30=\n"), 0o600))
	got, err = readArg("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "data:text/plain;base64,e30=", got)

	_, err = readArg("@" + filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFileDataURI_sniffsMIME(t *testing.T) {
	path := writePNG(t, t.TempDir(), 4)

	uri, err := fileDataURI(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"), uri)

	want, _ := os.ReadFile(path)
	got, err := watermark.DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWatermarkCommands_roundTrip(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, 32)
	outPath := filepath.Join(dir, "out.png")

	out, err := execute(t, "watermark", "embed", in, "abc123", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, outPath)

	out, err = execute(t, "watermark", "extract", outPath)
	require.NoError(t, err)
	assert.Equal(t, "abc123\n", out)
}

func TestWatermarkEmbed_strictRejectsSmallImage(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, 4)

	_, err := execute(t, "watermark", "embed", "--strict", in, strings.Repeat("f", 64), filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, watermark.ErrCapacityExceeded)
}

func TestQRCommands(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "qr.png")

	out, err := execute(t, "qr", "encode", "CERT-1", "deadbeef", "--png", pngPath)
	require.NoError(t, err)
	payload := strings.TrimSpace(out)
	assert.Equal(t, qr.Encode(qr.Payload{ID: "CERT-1", Signature: "deadbeef"}), payload)

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out, err = execute(t, "qr", "decode", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "CERT-1")
	assert.Contains(t, out, "deadbeef")

	_, err = execute(t, "qr", "decode", "not a payload")
	assert.ErrorIs(t, err, qr.ErrMalformedPayload)
}

func TestLoginThenVerify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("GET /api/v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"email": "admin@certguard.io", "role": "Admin"})
	})
	mux.HandleFunc("POST /api/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "Valid",
			"reason":        "All checks passed.",
			"certificateId": "CERT-1",
			"details": map[string]any{
				"signatureCheck": map[string]string{"outcome": "passed", "summary": "Passed"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	dir := t.TempDir()

	out, err := execute(t, "--server", srv.URL, "--session-dir", dir,
		"login", "--email", "admin@certguard.io", "--password", "pw", "--role", "Admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin@certguard.io")

	tok, err := client.LoadToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	out, err = execute(t, "--server", srv.URL, "--session-dir", dir, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin@certguard.io (Admin)")

	out, err = execute(t, "--server", srv.URL, "verify", `{"id":"CERT-1","signature":"ab"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:      Valid")
	assert.Contains(t, out, "Signature:   Passed")
}

func TestAdminCommand_requiresSession(t *testing.T) {
	_, err := execute(t, "--server", "http://127.0.0.1:1", "--session-dir", t.TempDir(), "ledger", "overview")
	assert.ErrorIs(t, err, client.ErrNoSession)
}
