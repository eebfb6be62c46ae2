package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession is returned by LoadToken when no token has been saved.
var ErrNoSession = errors.New("no saved session; run 'certguard login' first")

// tokenFile is the name of the saved session token inside a session dir.
const tokenFile = "token"

// SaveToken writes a session token to dir/token with owner-only permissions.
//
//	err := client.SaveToken(os.ExpandEnv("$HOME/.certguard"), token)
func SaveToken(dir, token string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokenFile), []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session token: %w", err)
	}
	return nil
}

// LoadToken reads the token saved by SaveToken.
func LoadToken(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, tokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// NewFromSessionDir creates a Client authenticated with the token saved in dir.
func NewFromSessionDir(baseURL, dir string, opts ...Option) (*Client, error) {
	token, err := LoadToken(dir)
	if err != nil {
		return nil, err
	}
	return New(baseURL, append([]Option{WithBearerToken(token)}, opts...)...)
}
