package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/certguard/certguard/internal/watermark"
	"github.com/certguard/certguard/pkg/client"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	cfgFile    string
	sessionDir string
	tokenFlag  string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certguard",
	Short: "CertGuard academic certificate CLI",
	Long: `certguard is the command-line interface for a CertGuard server.

It issues and verifies academic certificates, administers the certificate
ledger and blacklist, and embeds or extracts invisible watermarks locally.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		home, _ := os.UserHomeDir()
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".certguard"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("certguard")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if sessionDir == "" {
			sessionDir = viper.GetString("session_dir")
		}
		if sessionDir == "" {
			sessionDir = filepath.Join(home, ".certguard")
		}
		if tokenFlag == "" {
			tokenFlag = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.certguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "CertGuard server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "directory holding the saved session token (default ~/.certguard)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (overrides the saved session)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON output")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(blacklistCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(watermarkCmd)
	rootCmd.AddCommand(qrCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient returns an unauthenticated client, or one carrying the session
// token when authenticated is true.
func newClient(authenticated bool) (*client.Client, error) {
	if !authenticated {
		return client.New(serverURL)
	}
	if tokenFlag != "" {
		return client.New(serverURL, client.WithBearerToken(tokenFlag))
	}
	return client.NewFromSessionDir(serverURL, sessionDir)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fileDataURI reads path and frames it as a data URI, sniffing the MIME type.
func fileDataURI(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := http.DetectContentType(b)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return watermark.EncodeDataURI(mime, b), nil
}

// writeDataURI decodes a data URI and writes its bytes to path.
func writeDataURI(path, uri string) error {
	b, err := watermark.DecodeDataURI(uri)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the certguard CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "certguard %s\n", version)
	},
}
