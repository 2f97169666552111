// Package cmd implements the clawpanel command line client.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawpanel/clawpanel/internal/config"
	"github.com/clawpanel/clawpanel/internal/version"
)

var (
	configPath string
	apiURL     string
	jwtToken   string
	adminToken string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "clawpanel-cli",
	Short: "Watch and drive the clawpanel channel bridge",
	Long: `Command line client for a running clawpanel server.

  clawpanel-cli status                 # connected flag and identity per channel
  clawpanel-cli watch                  # follow the live activity log
  clawpanel-cli login wechat --qr      # resolve login, print the pairing QR
  clawpanel-cli send qq 12345 hello    # send a text message`,
	Version:       version.GetInfo(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", defaultConfig, "Path to config.toml (used for the default API address and admin token)")
	flags.StringVar(&apiURL, "api-url", "", "API server base URL (e.g. http://127.0.0.1:8080)")
	flags.StringVar(&jwtToken, "jwt", "", "JWT token; obtained with the admin token when empty")
	flags.StringVar(&adminToken, "admin-token", "", "Admin token (or set CLAWPANEL_ADMIN_TOKEN)")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.SetVersionTemplate("clawpanel-cli {{.Version}}\n")

	rootCmd.AddCommand(statusCmd, watchCmd, loginCmd, sendCmd)
}
