package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repkit/brochuresync/internal/config"
	"github.com/repkit/brochuresync/internal/gateway"
	"github.com/repkit/brochuresync/internal/logging"
	"github.com/repkit/brochuresync/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "brochurectl",
	Short: "Offline-first brochure sync for field sales devices",
	Long: `brochurectl keeps a device's brochure library in sync with the server.

Brochure documents live as local files and every edit lands locally
first; the sync engine pushes and pulls in the background whenever the
device has connectivity. The tool also manages the user's saved-brochure
list and the login session.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data_dir>/config.yaml)")
}

// fatal prints an error and exits, matching the style of every command
// in this tool.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("loading config: %v", err)
	}
	return cfg
}

func requireUser(cfg *config.Config) {
	if cfg.UserID == "" {
		fatal("no user configured; run 'brochurectl login' first")
	}
}

func newGateway(cfg *config.Config) *gateway.HTTPClient {
	return gateway.NewHTTPClient(cfg.ServerURL, cfg.Token, nil)
}

func openStore(cfg *config.Config, logs *logging.Factory) *store.Store {
	st, err := store.Open(cfg.DocumentsDir(), logs.Logger("store"))
	if err != nil {
		fatal("opening content store: %v", err)
	}
	return st
}

func newLogging(cfg *config.Config) *logging.Factory {
	return logging.New(logging.Options{
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSize,
		Backups:   cfg.LogBackups,
	})
}
