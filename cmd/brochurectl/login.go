package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/repkit/brochuresync/internal/gateway"
	"github.com/repkit/brochuresync/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login <user-id>",
	Short: "Log in and claim this device as the active session",
	Long: `Register this device as the user's active session.

The server allows one active session per user. If another device held
the session, it is logged out and named here once so you know which
device it was.

The credential is saved to the config file for later commands.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		userID := args[0]

		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fatal("reading password: %v", err)
		}
		password := strings.TrimSpace(string(pwBytes))
		if password == "" {
			fatal("password must not be empty")
		}

		deviceID := cfg.DeviceID
		if deviceID == "" {
			deviceID = newDeviceID()
		}

		gw := gateway.NewHTTPClient(cfg.ServerURL, password, nil)
		info, err := session.Register(context.Background(), gw, userID, deviceID, cfg.DeviceLabel)
		if err != nil {
			fatal("login failed: %v", err)
		}

		if info.Superseded {
			label := info.SupersededLabel
			if label == "" {
				label = "another device"
			}
			fmt.Printf("%s You were logged in on %s; that session has been signed out.\n",
				renderWarn("⚠"), label)
		}

		if err := persistLogin(cfg.DataDir, userID, deviceID, password); err != nil {
			fatal("saving credentials: %v", err)
		}

		fmt.Printf("%s Logged in as %s on %s\n", renderPass("✓"), userID, cfg.DeviceLabel)
	},
}

func newDeviceID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		fatal("generating device id: %v", err)
	}
	return "dev-" + hex.EncodeToString(buf)
}

// persistLogin records the identity in the config file, preserving any
// settings already there.
func persistLogin(dataDir, userID, deviceID, token string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dataDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		// A fresh install has no config file yet.
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("read existing config: %w", err)
		}
	}

	v.Set("user_id", userID)
	v.Set("device_id", deviceID)
	v.Set("token", token)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0600)
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
