package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repkit/brochuresync/internal/registry"
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage the saved-brochure list",
}

// openRegistry wires up everything the saved-list commands need.
func openRegistry() (*registry.Registry, func()) {
	cfg := loadConfig()
	requireUser(cfg)

	logs := newLogging(cfg)
	st := openStore(cfg, logs)
	gw := newGateway(cfg)

	reg, err := registry.Open(cfg.DataDir, cfg.UserID, gw, st, logs.Logger("saved"))
	if err != nil {
		fatal("opening saved list: %v", err)
	}
	return reg, func() { logs.Close() }
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved brochures, most recently viewed first",
	Run: func(cmd *cobra.Command, args []string) {
		reg, closeLogs := openRegistry()
		defer closeLogs()

		records := reg.List()
		if len(records) == 0 {
			fmt.Println("No saved brochures")
			return
		}

		fmt.Printf("\n%s\n\n", titleStyle.Render(fmt.Sprintf("Saved brochures (%d)", len(records))))
		for _, rec := range records {
			title := rec.CustomTitle
			if title == "" {
				title = rec.CatalogTitle
			}
			if title == "" {
				title = rec.BrochureID
			}

			marks := ""
			if rec.ContentPending {
				marks += " " + renderDim("(content not downloaded)")
			}
			if rec.ServerPending {
				marks += " " + renderWarn("(not yet on server)")
			}

			fmt.Printf("  %-36s %s%s\n", rec.BrochureID, title, marks)
			if rec.CatalogCategory != "" {
				fmt.Printf("  %-36s %s\n", "", renderDim(rec.CatalogCategory))
			}
		}
		fmt.Println()
	},
}

var savedRenameCmd = &cobra.Command{
	Use:   "rename <brochure-id> <title>",
	Short: "Set a custom display title for a saved brochure",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		reg, closeLogs := openRegistry()
		defer closeLogs()

		if err := reg.Rename(context.Background(), args[0], args[1]); err != nil {
			fatal("renaming %s: %v", args[0], err)
		}
		fmt.Printf("%s Renamed %s to %q\n", renderPass("✓"), args[0], args[1])
	},
}

var savedRemoveCmd = &cobra.Command{
	Use:   "remove <brochure-id>",
	Short: "Remove a brochure from the saved list",
	Long: `Remove a brochure and its local content.

Works offline: the removal takes effect immediately on this device and
is reported to the server on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reg, closeLogs := openRegistry()
		defer closeLogs()

		if err := reg.Remove(context.Background(), args[0]); err != nil {
			fatal("removing %s: %v", args[0], err)
		}
		fmt.Printf("%s Removed %s\n", renderPass("✓"), args[0])
	},
}

var savedFetchCmd = &cobra.Command{
	Use:   "fetch <brochure-id>",
	Short: "Download a saved brochure's content now",
	Long: `Fetch the content document for a saved brochure.

Normally content downloads lazily the first time a brochure is opened;
this forces the download, e.g. before going somewhere without signal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reg, closeLogs := openRegistry()
		defer closeLogs()

		if err := reg.EnsureContent(context.Background(), args[0]); err != nil {
			fatal("fetching %s: %v", args[0], err)
		}
		fmt.Printf("%s Content available for %s\n", renderPass("✓"), args[0])
	},
}

func init() {
	savedCmd.AddCommand(savedListCmd)
	savedCmd.AddCommand(savedRenameCmd)
	savedCmd.AddCommand(savedRemoveCmd)
	savedCmd.AddCommand(savedFetchCmd)
	rootCmd.AddCommand(savedCmd)
}
