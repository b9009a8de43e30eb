package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/repkit/brochuresync/internal/journal"
	"github.com/repkit/brochuresync/internal/registry"
	"github.com/repkit/brochuresync/internal/scheduler"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync pass now",
	Long: `Force a full reconciliation pass immediately.

Pushes every locally-modified brochure, then pulls any brochure the
server has a materially newer copy of. The saved-brochure list is
reconciled first. Failures are reported per brochure; a failed brochure
stays marked for the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireUser(cfg)

		logs := newLogging(cfg)
		defer logs.Close()

		st := openStore(cfg, logs)
		gw := newGateway(cfg)

		jr, err := journal.Open(cfg.JournalPath())
		if err != nil {
			fatal("opening sync journal: %v", err)
		}
		defer jr.Close()
		if err := jr.InitSchema(); err != nil {
			fatal("initializing sync journal: %v", err)
		}

		reg, err := registry.Open(cfg.DataDir, cfg.UserID, gw, st, logs.Logger("saved"))
		if err != nil {
			fatal("opening saved list: %v", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		fmt.Printf("Syncing %d modified brochure(s)...\n", len(st.ListModified()))
		start := time.Now()

		if err := reg.SyncWithServer(ctx); err != nil {
			fmt.Printf("%s Saved-list sync failed: %v\n", renderWarn("⚠"), err)
		}

		engine := scheduler.New(st, gw, jr, cfg.UserID, &scheduler.Config{
			Threshold:   cfg.StalenessThreshold,
			Parallelism: cfg.Parallelism,
			Logger:      logs.Logger("sync"),
		})
		if err := engine.SyncNow(ctx); err != nil {
			fatal("sync failed: %v", err)
		}

		fmt.Printf("%s Sync complete in %v\n", renderPass("✓"), time.Since(start).Round(time.Millisecond))
		if remaining := st.ListModified(); len(remaining) > 0 {
			fmt.Printf("%s %d brochure(s) still pending:\n", renderWarn("⚠"), len(remaining))
			for _, id := range remaining {
				fmt.Printf("   %s\n", id)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
