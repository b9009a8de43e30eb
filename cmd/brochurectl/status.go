package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repkit/brochuresync/internal/journal"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and recent operations",
	Long: `Display the local library's sync state.

Shows:
  - Brochures with unsynced local changes
  - Recent push/pull operations from the sync journal
  - Failed operations awaiting retry`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireUser(cfg)

		logs := newLogging(cfg)
		defer logs.Close()

		st := openStore(cfg, logs)

		fmt.Printf("\n%s\n\n", titleStyle.Render("Sync Status"))
		fmt.Printf("Documents: %s\n", st.Dir())

		modified := st.ListModified()
		if len(modified) == 0 {
			fmt.Printf("Pending:   %s\n", renderPass("everything synced"))
		} else {
			fmt.Printf("Pending:   %s\n", renderWarn(fmt.Sprintf("%d brochure(s) with local changes", len(modified))))
			for _, id := range modified {
				fmt.Printf("   %s\n", id)
			}
		}

		// The journal may not exist yet if no pass has run.
		if _, err := os.Stat(cfg.JournalPath()); err != nil {
			fmt.Println()
			return
		}

		jr, err := journal.Open(cfg.JournalPath())
		if err != nil {
			fatal("opening sync journal: %v", err)
		}
		defer jr.Close()

		ctx := context.Background()

		failed, err := jr.Failed(ctx)
		if err != nil {
			fatal("reading sync journal: %v", err)
		}
		if len(failed) > 0 {
			fmt.Printf("\n%s\n", titleStyle.Render("Failed (will retry)"))
			for _, op := range failed {
				fmt.Printf("  %s %s %s %s\n", renderErr("✗"), arrow(op.Direction), op.DocID, renderDim(op.Error))
			}
		}

		recent, err := jr.Recent(ctx, 10)
		if err != nil {
			fatal("reading sync journal: %v", err)
		}
		if len(recent) > 0 {
			fmt.Printf("\n%s\n", titleStyle.Render("Recent operations"))
			for _, op := range recent {
				fmt.Printf("  %s %s %-24s %s %s\n",
					statusMark(op.Status), arrow(op.Direction), op.DocID,
					renderDim(op.EnqueuedAt.Local().Format("2006-01-02 15:04:05")),
					renderDim(string(op.Status)))
			}
		}
		fmt.Println()
	},
}

func arrow(d journal.Direction) string {
	if d == journal.DirectionPush {
		return pushArrow
	}
	return pullArrow
}

func statusMark(s journal.Status) string {
	switch s {
	case journal.StatusCompleted:
		return renderPass("✓")
	case journal.StatusFailed:
		return renderErr("✗")
	default:
		return renderDim("·")
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
