package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/repkit/brochuresync/internal/journal"
	"github.com/repkit/brochuresync/internal/presence"
	"github.com/repkit/brochuresync/internal/registry"
	"github.com/repkit/brochuresync/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine in the foreground",
	Long: `Run the background sync engine until interrupted.

The engine:
  1. Reconciles the saved-brochure list with the server
  2. Watches the document directory and syncs 30s after edits settle
  3. Syncs every 10 minutes as a backstop
  4. Tracks connectivity over a WebSocket and resumes when it returns

The host app signals lifecycle transitions: SIGUSR1 marks the app
foregrounded (sync soon, rate-limited), SIGUSR2 marks it backgrounded
(push local changes, skip pulls).

Press Ctrl+C to stop; in-flight pushes are allowed to finish.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		requireUser(cfg)

		logs := newLogging(cfg)
		defer logs.Close()

		st := openStore(cfg, logs)

		jr, err := journal.Open(cfg.JournalPath())
		if err != nil {
			fatal("opening sync journal: %v", err)
		}
		defer jr.Close()
		if err := jr.InitSchema(); err != nil {
			fatal("initializing sync journal: %v", err)
		}

		gw := newGateway(cfg)

		reg, err := registry.Open(cfg.DataDir, cfg.UserID, gw, st, logs.Logger("saved"))
		if err != nil {
			fatal("opening saved list: %v", err)
		}

		engine := scheduler.New(st, gw, jr, cfg.UserID, &scheduler.Config{
			IdleDelay:             cfg.IdleDelay,
			ForegroundMinInterval: cfg.ForegroundMinInterval,
			BackstopInterval:      cfg.BackstopInterval,
			Threshold:             cfg.StalenessThreshold,
			Parallelism:           cfg.Parallelism,
			Logger:                logs.Logger("sync"),
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine.Start(ctx)

		watcher, err := scheduler.NewDocWatcher(st.Dir(), engine, logs.Logger("watch"))
		if err != nil {
			fatal("starting document watcher: %v", err)
		}
		if err := watcher.Start(); err != nil {
			fatal("starting document watcher: %v", err)
		}

		monitor := presence.NewMonitor(presence.Config{
			URL:    cfg.PresenceURL,
			Logger: logs.Logger("presence"),
			OnChange: func(s presence.State) {
				if s == presence.StateOnline {
					engine.Notify(scheduler.EventOnline)
				} else {
					engine.Notify(scheduler.EventOffline)
				}
			},
		})
		monitor.Start(ctx)

		lifecycle := make(chan os.Signal, 4)
		signal.Notify(lifecycle, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			for sig := range lifecycle {
				if sig == syscall.SIGUSR1 {
					engine.Notify(scheduler.EventForeground)
				} else {
					engine.Notify(scheduler.EventBackground)
				}
			}
		}()
		defer signal.Stop(lifecycle)

		// Reconcile the saved list once at startup; per-document sync
		// picks up from there.
		if err := reg.SyncWithServer(ctx); err != nil {
			logs.Logger("saved").Printf("Startup saved-list sync failed: %v", err)
		}

		fmt.Printf("%s Sync engine running for user %s\n", renderPass("✓"), cfg.UserID)
		fmt.Printf("   Documents: %s\n", st.Dir())
		fmt.Printf("   Server: %s\n", cfg.ServerURL)
		fmt.Printf("\nPress Ctrl+C to stop\n")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		monitor.Stop()
		if err := watcher.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping watcher: %v\n", err)
		}
		engine.Stop()
		fmt.Println("Sync engine stopped")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
