package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/dashboard"
	"github.com/futurelex/lexsync/internal/ui"
	"github.com/futurelex/lexsync/internal/vocab"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep syncing in the background and serve the live dashboard",
	Long: `Run a long-lived sync session. Pending changes are retried with backoff,
stale data is refreshed on a schedule, and a dashboard shows the sync state
at http://<host>:<port>/.

With vocab.watch enabled, edits to the corpus file are picked up without a
restart.

Stop with Ctrl+C; pending changes are flushed before exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := mustOpen(ctx)
		defer a.finish()

		dcfg := dashboard.DefaultConfig()
		dcfg.Host = a.cfg.Dashboard.Host
		dcfg.Port = a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			dcfg.Port, _ = cmd.Flags().GetInt("port")
		}
		dcfg.Logger = a.cfg.NewLogger("dashboard")

		server := dashboard.NewServer(a.session, dcfg)
		if err := server.Start(); err != nil {
			a.close()
			exitf("failed to start dashboard: %v", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				a.logger.Printf("WARNING: dashboard stop: %v", err)
			}
		}()

		if a.cfg.Vocab.Watch && a.cfg.Vocab.Path != "" {
			w, err := vocab.NewWatcher(a.cfg.Vocab.Path, a.library, a.cfg.NewLogger("vocab"))
			if err != nil {
				a.logger.Printf("WARNING: corpus watcher disabled: %v", err)
			} else if err := w.Start(); err != nil {
				a.logger.Printf("WARNING: corpus watcher disabled: %v", err)
			} else {
				defer func() { _ = w.Stop() }()
				go applyReloads(ctx, a, w.Reloads())
			}
		}

		fmt.Printf("%s Syncing as %s\n", ui.RenderPass("✓"), ui.RenderAccent(a.session.Actor()))
		fmt.Printf("   Dashboard: http://%s/\n", server.GetAddr())
		fmt.Printf("   Press Ctrl+C to stop\n")

		<-ctx.Done()
		fmt.Printf("\nStopping, flushing pending changes...\n")
	},
}

// applyReloads tops up study pools from each newly loaded corpus.
func applyReloads(ctx context.Context, a *app, reloads <-chan vocab.Reload) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reloads:
			if !ok {
				return
			}
			if r.Err == nil {
				a.session.RefillPools()
			}
		}
	}
}

func init() {
	daemonCmd.Flags().Int("port", 0, "Dashboard port (default from config)")

	rootCmd.AddCommand(daemonCmd)
}
