package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/lang"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Send pending changes and refresh from the remote",
	Long: `Send every pending change to the remote, including changes that ran out
of automatic retries, then refresh plans and words from the remote.

Changes the remote rejects are rolled back locally and reported.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		err := a.session.Sync(ctx)
		pending := a.session.Pending()
		if jsonOutput {
			out := map[string]any{
				"status":  a.session.Status(),
				"pending": len(pending),
			}
			if err != nil {
				out["error"] = err.Error()
			}
			printJSON(out)
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s sync incomplete: %v\n", ui.RenderWarn("⚠"), err)
			if len(pending) > 0 {
				fmt.Fprintf(os.Stderr, "   %d change(s) still pending; they are kept locally\n", len(pending))
			}
			a.close()
			os.Exit(1)
		}
		fmt.Printf("%s Synced\n", ui.RenderPass("✓"))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		status := a.session.Status()
		pending := a.session.Pending()
		exhausted := 0
		for _, p := range pending {
			if p.Exhausted {
				exhausted++
			}
		}
		lastErr := ""
		if err := a.session.LastError(); err != nil {
			lastErr = err.Error()
		}
		active := ""
		if p, ok := a.session.Plans().Active(); ok {
			active = p.Name + " (" + p.ID + ")"
		}

		if jsonOutput {
			printJSON(map[string]any{
				"user":       a.session.Actor(),
				"status":     status,
				"backend":    a.cfg.Remote.Backend,
				"activePlan": active,
				"pending":    len(pending),
				"exhausted":  exhausted,
				"lastError":  lastErr,
			})
			return
		}

		pairs := [][2]string{
			{"user", a.session.Actor()},
			{"status", ui.RenderStatus(string(status))},
			{"backend", a.cfg.Remote.Backend},
			{"active plan", orNone(active)},
			{"pending", strconv.Itoa(len(pending))},
		}
		if exhausted > 0 {
			pairs = append(pairs, [2]string{"gave up", ui.RenderWarn(strconv.Itoa(exhausted) + " (run 'lexsync sync')")})
		}
		if lastErr != "" {
			pairs = append(pairs, [2]string{"last error", ui.RenderFail(lastErr)})
		}
		fmt.Print(ui.KeyValues(pairs))
	},
}

var pendingCmd = &cobra.Command{
	Use:     "pending",
	GroupID: "sync",
	Short:   "List changes waiting to reach the remote",
	Long: `List queued changes in the order they were made.

Examples:
  lexsync pending
  lexsync pending --since "2 hours ago"
  lexsync pending --since yesterday
  lexsync pending --since 30m`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		pending := a.session.Pending()
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			cutoff, err := parseSince(since, time.Now())
			if err != nil {
				a.close()
				exitf("%v", err)
			}
			pending = filterSince(pending, cutoff)
		}

		if jsonOutput {
			printJSON(pending)
			return
		}
		if len(pending) == 0 {
			fmt.Printf("%s Nothing pending\n", ui.RenderPass("✓"))
			return
		}
		rows := make([][]string, 0, len(pending))
		for _, p := range pending {
			op := "write"
			if p.Deleted {
				op = "delete"
			}
			state := "queued"
			switch {
			case p.InFlight:
				state = "sending"
			case p.Exhausted:
				state = ui.RenderWarn("gave up")
			case p.Attempts > 0:
				state = fmt.Sprintf("retry %d", p.Attempts)
			}
			rows = append(rows, []string{
				p.Scope,
				p.ID,
				op,
				p.EnqueuedAt.Local().Format("01-02 15:04:05"),
				state,
				p.LastError,
			})
		}
		fmt.Println(ui.Table([]string{"SCOPE", "ID", "OP", "QUEUED", "STATE", "ERROR"}, rows))
	},
}

// parseSince accepts natural phrases ("2 hours ago", "yesterday") and Go
// durations ("30m").
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse --since %q: not a time or duration", s)
	}
	return r.Time, nil
}

func filterSince(pending []reconcile.PendingInfo, cutoff time.Time) []reconcile.PendingInfo {
	out := pending[:0:0]
	for _, p := range pending {
		if !p.EnqueuedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

var languagesCmd = &cobra.Command{
	Use:     "languages",
	GroupID: "plans",
	Short:   "List supported languages and loaded word lists",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitf("%v", err)
		}
		library, err := loadLibrary(cfg)
		if err != nil {
			exitf("%v", err)
		}
		pairs := library.Corpus().Pairs()

		if jsonOutput {
			printJSON(map[string]any{"languages": lang.Supported, "pairs": pairs})
			return
		}
		rows := make([][]string, 0, len(lang.Supported))
		for _, l := range lang.Supported {
			rows = append(rows, []string{l.Code, l.Name, l.NativeName})
		}
		fmt.Println(ui.Table([]string{"CODE", "NAME", "NATIVE"}, rows))
		fmt.Printf("\nWord lists: %s\n", orNone(strings.Join(pairs, ", ")))
	},
}

func orNone(s string) string {
	if s == "" {
		return ui.RenderMuted("none")
	}
	return s
}

func init() {
	syncCmd.Flags().Duration("timeout", 30*time.Second, "Give up after this long")
	pendingCmd.Flags().String("since", "", "Only changes queued after this time")

	rootCmd.AddCommand(syncCmd, statusCmd, pendingCmd, languagesCmd)
}
