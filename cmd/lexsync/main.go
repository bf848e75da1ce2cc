// Command lexsync manages learning plans and word progress from the
// terminal. Changes are applied locally first and synced in the
// background.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/ui"
)

var (
	configPath string
	userFlag   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "lexsync",
	Short: "Local-first flashcard plans with background sync",
	Long: `lexsync keeps learning plans and word progress in a local cache and
syncs them with a remote store.

Every change is visible immediately. Pending changes are retried until the
remote accepts them, and survive restarts.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Configure(os.Stdout)
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "plans", Title: "Plans and words:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: lexsync.toml in the config dir or working directory)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "Signed-in user id (default: this device's id)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// exitf prints an error and exits, in the manner of every command's Run.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitf("failed to encode output: %v", err)
	}
}
