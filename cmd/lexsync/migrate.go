package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/migrate"
	"github.com/futurelex/lexsync/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "advanced",
	Short:   "Import saved and completed words from a legacy export",
	Long: `Import a legacy JSONL export of saved and completed words into a new
English to Turkish plan.

The import runs only for users without plans, so it is safe to repeat.

Examples:
  lexsync migrate --from export.jsonl --dry-run
  lexsync migrate --from export.jsonl`,
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if from == "" {
			exitf("--from is required")
		}

		a := mustOpen(cmd.Context())
		defer a.finish()

		result, err := migrate.Migrate(cmd.Context(), a.session, migrate.Options{FromJSONL: from, DryRun: dryRun})
		if err != nil {
			a.close()
			exitf("migration failed: %v", err)
		}

		if jsonOutput {
			printJSON(result)
			return
		}
		if result.Skipped != "" {
			fmt.Printf("%s Skipped: %s\n", ui.RenderWarn("⚠"), result.Skipped)
			return
		}

		prefix := ui.RenderPass("✓")
		if dryRun {
			prefix = ui.RenderAccent("[dry-run]")
		}
		if result.PlanCreated {
			fmt.Printf("%s Created plan %s\n", prefix, result.PlanID)
		}
		fmt.Printf("%s Saved words: %d\n", prefix, result.SavedMigrated)
		fmt.Printf("%s Completed words: %d\n", prefix, result.CompletedMigrated)
		for _, e := range result.Errors {
			fmt.Printf("  %s %s\n", ui.RenderWarn("⚠"), e)
		}
	},
}

func init() {
	migrateCmd.Flags().String("from", "", "Legacy JSONL export to import")
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be imported without writing")

	rootCmd.AddCommand(migrateCmd)
}
