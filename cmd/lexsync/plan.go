package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/lang"
	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/ui"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	GroupID: "plans",
	Short:   "Manage learning plans",
	Long: `Manage learning plans. A plan pairs the language you speak with the one
you are learning. Exactly one plan is active at a time.`,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		list := a.session.Plans().Snapshot()
		if jsonOutput {
			printJSON(list)
			return
		}
		if len(list) == 0 {
			fmt.Printf("No plans yet. Create one with 'lexsync plan create'.\n")
			return
		}

		rows := make([][]string, 0, len(list))
		for _, p := range list {
			active := ""
			if p.IsActive {
				active = ui.RenderPass("●")
			}
			rows = append(rows, []string{
				active,
				p.ID,
				p.Name,
				p.SourceLanguage + "→" + p.TargetLanguage,
				fmt.Sprintf("%d/%d", p.Progress.WordsLearned, p.Progress.TotalWords),
				p.CreatedAt.Local().Format("2006-01-02"),
			})
		}
		fmt.Println(ui.Table([]string{"", "ID", "NAME", "PAIR", "LEARNED", "CREATED"}, rows))
	},
}

var planCreateCmd = &cobra.Command{
	Use:   "create [source target]",
	Short: "Create a plan and make it active",
	Long: `Create a plan for a language pair and make it the active plan.

Without arguments on a terminal, an interactive form asks for the languages.

Examples:
  lexsync plan create en tr
  lexsync plan create en de --name "Deutsch für die Reise"`,
	Args: cobra.RangeArgs(0, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")

		var source, target string
		switch len(args) {
		case 2:
			source, target = args[0], args[1]
		case 0:
			if !ui.IsTerminal(os.Stdin) {
				exitf("source and target languages are required")
			}
			var err error
			source, target, name, err = planForm(name)
			if err != nil {
				exitf("%v", err)
			}
		default:
			exitf("give both source and target languages")
		}

		a := mustOpen(cmd.Context())
		defer a.finish()

		p, err := a.session.CreatePlan(source, target, name)
		if err != nil {
			a.close()
			exitf("%v", err)
		}
		if jsonOutput {
			printJSON(p)
			return
		}
		fmt.Printf("%s Created plan %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(p.Name), p.ID)
	},
}

// planForm asks for a language pair interactively.
func planForm(name string) (source, target, outName string, err error) {
	options := make([]huh.Option[string], 0, len(lang.Supported))
	for _, l := range lang.Supported {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", l.Name, l.NativeName), l.Code))
	}

	source = "en"
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Language you speak").Options(options...).Value(&source),
			huh.NewSelect[string]().Title("Language to learn").Options(options...).Value(&target).
				Validate(func(v string) error { return lang.ValidatePair(source, v) }),
			huh.NewInput().Title("Plan name").Description("Leave empty for the default name").Value(&name),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", "", err
	}
	return source, target, name, nil
}

var planActivateCmd = &cobra.Command{
	Use:   "activate <plan-id>",
	Short: "Make a plan the active one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.finish()

		if err := a.session.Plans().SetActive(args[0]); err != nil {
			a.close()
			exitf("%v", err)
		}
		fmt.Printf("%s Active plan: %s\n", ui.RenderPass("✓"), args[0])
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan with its saved and completed words",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.finish()

		if err := a.session.Plans().Delete(args[0]); err != nil {
			a.close()
			exitf("%v", err)
		}
		fmt.Printf("%s Deleted plan %s\n", ui.RenderPass("✓"), args[0])
		if active, ok := a.session.Plans().Active(); ok {
			fmt.Printf("   Active plan: %s (%s)\n", active.Name, active.ID)
		}
	},
}

var planProgressCmd = &cobra.Command{
	Use:   "progress <plan-id>",
	Short: "Show or set plan progress",
	Long: `Show the progress of a plan, or change counters with flags.

Examples:
  lexsync plan progress plan_123
  lexsync plan progress plan_123 --level 3`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.finish()

		var u plans.ProgressUpdate
		if cmd.Flags().Changed("level") {
			v, _ := cmd.Flags().GetInt("level")
			u.CurrentLevel = &v
		}
		if cmd.Flags().Changed("learned") {
			v, _ := cmd.Flags().GetInt("learned")
			u.WordsLearned = &v
		}
		if u.CurrentLevel != nil || u.WordsLearned != nil {
			if err := a.session.Plans().UpdateProgress(args[0], u); err != nil {
				a.close()
				exitf("%v", err)
			}
		}

		p, ok := a.session.Plans().Get(args[0])
		if !ok {
			a.close()
			exitf("%v: %s", plans.ErrNotFound, args[0])
		}
		if jsonOutput {
			printJSON(p.Progress)
			return
		}
		fmt.Printf("\n%s\n", ui.RenderBold(p.Name))
		fmt.Print(ui.KeyValues([][2]string{
			{"learned", strconv.Itoa(p.Progress.WordsLearned)},
			{"level", strconv.Itoa(p.Progress.CurrentLevel)},
			{"total", strconv.Itoa(p.Progress.TotalWords)},
		}))
	},
}

// activePlanID returns the --plan flag or the active plan.
func activePlanID(cmd *cobra.Command, a *app) string {
	if id, _ := cmd.Flags().GetString("plan"); id != "" {
		return id
	}
	p, ok := a.session.Plans().Active()
	if !ok {
		a.close()
		exitf("no active plan; create one with 'lexsync plan create'")
	}
	return p.ID
}

func init() {
	planCreateCmd.Flags().String("name", "", "Plan name (default: \"<Target> from <Source>\")")
	planProgressCmd.Flags().Int("level", 0, "Set the current level")
	planProgressCmd.Flags().Int("learned", 0, "Set the learned word count")

	planCmd.AddCommand(planListCmd, planCreateCmd, planActivateCmd, planDeleteCmd, planProgressCmd)
	rootCmd.AddCommand(planCmd)
}
