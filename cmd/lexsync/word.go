package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/ui"
)

var wordCmd = &cobra.Command{
	Use:     "word",
	GroupID: "plans",
	Short:   "Save, complete and study words of a plan",
	Long: `Save, complete and study words of a plan.

Every subcommand works on the active plan unless --plan is given. A word is
either saved, completed or neither; completing a saved word moves it.`,
}

// wordAction builds a subcommand that applies fn to each word id argument.
func wordAction(use, short, verb string, fn func(a *app, cmd *cobra.Command, planID, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <word-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustOpen(cmd.Context())
			defer a.finish()

			planID := activePlanID(cmd, a)
			failed := 0
			for _, id := range args {
				if err := fn(a, cmd, planID, id); err != nil {
					fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), id, err)
					failed++
					continue
				}
				fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), verb, ui.RenderAccent(id))
			}
			if failed > 0 {
				a.finish()
				exitf("%d of %d words failed", failed, len(args))
			}
		},
	}
}

var wordSaveCmd = wordAction("save", "Save words for later study", "Saved",
	func(a *app, cmd *cobra.Command, planID, id string) error {
		ws, err := a.session.Words(cmd.Context(), planID)
		if err != nil {
			return err
		}
		return ws.Save(id)
	})

var wordUnsaveCmd = wordAction("unsave", "Remove words from the saved set", "Unsaved",
	func(a *app, cmd *cobra.Command, planID, id string) error {
		ws, err := a.session.Words(cmd.Context(), planID)
		if err != nil {
			return err
		}
		return ws.Unsave(id)
	})

var wordCompleteCmd = wordAction("complete", "Mark words completed", "Completed",
	func(a *app, cmd *cobra.Command, planID, id string) error {
		return a.session.Complete(cmd.Context(), planID, id)
	})

var wordUncompleteCmd = wordAction("uncomplete", "Clear completed words", "Uncompleted",
	func(a *app, cmd *cobra.Command, planID, id string) error {
		return a.session.Uncomplete(cmd.Context(), planID, id)
	})

var wordStatusCmd = &cobra.Command{
	Use:   "status [word-id...]",
	Short: "Show saved and completed words",
	Long: `Without arguments, list the saved and completed words of the plan.
With word ids, show the membership of each word.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		planID := activePlanID(cmd, a)
		ws, err := a.session.Words(cmd.Context(), planID)
		if err != nil {
			a.close()
			exitf("%v", err)
		}

		if len(args) > 0 {
			out := make(map[string]string, len(args))
			rows := make([][]string, 0, len(args))
			for _, id := range args {
				m := ws.Membership(id).String()
				out[id] = m
				rows = append(rows, []string{id, m})
			}
			if jsonOutput {
				printJSON(out)
				return
			}
			fmt.Println(ui.Table([]string{"WORD", "STATE"}, rows))
			return
		}

		sets := ws.Snapshot()
		if jsonOutput {
			printJSON(map[string][]string{"saved": sets.Saved, "completed": sets.Completed})
			return
		}
		p, _ := a.session.Plans().Get(planID)
		fmt.Printf("\n%s\n", ui.RenderBold(p.Name))
		printWordList("Saved", sets.Saved, a, p)
		printWordList("Completed", sets.Completed, a, p)
	},
}

func printWordList(title string, ids []string, a *app, p plans.Plan) {
	fmt.Printf("\n%s (%d)\n", title, len(ids))
	if len(ids) == 0 {
		fmt.Printf("  %s\n", ui.RenderMuted("none"))
		return
	}
	corpus := a.library.Corpus()
	for _, id := range ids {
		if w, ok := corpus.Lookup(p.SourceLanguage, p.TargetLanguage, id); ok {
			fmt.Printf("  %s  %s → %s\n", ui.RenderAccent(id), w.SourceText, w.TargetText)
			continue
		}
		fmt.Printf("  %s\n", ui.RenderAccent(id))
	}
}

var wordPoolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show the words currently up for study",
	Long: `Show the study pool of the plan: a fixed-size set of words not yet
completed. Completing a word draws a replacement from the corpus.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context())
		defer a.close()

		planID := activePlanID(cmd, a)
		pool, err := a.session.Pool(cmd.Context(), planID)
		if err != nil {
			a.close()
			exitf("%v", err)
		}
		p, _ := a.session.Plans().Get(planID)
		corpus := a.library.Corpus()

		type entry struct {
			ID     string `json:"id"`
			Source string `json:"source"`
			Target string `json:"target"`
			Level  int    `json:"level"`
		}
		entries := make([]entry, 0, pool.Len())
		for _, id := range pool.IDs() {
			w, _ := corpus.Lookup(p.SourceLanguage, p.TargetLanguage, id)
			entries = append(entries, entry{ID: id, Source: w.SourceText, Target: w.TargetText, Level: w.Level})
		}
		if jsonOutput {
			printJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Printf("%s Nothing left to study in %s\n", ui.RenderPass("✓"), p.Name)
			return
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.ID, e.Source, e.Target, strconv.Itoa(e.Level)})
		}
		fmt.Println(ui.Table([]string{"WORD", "SOURCE", "TARGET", "LEVEL"}, rows))
		fmt.Printf("%s\n", ui.RenderMuted(fmt.Sprintf("%d of %d", pool.Len(), pool.Size())))
	},
}

func init() {
	wordCmd.PersistentFlags().String("plan", "", "Plan id (default: active plan)")

	wordCmd.AddCommand(wordSaveCmd, wordUnsaveCmd, wordCompleteCmd, wordUncompleteCmd, wordStatusCmd, wordPoolCmd)
	rootCmd.AddCommand(wordCmd)
}
