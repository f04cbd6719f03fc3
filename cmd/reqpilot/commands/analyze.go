package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// NewAnalyzeCmd constructs the `reqpilot analyze` command, which runs
// the full analysis pipeline against one requirement and prints the
// resulting analysis.
func NewAnalyzeCmd() *cobra.Command {
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [requirement]",
		Short: "Run the full analysis pipeline on a requirement",
		Long: `Analyze a free-text requirement end to end: retrieve similar past work
items, assess module impact, estimate effort, draft a design document,
and generate user stories.

The final run snapshot is persisted to the local run history
(REQPILOT_RUNS_DB, default ~/.reqpilot/runs.db) alongside a per-stage
audit trail.

Examples:
  reqpilot analyze "Add OAuth2 login support to the customer portal"
  reqpilot analyze --json "Migrate the billing export job to the new scheduler"
  cat requirement.txt | xargs -0 reqpilot analyze`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			requirement := strings.Join(args, " ")

			gen, err := buildGenerator(ctx, log)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			_, kstore, closeStore, err := buildKnowledgeStore(ctx, log)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			defer closeStore()

			engine, err := retrieval.NewEngine(kstore, retrieveConfigFromEnv().TopK)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			runStore, closeRuns := openRunStore(log)
			defer closeRuns()

			exec, err := buildExecutor(engine, gen, runStore, log)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			if runID == "" {
				runID = uuid.NewString()
			}

			final, err := exec.Run(ctx, state.New(runID, requirement, time.Now().UTC()))
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			if runStore != nil {
				if saveErr := runStore.SaveRun(ctx, final); saveErr != nil {
					log.Warn("failed to persist run snapshot", slog.Any("error", saveErr))
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(final) //nolint:wrapcheck // CLI output path
			}

			printAnalysis(final)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Fixed run identifier (default: generated UUID)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full run snapshot as JSON")

	return cmd
}

// printAnalysis renders the run result for terminal reading.
func printAnalysis(final state.RunState) {
	fmt.Printf("Run %s — %s\n\n", final.RunID, final.Status)

	if final.ErrorMessage != "" {
		fmt.Printf("Failed at %s: %s\n\n", lastFailedStage(final), final.ErrorMessage)
	}

	if len(final.Matches) > 0 {
		fmt.Println("Similar past work:")
		for _, m := range final.Matches {
			fmt.Printf("  %d. [%s] %s (score %.2f)\n", m.Rank, m.ID, m.Title, m.FinalScore)
		}
		fmt.Println()
	}

	if final.Impact != nil {
		fmt.Println("Impact:")
		for _, mi := range final.Impact.Modules {
			fmt.Printf("  - %s: %s — %s\n", mi.Module, mi.Level, mi.Reason)
		}
		if final.Impact.Summary != "" {
			fmt.Printf("  %s\n", final.Impact.Summary)
		}
		fmt.Println()
	}

	if final.Effort != nil {
		fmt.Printf("Effort: %.1f person-days (confidence %.0f%%)\n", final.Effort.PersonDays, final.Effort.Confidence*100)
		if final.Effort.Rationale != "" {
			fmt.Printf("  %s\n", final.Effort.Rationale)
		}
		fmt.Println()
	}

	if final.DesignDoc != "" {
		fmt.Println("Design document:")
		fmt.Println(final.DesignDoc)
		fmt.Println()
	}

	if len(final.Stories) > 0 {
		fmt.Println("User stories:")
		for i, st := range final.Stories {
			fmt.Printf("  %d. %s\n", i+1, st.Title)
			if st.Description != "" {
				fmt.Printf("     %s\n", st.Description)
			}
			for _, ac := range st.AcceptanceCriteria {
				fmt.Printf("     - %s\n", ac)
			}
		}
	}
}

// lastFailedStage returns the stage named in the most recent failure
// event, falling back to the current stage.
func lastFailedStage(final state.RunState) string {
	for i := len(final.StageLog) - 1; i >= 0; i-- {
		if strings.HasPrefix(final.StageLog[i].Message, "failed: ") {
			return final.StageLog[i].Stage
		}
	}
	return final.CurrentStage
}
