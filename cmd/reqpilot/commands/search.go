package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
)

// NewSearchCmd constructs the `reqpilot search` command, which ranks
// knowledge-base items against a query without running the pipeline.
func NewSearchCmd() *cobra.Command {
	var topK int
	var semanticWeight float64
	var keywordWeight float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base for similar past work items",
		Long: `Rank historical work items against a free-text query using hybrid
retrieval: embedding similarity fused with keyword overlap.

This is the retrieve step of the pipeline in isolation — useful for
checking what context an analysis would be grounded in, and for tuning
the semantic/keyword weights.

Examples:
  reqpilot search "single sign-on for the customer portal"
  reqpilot search --top-k 10 "billing export performance"
  reqpilot search --semantic-weight 1 --keyword-weight 0 "OAuth2"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			query := strings.Join(args, " ")

			_, kstore, closeStore, err := buildKnowledgeStore(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer closeStore()

			engine, err := retrieval.NewEngine(kstore, retrieveConfigFromEnv().TopK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if !cmd.Flags().Changed("semantic-weight") {
				semanticWeight = retrieveConfigFromEnv().SemanticWeight
			}
			if !cmd.Flags().Changed("keyword-weight") {
				keywordWeight = retrieveConfigFromEnv().KeywordWeight
			}

			matches, err := engine.Search(ctx, query, topK, semanticWeight, keywordWeight)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(matches) //nolint:wrapcheck // CLI output path
			}

			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("%2d. [%s] %s\n", m.Rank, m.Candidate.ID, m.Candidate.Title)
				fmt.Printf("    final %.3f  semantic %.3f  keyword %.3f\n", m.FinalScore, m.SemanticScore, m.KeywordScore)
				if module, ok := m.Candidate.Metadata["module"]; ok {
					fmt.Printf("    module: %s\n", module)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of matches (default: configured top_k)")
	cmd.Flags().Float64Var(&semanticWeight, "semantic-weight", 0, "Weight of the embedding similarity component")
	cmd.Flags().Float64Var(&keywordWeight, "keyword-weight", 0, "Weight of the keyword overlap component")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")

	return cmd
}
