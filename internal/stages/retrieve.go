package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// RetrieveConfig holds the tunables for the retrieve stage.
type RetrieveConfig struct {
	// TopK is how many ranked candidates to request per run. Defaults to 10.
	TopK int
	// SelectTop is how many of the ranked candidates are copied into the
	// run state for the generation stages. Defaults to 3.
	SelectTop int
	// SemanticWeight scales the embedding similarity component.
	SemanticWeight float64
	// KeywordWeight scales the token overlap component.
	KeywordWeight float64
}

// Retrieve ranks historical work items against the requirement and
// copies the top selections into the run state.
type Retrieve struct {
	engine  *retrieval.Engine
	topK    int
	selectN int
	semW    float64
	kwW     float64
}

// NewRetrieve constructs the retrieve stage.
func NewRetrieve(engine *retrieval.Engine, cfg RetrieveConfig) (*Retrieve, error) {
	if engine == nil {
		return nil, errdefs.Configurationf("stages: retrieve requires a retrieval engine")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	selectN := cfg.SelectTop
	if selectN <= 0 {
		selectN = 3
	}
	return &Retrieve{
		engine:  engine,
		topK:    topK,
		selectN: selectN,
		semW:    cfg.SemanticWeight,
		kwW:     cfg.KeywordWeight,
	}, nil
}

// Name returns the stage's routing name.
func (st *Retrieve) Name() pipeline.Name { return pipeline.StageRetrieve }

// Run queries the retrieval engine and selects the top matches. An empty
// knowledge base is not a failure — downstream stages generate without
// historical anchors and say so in their output.
func (st *Retrieve) Run(ctx context.Context, s state.RunState) (state.Update, error) {
	ranked, err := st.engine.Search(ctx, s.Requirement, st.topK, st.semW, st.kwW)
	if err != nil {
		return state.Update{}, err
	}

	selected := retrieval.SelectTop(ranked, st.selectN)
	matches := make([]state.SelectedMatch, 0, len(selected))
	for _, m := range selected {
		meta := make(map[string]string, len(m.Candidate.Metadata))
		for k, v := range m.Candidate.Metadata {
			meta[k] = v
		}
		matches = append(matches, state.SelectedMatch{
			ID:            m.Candidate.ID,
			Title:         m.Candidate.Title,
			SemanticScore: m.SemanticScore,
			KeywordScore:  m.KeywordScore,
			FinalScore:    m.FinalScore,
			Rank:          m.Rank,
			Metadata:      meta,
		})
	}

	return state.Update{
		Matches: matches,
		StageLog: []state.StageEvent{{
			Stage:   string(pipeline.StageRetrieve),
			Message: fmt.Sprintf("selected %d of %d ranked candidates", len(matches), len(ranked)),
			At:      time.Now().UTC(),
		}},
	}, nil
}
