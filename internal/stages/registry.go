package stages

import (
	"github.com/54b3r/reqpilot-go/internal/generate"
	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/retrieval"
)

// All constructs the full stage set in default order, ready to hand to
// the executor. The error handler is always included.
func All(engine *retrieval.Engine, gen generate.Generator, cfg RetrieveConfig) ([]pipeline.Stage, error) {
	retrieve, err := NewRetrieve(engine, cfg)
	if err != nil {
		return nil, err
	}
	impact, err := NewImpact(gen)
	if err != nil {
		return nil, err
	}
	effort, err := NewEffort(gen)
	if err != nil {
		return nil, err
	}
	design, err := NewDesign(gen)
	if err != nil {
		return nil, err
	}
	stories, err := NewStories(gen)
	if err != nil {
		return nil, err
	}

	return []pipeline.Stage{
		NewIntake(),
		retrieve,
		impact,
		effort,
		design,
		stories,
		NewErrorHandler(),
	}, nil
}
