// Package generate wraps the Eino chat model behind the Generator
// interface the analysis stages consume. Each stage supplies a system
// prompt and a user payload; the generator assembles the message slice
// (injecting retrieved match context within the token budget), invokes
// the model, and returns the raw completion text for the stage to parse.
package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/reqpilot-go/internal/budget"
	"github.com/54b3r/reqpilot-go/internal/errdefs"
	"github.com/54b3r/reqpilot-go/internal/logging"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// Request carries everything a stage needs generated.
type Request struct {
	// SystemPrompt establishes the stage's task and output format.
	SystemPrompt string

	// UserPrompt is the rendered stage input (requirement text plus any
	// prior stage outputs the stage wants the model to see).
	UserPrompt string

	// Matches is the historical context injected between the system and
	// user messages, in rank order. Lowest-ranked matches are dropped
	// first when the token budget is exceeded.
	Matches []state.SelectedMatch
}

// Generator produces a completion for a stage request. Implementations
// must be safe to call from multiple goroutines.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds the dependencies for constructing a ModelGenerator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + match context + user prompt). Match blocks
	// are trimmed lowest-ranked-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// ModelGenerator implements Generator on top of an Eino chat model.
type ModelGenerator struct {
	chatModel        model.ToolCallingChatModel
	maxContextTokens int
}

// NewModelGenerator constructs a ModelGenerator from the provided Config.
func NewModelGenerator(cfg *Config) (*ModelGenerator, error) {
	if cfg.ChatModel == nil {
		return nil, errdefs.Configurationf("generate: ChatModel must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &ModelGenerator{
		chatModel:        cfg.ChatModel,
		maxContextTokens: maxCtx,
	}, nil
}

// Generate assembles the message slice, invokes the model, and returns the
// raw completion content. Transport failures are classified as the LLM
// collaborator being unavailable so the executor routes the run to the
// error handler rather than aborting.
func (g *ModelGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := g.buildMessages(ctx, req)

	out, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", &errdefs.CollaboratorUnavailableError{Collaborator: "llm", Err: err}
	}
	if out == nil || out.Content == "" {
		return "", &errdefs.CollaboratorUnavailableError{
			Collaborator: "llm",
			Err:          fmt.Errorf("generate: model returned an empty completion"),
		}
	}
	return out.Content, nil
}

// buildMessages constructs the message slice for one generation call,
// injecting match context between the system prompt and the user prompt.
// Match blocks are trimmed lowest-ranked-first to fit the token budget;
// the system and user prompts are never trimmed.
func (g *ModelGenerator) buildMessages(ctx context.Context, req Request) []*schema.Message {
	fixed := []*schema.Message{
		schema.SystemMessage(req.SystemPrompt),
		schema.UserMessage(req.UserPrompt),
	}

	blocks := renderMatchBlocks(req.Matches)
	before := len(blocks)
	blocks = budget.TrimMatches(fixed, blocks, g.maxContextTokens)
	if dropped := before - len(blocks); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped match context blocks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(blocks)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	messages := []*schema.Message{schema.SystemMessage(req.SystemPrompt)}
	if len(blocks) > 0 {
		messages = append(messages, schema.SystemMessage(matchContext(blocks)))
	}
	return append(messages, schema.UserMessage(req.UserPrompt))
}
