// Package agents implements the generation stages of the chapter pipeline.
//
// Every stage is an [Executor]: a role-specific prompt plus a parser that turns the generated text into the stage's
// output. Executors are stateless apart from the generator they call; the orchestrator feeds them persisted inputs.
package agents

import (
	"context"
	"log/slog"
	"strings"

	"github.com/myrjola/inkwell/internal/ai"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/myrjola/inkwell/internal/models"
)

type Role string

const (
	RoleArchivist  Role = "archivist"
	RoleWriter     Role = "writer"
	RoleReviewer   Role = "reviewer"
	RoleEditor     Role = "editor"
	RoleSummarizer Role = "summarizer"
)

// Roles lists the roles in pipeline order.
var Roles = []Role{RoleArchivist, RoleWriter, RoleReviewer, RoleEditor, RoleSummarizer}

// Input is what a stage sees. Only the fields of the preceding stages are set.
type Input struct {
	ChapterID  string
	Goal       string
	Characters []string
	// Context is the rendered context bundle.
	Context   string
	Brief     *models.SceneBrief
	Draft     *models.Draft
	Review    *models.ReviewResult
	Conflicts []string
	// OnDelta receives generated text as it streams in.
	OnDelta func(chunk string)
}

// Output is the result of one stage. Which fields are set depends on the role.
type Output struct {
	Brief *models.SceneBrief
	// Text is the prose of the Writer and the Editor.
	Text                 string
	Canon                models.CanonBatch
	PendingConfirmations []string
	Review               *models.ReviewResult
	Summary              *models.ChapterSummary
	Usage                ai.Usage
}

// Executor runs one stage of the pipeline.
type Executor interface {
	Role() Role
	Execute(ctx context.Context, in Input) (Output, error)
}

// stage is the role-specific part of an executor.
type stage struct {
	system string
	prompt func(in Input) string
	parse  func(content string, in Input, logger *slog.Logger) (Output, error)
}

// Agent is an [Executor] backed by a generator.
type Agent struct {
	role        Role
	stage       stage
	generator   ai.Generator
	provider    string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// New returns the executor of role.
func New(role Role, generator ai.Generator, cfg config.LLMConfig, logger *slog.Logger) (*Agent, error) {
	s, ok := stages[role]
	if !ok {
		return nil, errors.Wrap(errors.ErrValidation, "unknown agent role", slog.String("role", string(role)))
	}
	return &Agent{
		role:        role,
		stage:       s,
		generator:   generator,
		provider:    cfg.ResolvedProvider(),
		temperature: cfg.AgentTemperature(string(role)),
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With("source", "Agent", slog.String("role", string(role))),
	}, nil
}

// Team is the set of executors the orchestrator drives.
type Team map[Role]Executor

// NewTeam builds an executor for every role in [Roles].
func NewTeam(generator ai.Generator, cfg config.LLMConfig, logger *slog.Logger) (Team, error) {
	team := make(Team, len(Roles))
	for _, role := range Roles {
		agent, err := New(role, generator, cfg, logger)
		if err != nil {
			return nil, err
		}
		team[role] = agent
	}
	return team, nil
}

func (a *Agent) Role() Role {
	return a.role
}

// Execute generates the stage output. A truncated generation fails with a retryable [ai.ProviderError] and output
// that cannot be parsed fails with [errors.ErrValidation].
func (a *Agent) Execute(ctx context.Context, in Input) (Output, error) {
	ctx = logging.WithAttrs(ctx, slog.String("agent", string(a.role)))
	messages := []ai.Message{{Role: ai.RoleSystem, Content: a.stage.system}}
	if strings.TrimSpace(in.Context) != "" {
		messages = append(messages, ai.Message{Role: ai.RoleUser, Content: "Context:\n" + in.Context})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: a.stage.prompt(in)})

	temperature := a.temperature
	resp, err := a.generator.Chat(ctx, messages, ai.Options{
		Temperature: &temperature,
		MaxOutput:   a.maxTokens,
		OnDelta:     in.OnDelta,
	})
	if err != nil {
		return Output{}, errors.Wrap(errors.Mark(err, errors.ErrProvider), "generate",
			slog.String("role", string(a.role)))
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "generated",
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Duration("latency", resp.Latency))
	if resp.FinishReason == ai.FinishReasonLength {
		return Output{}, errors.Wrap(ai.NewTruncatedError(a.provider), "generate",
			slog.String("role", string(a.role)))
	}

	out, err := a.stage.parse(resp.Content, in, a.logger)
	if err != nil {
		return Output{}, errors.Wrap(errors.Mark(err, errors.ErrValidation), "parse output",
			slog.String("role", string(a.role)))
	}
	out.Usage = resp.Usage
	return out, nil
}
