package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alqutdigital/hikma/internal/agent"
	"github.com/alqutdigital/hikma/internal/llm"
)

// Sentinel errors of the fallback chain.
var (
	ErrNoBackend       = errors.New("no grading backend available")
	ErrAllTiersFailed  = errors.New("all backends failed")
	ErrTierUnavailable = errors.New("tier unavailable")
	ErrEmptyResult     = errors.New("backend returned no usable result")
)

// Generator is one generation tier.
type Generator interface {
	Name() string
	Generate(ctx context.Context, spec Spec) ([]Question, error)
}

// Grader is one grading tier.
type Grader interface {
	Name() string
	Grade(ctx context.Context, job GradeJob) (*BackendGrade, error)
}

// GradeJob is the auto-gradable part of a submission.
type GradeJob struct {
	Model     string
	Questions []GradeQuestion
	Answers   []SubmittedAnswer
}

// BackendGrade is a grade as a backend returned it. Scores are left untyped
// until finalized.
type BackendGrade struct {
	PerQuestion []BackendQuestionGrade `json:"perQuestion"`
	TotalScore  any                    `json:"totalScore"`
	Feedback    string                 `json:"feedback"`
}

// BackendQuestionGrade is one backend per-question entry.
type BackendQuestionGrade struct {
	QuestionID flexID `json:"questionId"`
	Score      any    `json:"score"`
	Feedback   string `json:"feedback"`
}

func parseQuestions(text string) ([]Question, error) {
	raw, err := llm.DecodeArray[[]rawQuestion](text)
	if err != nil {
		return nil, err
	}
	qs := NormalizeQuestions(raw)
	if len(qs) == 0 {
		return nil, ErrEmptyResult
	}
	return qs, nil
}

func parseGrade(text string) (*BackendGrade, error) {
	g, err := llm.DecodeObject[BackendGrade](text)
	if err != nil {
		return nil, err
	}
	if len(g.PerQuestion) == 0 {
		return nil, ErrEmptyResult
	}
	return &g, nil
}

// AgentTier runs a single-agent crew.
type AgentTier struct {
	provider llm.Provider
	config   agent.CrewConfig
	logger   *slog.Logger
}

// NewAgentTier creates the agent tier over provider.
func NewAgentTier(provider llm.Provider, config agent.CrewConfig, logger *slog.Logger) *AgentTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentTier{provider: provider, config: config, logger: logger}
}

// Name returns the tier name.
func (t *AgentTier) Name() string { return "agent" }

// Generate asks a question-crafting agent for a JSON array of questions.
func (t *AgentTier) Generate(ctx context.Context, spec Spec) ([]Question, error) {
	creator := &agent.Agent{
		Name:      "AssignmentCreator",
		Role:      "Question Crafter",
		Goal:      "Produce valid JSON questions",
		Backstory: "You write clear, fair assessment questions for Islamic education.",
	}
	out, err := t.kickoff(ctx, agent.Task{
		Description:    agentInstructions(spec),
		ExpectedOutput: "A JSON array of question objects",
		Agent:          creator,
	})
	if err != nil {
		return nil, err
	}
	return parseQuestions(out)
}

// Grade asks a grading agent for a JSON grade object.
func (t *AgentTier) Grade(ctx context.Context, job GradeJob) (*BackendGrade, error) {
	instructions, err := gradingInstructions(job.Questions, job.Answers)
	if err != nil {
		return nil, err
	}
	grader := &agent.Agent{
		Name:      "AssignmentGrader",
		Role:      "Expert Academic Grader",
		Goal:      "Accurately grade student submissions and provide detailed feedback",
		Backstory: "You are an experienced educator who grades fairly and accurately, never awarding points for incorrect answers.",
	}
	out, err := t.kickoff(ctx, agent.Task{
		Description:    instructions,
		ExpectedOutput: "A JSON object with perQuestion array, totalScore, and feedback",
		Agent:          grader,
	})
	if err != nil {
		return nil, err
	}
	return parseGrade(out)
}

func (t *AgentTier) kickoff(ctx context.Context, task agent.Task) (string, error) {
	crew, err := agent.NewCrew(t.provider, []agent.Task{task}, t.logger, t.config)
	if err != nil {
		return "", err
	}
	res, err := crew.Kickoff(ctx)
	if err != nil {
		return "", fmt.Errorf("crew kickoff: %w", err)
	}
	return res.Output, nil
}

// ProviderFactory builds a provider for a model name.
type ProviderFactory func(ctx context.Context, model string) (llm.Provider, error)

// DirectTier calls a model once with no agent framing.
type DirectTier struct {
	name        string
	newProvider ProviderFactory
}

// NewDirectTier creates a direct tier. The provider is built per call so the
// request's model is honored.
func NewDirectTier(name string, newProvider ProviderFactory) *DirectTier {
	return &DirectTier{name: name, newProvider: newProvider}
}

// Name returns the tier name.
func (t *DirectTier) Name() string { return t.name }

// Generate sends the generation prompt.
func (t *DirectTier) Generate(ctx context.Context, spec Spec) ([]Question, error) {
	p, err := t.newProvider(ctx, spec.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	text, err := llm.Complete(ctx, p, "", directPrompt(spec), true)
	if err != nil {
		return nil, err
	}
	return parseQuestions(text)
}

// Grade sends the grading instructions.
func (t *DirectTier) Grade(ctx context.Context, job GradeJob) (*BackendGrade, error) {
	instructions, err := gradingInstructions(job.Questions, job.Answers)
	if err != nil {
		return nil, err
	}
	p, err := t.newProvider(ctx, job.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	text, err := llm.Complete(ctx, p, "You are an expert academic grader.", instructions, true)
	if err != nil {
		return nil, err
	}
	return parseGrade(text)
}

// TierOptions selects the backends to build.
type TierOptions struct {
	AgentEnabled bool
	Agent        llm.ProviderConfig
	Crew         agent.CrewConfig
	GeminiAPIKey string
}

// BuildTiers constructs the available tiers in priority order. A tier whose
// provider cannot be built is left out and logged. newProvider defaults to
// llm.NewProvider.
func BuildTiers(ctx context.Context, opts TierOptions, logger *slog.Logger,
	newProvider func(context.Context, llm.ProviderConfig, *slog.Logger) (llm.Provider, error),
) (generators []Generator, graders []Grader) {
	if logger == nil {
		logger = slog.Default()
	}
	if newProvider == nil {
		newProvider = llm.NewProvider
	}

	if opts.AgentEnabled {
		p, err := newProvider(ctx, opts.Agent, logger)
		if err != nil {
			logger.Warn("agent tier unavailable", "provider", opts.Agent.Provider, "error", err)
		} else {
			t := NewAgentTier(p, opts.Crew, logger)
			generators = append(generators, t)
			graders = append(graders, t)
		}
	} else {
		logger.Debug("agent tier disabled")
	}

	if opts.GeminiAPIKey != "" {
		t := NewDirectTier("gemini", func(ctx context.Context, model string) (llm.Provider, error) {
			return newProvider(ctx, llm.ProviderConfig{
				Provider: string(llm.ProviderGemini),
				APIKey:   opts.GeminiAPIKey,
				Model:    model,
			}, logger)
		})
		generators = append(generators, t)
		graders = append(graders, t)
	} else {
		logger.Debug("gemini tier unavailable", "reason", "GEMINI_API_KEY not set")
	}
	return generators, graders
}
