package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator runs generation and grading through the tier chain. Each tier
// is tried at most once per call and the first success wins.
type Orchestrator struct {
	generators   []Generator
	graders      []Grader
	fallback     Generator
	defaultModel string
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator. defaultModel is used when a request
// names no model.
func NewOrchestrator(generators []Generator, graders []Grader, defaultModel string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generators:   generators,
		graders:      graders,
		fallback:     MockGenerator{},
		defaultModel: defaultModel,
		logger:       logger.With("component", "assignment"),
	}
}

// Create generates an assignment. It never fails: when every backend tier is
// unavailable or fails, the mock generator answers.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) *CreateResponse {
	start := time.Now()
	spec := ResolveSpec(req, o.defaultModel)

	resp := &CreateResponse{Model: spec.Model, Version: Version, Sources: []string{}}
	for _, g := range o.generators {
		questions, err := g.Generate(ctx, spec)
		if err != nil {
			o.logger.Warn("generation tier failed", "tier", g.Name(), "error", err)
			continue
		}
		o.logger.Info("questions generated", "tier", g.Name(), "count", len(questions))
		resp.Questions = questions
		resp.LatencyMs = time.Since(start).Milliseconds()
		return resp
	}

	// The mock tier cannot fail.
	questions, _ := o.fallback.Generate(ctx, spec)
	o.logger.Info("questions generated", "tier", o.fallback.Name(), "count", len(questions))
	resp.Questions = questions
	resp.Sources = append([]string(nil), MockSources...)
	resp.LatencyMs = time.Since(start).Milliseconds()
	return resp
}

// Grade grades a submission. Essays are left for manual grading. It returns
// ErrNoBackend when no grading tier is configured and ErrAllTiersFailed when
// every configured tier failed.
func (o *Orchestrator) Grade(ctx context.Context, req GradeRequest) (*GradeResponse, error) {
	start := time.Now()
	model := firstNonEmpty(req.Model, o.defaultModel, DefaultModel)
	questions := req.Assignment.Questions
	auto, hasEssays := splitEssays(questions)

	respond := func(r GradeResult) *GradeResponse {
		return &GradeResponse{
			GradeResult: r,
			Model:       model,
			Version:     Version,
			LatencyMs:   time.Since(start).Milliseconds(),
		}
	}

	if len(auto) == 0 {
		return respond(manualResult(questions, hasEssays)), nil
	}
	if len(o.graders) == 0 {
		return nil, ErrNoBackend
	}

	job := GradeJob{
		Model:     model,
		Questions: auto,
		Answers:   answersFor(auto, req.Submission.Answers),
	}
	var errs []error
	for _, g := range o.graders {
		grade, err := g.Grade(ctx, job)
		if err != nil {
			o.logger.Warn("grading tier failed", "tier", g.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			continue
		}
		res := finalize(questions, req.Submission.Answers, grade, hasEssays)
		o.logger.Info("submission graded", "tier", g.Name(), "questions", len(auto))
		return respond(res), nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAllTiersFailed, errors.Join(errs...))
}
