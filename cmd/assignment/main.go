// Package main is the entry point for the assignment generation and grading CLI.
//
// Both subcommands read one JSON object from stdin and write one JSON object to
// stdout. Failures are reported as {"error": "..."}; the process exits non-zero
// only when no grading backend is configured at all.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alqutdigital/hikma/internal/agent"
	"github.com/alqutdigital/hikma/internal/assignment"
	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/llm"
	"github.com/alqutdigital/hikma/pkg/logger"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// errReported marks an error already written to stdout as JSON.
var errReported = errors.New("error reported")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "assignment",
		Short:         "Generate and grade quiz assignments",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newCreateCmd(), newGradeCmd())
	return rootCmd.Execute()
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "create",
		Short:   "Generate questions from a JSON request on stdin",
		Example: `  echo '{"aiSpec":{"topic":"Zakat","numQuestions":5,"mcqCount":3,"trueFalseCount":2}}' | assignment create`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, err := setup(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runCreate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), orch)
		},
	}
}

func newGradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grade",
		Short: "Grade a submission from JSON on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, err := setup(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runGrade(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), orch)
		},
	}
}

// setup loads configuration and builds the orchestrator. Configuration errors
// are reported on stdout.
func setup(ctx context.Context, out io.Writer) (*assignment.Orchestrator, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, reportError(out, fmt.Errorf("load .env: %w", err), true)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, reportError(out, fmt.Errorf("load config: %w", err), true)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	}).WithComponent("assignment_cli")
	if err := cfg.ValidateGrading(); err != nil {
		log.Warn("no generation backend configured, questions will come from the mock generator", "error", err)
	}

	generators, graders := assignment.BuildTiers(ctx, tierOptions(cfg), log.Logger, nil)
	return assignment.NewOrchestrator(generators, graders, cfg.Gemini.Model, log.Logger), nil
}

// tierOptions maps configuration onto the backend tiers.
func tierOptions(cfg *config.Config) assignment.TierOptions {
	provider := strings.ToLower(cfg.Agent.Provider)

	var apiKey, baseURL string
	switch llm.ProviderType(provider) {
	case llm.ProviderGemini:
		apiKey = cfg.Gemini.APIKey
	case llm.ProviderAnthropic:
		apiKey = cfg.Agent.AnthropicKey
	case llm.ProviderOpenAI:
		apiKey = cfg.Agent.OpenAIKey
	case llm.ProviderOllama:
		baseURL = cfg.Agent.OllamaBaseURL
	case llm.ProviderLMStudio:
		baseURL = cfg.Agent.LMStudioBaseURL
	}

	crew := agent.DefaultCrewConfig()
	crew.MaxTokens = cfg.Agent.MaxTokens
	crew.Temperature = cfg.Agent.Temperature
	crew.JSONOutput = true

	return assignment.TierOptions{
		AgentEnabled: cfg.Agent.Enabled,
		Agent: llm.ProviderConfig{
			Provider:    provider,
			Model:       cfg.Agent.Model,
			APIKey:      apiKey,
			BaseURL:     baseURL,
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: cfg.Agent.Temperature,
		},
		Crew:         crew,
		GeminiAPIKey: cfg.Gemini.APIKey,
	}
}

func runCreate(ctx context.Context, in io.Reader, out io.Writer, orch *assignment.Orchestrator) error {
	var req assignment.CreateRequest
	if err := readInput(in, &req); err != nil {
		return reportError(out, err, false)
	}
	return writeJSON(out, orch.Create(ctx, req))
}

func runGrade(ctx context.Context, in io.Reader, out io.Writer, orch *assignment.Orchestrator) error {
	var req assignment.GradeRequest
	if err := readInput(in, &req); err != nil {
		return reportError(out, err, false)
	}
	resp, err := orch.Grade(ctx, req)
	if err != nil {
		return reportError(out, err, errors.Is(err, assignment.ErrNoBackend))
	}
	return writeJSON(out, resp)
}

// readInput decodes stdin into v. Blank input reads as an empty object.
func readInput(in io.Reader, v any) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// reportError writes err as a JSON error object. It returns errReported when
// the process must exit non-zero.
func reportError(out io.Writer, err error, fatal bool) error {
	if werr := writeJSON(out, assignment.ErrorResponse{Error: err.Error()}); werr != nil {
		return werr
	}
	if fatal {
		return errReported
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
