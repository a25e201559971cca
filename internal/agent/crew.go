// Package agent runs role-playing agents over an LLM provider.
//
// A Crew executes its tasks sequentially. Each task is sent to the provider with a
// system prompt built from its agent's role, goal and backstory, and the outputs of
// earlier tasks are passed forward as context. The last task's output is the crew's
// result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alqutdigital/hikma/internal/llm"
)

// ErrNoTasks is returned when a crew is kicked off without tasks.
var ErrNoTasks = errors.New("crew has no tasks")

// Agent describes who performs a task.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string
}

// Task is one unit of work assigned to an agent.
type Task struct {
	Description    string
	ExpectedOutput string
	Agent          *Agent
}

// CrewConfig holds execution settings shared by all tasks.
type CrewConfig struct {
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	JSONOutput     bool
}

// DefaultCrewConfig returns the default crew configuration.
func DefaultCrewConfig() CrewConfig {
	return CrewConfig{
		MaxTokens:      4096,
		Temperature:    0.3,
		RequestTimeout: 120 * time.Second,
	}
}

// TaskOutput records what one task produced.
type TaskOutput struct {
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

// TokenUsage tracks token usage across the crew run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the outcome of a crew run.
type Result struct {
	Output      string        `json:"output"`
	TaskOutputs []TaskOutput  `json:"task_outputs"`
	Usage       TokenUsage    `json:"usage"`
	Duration    time.Duration `json:"duration"`
	Model       string        `json:"model"`
}

// String returns the final output.
func (r *Result) String() string {
	return r.Output
}

// Crew runs tasks in order against one provider.
type Crew struct {
	provider llm.Provider
	tasks    []Task
	config   CrewConfig
	logger   *slog.Logger
}

// NewCrew creates a crew. Tasks without an agent are rejected.
func NewCrew(provider llm.Provider, tasks []Task, logger *slog.Logger, config CrewConfig) (*Crew, error) {
	if provider == nil {
		return nil, fmt.Errorf("LLM provider is required")
	}
	for i, t := range tasks {
		if t.Agent == nil {
			return nil, fmt.Errorf("task %d has no agent", i)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crew{
		provider: provider,
		tasks:    tasks,
		config:   config,
		logger:   logger.With("component", "crew", "provider", provider.Name()),
	}, nil
}

// Kickoff executes every task in sequence and returns the final output.
func (c *Crew) Kickoff(ctx context.Context) (*Result, error) {
	if len(c.tasks) == 0 {
		return nil, ErrNoTasks
	}

	start := time.Now()
	result := &Result{Model: c.provider.Model()}

	for i, task := range c.tasks {
		taskCtx := ctx
		var cancel context.CancelFunc
		if c.config.RequestTimeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		}

		resp, err := c.provider.Chat(taskCtx, llm.ChatRequest{
			Messages:     []llm.Message{llm.NewTextMessage(llm.RoleUser, buildTaskPrompt(task, result.TaskOutputs))},
			SystemPrompt: buildSystemPrompt(task.Agent),
			MaxTokens:    c.config.MaxTokens,
			Temperature:  c.config.Temperature,
			JSONOutput:   c.config.JSONOutput && i == len(c.tasks)-1,
		})
		if cancel != nil {
			cancel()
		}
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i+1, task.Agent.Name, err)
		}

		output := strings.TrimSpace(resp.Text)
		if output == "" {
			return nil, fmt.Errorf("task %d (%s): empty output", i+1, task.Agent.Name)
		}

		result.TaskOutputs = append(result.TaskOutputs, TaskOutput{Agent: task.Agent.Name, Output: output})
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		if resp.Model != "" {
			result.Model = resp.Model
		}

		c.logger.Debug("task completed",
			"task", i+1,
			"agent", task.Agent.Name,
			"output_length", len(output),
		)
	}

	result.Output = result.TaskOutputs[len(result.TaskOutputs)-1].Output
	result.Duration = time.Since(start)

	c.logger.Info("crew finished",
		"tasks", len(c.tasks),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func buildSystemPrompt(a *Agent) string {
	var sb strings.Builder
	if a.Role != "" {
		fmt.Fprintf(&sb, "You are %s.", a.Role)
	}
	if a.Backstory != "" {
		sb.WriteString(" ")
		sb.WriteString(a.Backstory)
	}
	if a.Goal != "" {
		fmt.Fprintf(&sb, "\nYour personal goal is: %s", a.Goal)
	}
	return strings.TrimSpace(sb.String())
}

func buildTaskPrompt(t Task, previous []TaskOutput) string {
	var sb strings.Builder
	if len(previous) > 0 {
		sb.WriteString("## Context from previous tasks\n\n")
		for _, p := range previous {
			fmt.Fprintf(&sb, "### %s\n%s\n\n", p.Agent, p.Output)
		}
		sb.WriteString("---\n\n")
	}
	sb.WriteString("## Current task\n\n")
	sb.WriteString(t.Description)
	if t.ExpectedOutput != "" {
		fmt.Fprintf(&sb, "\n\nThis is the expected output for your final answer: %s", t.ExpectedOutput)
	}
	return sb.String()
}
