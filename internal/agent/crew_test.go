package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/internal/llm"
)

// stubProvider records requests and replays canned responses.
type stubProvider struct {
	mu        sync.Mutex
	requests  []llm.ChatRequest
	responses []string
	err       error
}

func (s *stubProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	text := ""
	if i := len(s.requests) - 1; i < len(s.responses) {
		text = s.responses[i]
	}
	return &llm.ChatResponse{
		Text:  text,
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }

func TestNewCrew_Validation(t *testing.T) {
	_, err := NewCrew(nil, nil, nil, DefaultCrewConfig())
	assert.Error(t, err)

	_, err = NewCrew(&stubProvider{}, []Task{{Description: "x"}}, nil, DefaultCrewConfig())
	assert.Error(t, err)
}

func TestCrew_KickoffPassesContextForward(t *testing.T) {
	provider := &stubProvider{responses: []string{"draft questions", `[{"type":"mcq"}]`}}
	writer := &Agent{Name: "Writer", Role: "Question Crafter", Goal: "write questions", Backstory: "You teach."}
	reviewer := &Agent{Name: "Reviewer", Role: "Reviewer", Goal: "fix questions"}

	crew, err := NewCrew(provider, []Task{
		{Description: "Write two questions.", ExpectedOutput: "A list", Agent: writer},
		{Description: "Return them as JSON.", Agent: reviewer},
	}, nil, CrewConfig{JSONOutput: true})
	require.NoError(t, err)

	result, err := crew.Kickoff(context.Background())
	require.NoError(t, err)

	assert.Equal(t, `[{"type":"mcq"}]`, result.Output)
	assert.Len(t, result.TaskOutputs, 2)
	assert.Equal(t, 20, result.Usage.InputTokens)
	assert.Equal(t, 10, result.Usage.OutputTokens)
	assert.Equal(t, "stub-model", result.Model)

	require.Len(t, provider.requests, 2)
	first, second := provider.requests[0], provider.requests[1]
	assert.Contains(t, first.SystemPrompt, "Question Crafter")
	assert.Contains(t, first.SystemPrompt, "write questions")
	assert.Contains(t, first.Messages[0].Content, "expected output for your final answer: A list")
	assert.False(t, first.JSONOutput)

	assert.Contains(t, second.Messages[0].Content, "draft questions")
	assert.Contains(t, second.Messages[0].Content, "### Writer")
	assert.True(t, second.JSONOutput)
}

func TestCrew_KickoffErrors(t *testing.T) {
	a := &Agent{Name: "A", Role: "r"}

	tests := []struct {
		name     string
		provider *stubProvider
		tasks    []Task
		wantIs   error
	}{
		{"no tasks", &stubProvider{}, nil, ErrNoTasks},
		{"provider error", &stubProvider{err: errors.New("boom")}, []Task{{Description: "d", Agent: a}}, nil},
		{"empty output", &stubProvider{responses: []string{"   "}}, []Task{{Description: "d", Agent: a}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crew, err := NewCrew(tt.provider, tt.tasks, nil, DefaultCrewConfig())
			require.NoError(t, err)
			_, err = crew.Kickoff(context.Background())
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}
