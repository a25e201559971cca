package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "fenced markdown",
			input: "Here you go:\n```json\n[{\"type\":\"mcq\"}]\n```",
			want:  `[{"type":"mcq"}]`,
		},
		{
			name:  "nested arrays use last bracket",
			input: `noise [{"options":["a","b"]}] trailing`,
			want:  `[{"options":["a","b"]}]`,
		},
		{
			name:    "no brackets",
			input:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "brackets but invalid json",
			input:   "[1, 2,] and then ]",
			wantErr: true,
		},
		{
			name:    "close before open",
			input:   "] nothing [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractArray(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNoJSON))
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestDecodeObject(t *testing.T) {
	type grade struct {
		TotalScore float64 `json:"totalScore"`
		Feedback   string  `json:"feedback"`
	}

	got, err := DecodeObject[grade]("Result: {\"totalScore\": 80, \"feedback\": \"good\"} done")
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.TotalScore)
	assert.Equal(t, "good", got.Feedback)

	_, err = DecodeObject[grade](`{"totalScore": "high"}`)
	assert.ErrorIs(t, err, ErrNoJSON)
}
