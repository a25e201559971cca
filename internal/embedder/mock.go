package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder derives unit-length vectors with non-negative components from
// the text itself. Equal texts embed identically; it never calls out.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder. A non-positive dimension means 768.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &MockEmbedder{dimension: dimension}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return mockVector(text, m.dimension), nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = mockVector(text, m.dimension)
	}
	return out, nil
}

func (m *MockEmbedder) Dimension() int    { return m.dimension }
func (m *MockEmbedder) ModelName() string { return "mock-embedder" }

// mockVector seeds an xorshift generator with the FNV-1a hash of text.
func mockVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	raw := make([]float64, dim)
	var norm float64
	for i := range raw {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		raw[i] = float64(state>>11) / (1 << 53)
		norm += raw[i] * raw[i]
	}

	v := make([]float32, dim)
	if norm == 0 {
		return v
	}
	scale := 1 / math.Sqrt(norm)
	for i, x := range raw {
		v[i] = float32(x * scale)
	}
	return v
}
