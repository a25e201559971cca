// Package storage provides the vector store backends, the Redis embedding cache
// and the object store used for corpus snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alqutdigital/hikma/internal/embedder"
)

// ErrNoIDs is returned by Delete when neither All nor IDs is set.
var ErrNoIDs = errors.New("delete requires ids or all")

// VectorStore defines the interface for vector storage operations.
// Upsert overwrites by ID, so re-ingesting the same record never duplicates it.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) (int, error)
	Fetch(ctx context.Context, ids []string) (map[string]Vector, error)
	Delete(ctx context.Context, req DeleteRequest) error
	DescribeStats(ctx context.Context) (*IndexStats, error)
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
}

// Vector is one embedded record.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteRequest selects vectors to delete.
type DeleteRequest struct {
	All bool
	IDs []string
}

// IndexStats summarizes the contents of an index.
type IndexStats struct {
	TotalVectorCount int64            `json:"totalVectorCount"`
	Dimension        int              `json:"dimension"`
	Namespaces       map[string]int64 `json:"namespaces,omitempty"`
}

// QueryRequest describes a similarity query. Filter is an equality match on
// metadata fields.
type QueryRequest struct {
	Vector []float32
	TopK   int
	Filter map[string]any
}

// Match is one query hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MemoryStore is an in-process VectorStore used by tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	vectors   map[string]Vector
	dimension int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		vectors:   make(map[string]Vector),
		dimension: dimension,
	}
}

// Upsert stores copies of the vectors.
func (m *MemoryStore) Upsert(_ context.Context, vectors []Vector) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range vectors {
		if v.ID == "" {
			return 0, fmt.Errorf("vector id is required")
		}
		if m.dimension > 0 && len(v.Values) != m.dimension {
			return 0, fmt.Errorf("vector %s has dimension %d, index expects %d", v.ID, len(v.Values), m.dimension)
		}
	}
	for _, v := range vectors {
		m.vectors[v.ID] = cloneVector(v)
	}
	return len(vectors), nil
}

// Fetch returns the vectors that exist among ids.
func (m *MemoryStore) Fetch(_ context.Context, ids []string) (map[string]Vector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Vector, len(ids))
	for _, id := range ids {
		if v, ok := m.vectors[id]; ok {
			out[id] = cloneVector(v)
		}
	}
	return out, nil
}

// Delete removes the selected vectors.
func (m *MemoryStore) Delete(_ context.Context, req DeleteRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case req.All:
		m.vectors = make(map[string]Vector)
	case len(req.IDs) > 0:
		for _, id := range req.IDs {
			delete(m.vectors, id)
		}
	default:
		return ErrNoIDs
	}
	return nil
}

// DescribeStats reports the vector count.
func (m *MemoryStore) DescribeStats(_ context.Context) (*IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &IndexStats{
		TotalVectorCount: int64(len(m.vectors)),
		Dimension:        m.dimension,
		Namespaces:       map[string]int64{"": int64(len(m.vectors))},
	}, nil
}

// Query ranks stored vectors by cosine similarity.
func (m *MemoryStore) Query(_ context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.vectors))
	for _, v := range m.vectors {
		if !matchesFilter(v.Metadata, req.Filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       v.ID,
			Score:    float64(embedder.CosineSimilarity(req.Vector, v.Values)),
			Metadata: cloneMetadata(v.Metadata),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneVector(v Vector) Vector {
	values := make([]float32, len(v.Values))
	copy(values, v.Values)
	return Vector{ID: v.ID, Values: values, Metadata: cloneMetadata(v.Metadata)}
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NewVectorStore builds the backend named by backend.
func NewVectorStore(ctx context.Context, backend string, pinecone PineconeConfig, qdrant QdrantConfig, dimension int) (VectorStore, error) {
	switch strings.ToLower(backend) {
	case "pinecone", "":
		return NewPineconeStore(ctx, pinecone)
	case "qdrant":
		return NewQdrantStore(ctx, qdrant)
	case "memory":
		return NewMemoryStore(dimension), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", backend)
	}
}
