package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PineconeConfig holds Pinecone connection settings.
type PineconeConfig struct {
	APIKey     string
	Index      string
	APIVersion string
	BaseURL    string
	// Host skips index resolution when set. It may include a scheme.
	Host    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// PineconeStore implements VectorStore over the Pinecone REST API.
type PineconeStore struct {
	cfg    PineconeConfig
	host   string
	http   *http.Client
	logger *slog.Logger
}

// IndexDescription is the control-plane view of an index.
type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// NewPineconeStore creates a store and resolves the index host through the control plane.
func NewPineconeStore(ctx context.Context, cfg PineconeConfig) (*PineconeStore, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-04"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &PineconeStore{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger.With("component", "pinecone_store", "index", cfg.Index),
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		desc, err := s.DescribeIndex(ctx)
		if err != nil {
			return nil, err
		}
		host = desc.Host
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	s.host = strings.TrimRight(host, "/")

	return s, nil
}

// DescribeIndex fetches the index description from the control plane.
func (s *PineconeStore) DescribeIndex(ctx context.Context) (*IndexDescription, error) {
	name := strings.TrimSpace(s.cfg.Index)
	if name == "" {
		return nil, fmt.Errorf("pinecone index name required")
	}

	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/indexes/" + url.PathEscape(name)
	desc, err := doJSON[IndexDescription](ctx, s, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("pinecone describe_index: %w", err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index returned empty host")
	}
	return desc, nil
}

type pineconeUpsertRequest struct {
	Vectors []Vector `json:"vectors"`
}

type pineconeUpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Upsert writes vectors in one request.
func (s *PineconeStore) Upsert(ctx context.Context, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	resp, err := doJSON[pineconeUpsertResponse](ctx, s, http.MethodPost, s.host+"/vectors/upsert", pineconeUpsertRequest{Vectors: vectors})
	if err != nil {
		return 0, fmt.Errorf("pinecone upsert: %w", err)
	}
	s.logger.Debug("vectors upserted", "count", resp.UpsertedCount)
	return resp.UpsertedCount, nil
}

type pineconeFetchResponse struct {
	Vectors map[string]Vector `json:"vectors"`
}

// Fetch returns the vectors that exist among ids.
func (s *PineconeStore) Fetch(ctx context.Context, ids []string) (map[string]Vector, error) {
	if len(ids) == 0 {
		return map[string]Vector{}, nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	resp, err := doJSON[pineconeFetchResponse](ctx, s, http.MethodGet, s.host+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pinecone fetch: %w", err)
	}
	if resp.Vectors == nil {
		resp.Vectors = map[string]Vector{}
	}
	return resp.Vectors, nil
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
}

// Delete removes the selected vectors.
func (s *PineconeStore) Delete(ctx context.Context, req DeleteRequest) error {
	body := pineconeDeleteRequest{DeleteAll: req.All}
	if !req.All {
		if len(req.IDs) == 0 {
			return ErrNoIDs
		}
		body.IDs = req.IDs
	}
	if _, err := doJSON[struct{}](ctx, s, http.MethodPost, s.host+"/vectors/delete", body); err != nil {
		return fmt.Errorf("pinecone delete: %w", err)
	}
	return nil
}

type pineconeStatsResponse struct {
	Namespaces map[string]struct {
		VectorCount int64 `json:"vectorCount"`
	} `json:"namespaces"`
	Dimension        int   `json:"dimension"`
	TotalVectorCount int64 `json:"totalVectorCount"`
}

// DescribeStats reports index statistics.
func (s *PineconeStore) DescribeStats(ctx context.Context) (*IndexStats, error) {
	resp, err := doJSON[pineconeStatsResponse](ctx, s, http.MethodPost, s.host+"/describe_index_stats", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("pinecone describe_index_stats: %w", err)
	}
	stats := &IndexStats{
		TotalVectorCount: resp.TotalVectorCount,
		Dimension:        resp.Dimension,
		Namespaces:       make(map[string]int64, len(resp.Namespaces)),
	}
	for name, ns := range resp.Namespaces {
		stats.Namespaces[name] = ns.VectorCount
	}
	return stats, nil
}

type pineconeQueryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []Match `json:"matches"`
}

// Query runs a similarity search.
func (s *PineconeStore) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	body := pineconeQueryRequest{
		Vector:          req.Vector,
		TopK:            req.TopK,
		IncludeMetadata: true,
	}
	if len(req.Filter) > 0 {
		body.Filter = make(map[string]any, len(req.Filter))
		for k, v := range req.Filter {
			body.Filter[k] = map[string]any{"$eq": v}
		}
	}
	resp, err := doJSON[pineconeQueryResponse](ctx, s, http.MethodPost, s.host+"/query", body)
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	return resp.Matches, nil
}

func doJSON[T any](ctx context.Context, s *PineconeStore, method, u string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", s.cfg.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone decode error: %w", err)
	}
	return &out, nil
}
