package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alqutdigital/hikma/internal/rag"
)

// Case is one query with the vector IDs that should be retrieved for it.
type Case struct {
	ID       string   `json:"id"`
	Query    string   `json:"query"`
	Type     string   `json:"type,omitempty"` // passed through as the search filter
	Relevant []string `json:"relevant"`
}

// Dataset is a named set of cases.
type Dataset struct {
	Name  string `json:"name"`
	Cases []Case `json:"cases"`
}

// Searcher is satisfied by *rag.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, opts rag.Options) (*rag.Result, error)
}

// Config controls a benchmark run.
type Config struct {
	TopK         int
	QueryTimeout time.Duration
}

// DefaultConfig returns the default benchmark configuration.
func DefaultConfig() Config {
	return Config{TopK: 10, QueryTimeout: 30 * time.Second}
}

// CaseError records a case whose search failed.
type CaseError struct {
	CaseID string `json:"case_id"`
	Error  string `json:"error"`
}

// Report is the outcome of a benchmark run.
type Report struct {
	Dataset string             `json:"dataset"`
	Started time.Time          `json:"started"`
	Metrics Metrics            `json:"metrics"`
	ByType  map[string]Metrics `json:"by_type,omitempty"`
	Results []CaseResult       `json:"results"`
	Errors  []CaseError        `json:"errors,omitempty"`
}

// Runner runs datasets against a searcher.
type Runner struct {
	searcher Searcher
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates a benchmark runner.
func NewRunner(searcher Searcher, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	return &Runner{
		searcher: searcher,
		cfg:      cfg,
		logger:   logger.With("component", "benchmark"),
	}
}

// Run searches every case in order. A failed case is recorded and skipped;
// only cancellation of ctx aborts the run.
func (r *Runner) Run(ctx context.Context, ds Dataset) (*Report, error) {
	report := &Report{
		Dataset: ds.Name,
		Started: time.Now(),
		ByType:  map[string]Metrics{},
	}
	r.logger.Info("starting benchmark", "dataset", ds.Name, "cases", len(ds.Cases), "top_k", r.cfg.TopK)

	byType := map[string][]CaseResult{}
	for _, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
		start := time.Now()
		res, err := r.searcher.Search(qctx, c.Query, rag.Options{TopK: r.cfg.TopK, Type: c.Type})
		latency := time.Since(start).Milliseconds()
		cancel()
		if err != nil {
			r.logger.Warn("case failed", "case", c.ID, "error", err)
			report.Errors = append(report.Errors, CaseError{CaseID: c.ID, Error: err.Error()})
			continue
		}

		cr := CaseResult{
			CaseID:    c.ID,
			Query:     c.Query,
			Retrieved: make([]string, 0, len(res.Passages)),
			Relevant:  c.Relevant,
			LatencyMs: latency,
		}
		for _, p := range res.Passages {
			cr.Retrieved = append(cr.Retrieved, p.ID)
		}
		report.Results = append(report.Results, cr)

		kind := c.Type
		if kind == "" {
			kind = "any"
		}
		byType[kind] = append(byType[kind], cr)
	}

	report.Metrics = Calculate(report.Results)
	for kind, results := range byType {
		report.ByType[kind] = Calculate(results)
	}

	r.logger.Info("benchmark completed",
		"cases", len(ds.Cases),
		"errors", len(report.Errors),
		"mrr", report.Metrics.MRR,
		"hit_rate_at_5", report.Metrics.HitRate[5],
	)
	return report, nil
}

// LoadDataset reads a dataset from a JSON file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(ds.Cases) == 0 {
		return nil, fmt.Errorf("dataset %s has no cases", path)
	}
	if ds.Name == "" {
		ds.Name = path
	}
	return &ds, nil
}

// DefaultDataset is a small set of well-known verses and hadith.
func DefaultDataset() Dataset {
	return Dataset{
		Name: "hikma-core",
		Cases: []Case{
			{ID: "basmala", Query: "In the name of Allah, the Entirely Merciful, the Especially Merciful", Type: "quran", Relevant: []string{"quran_1_1"}},
			{ID: "throne-verse", Query: "Allah, there is no deity except Him, the Ever-Living, the Sustainer of existence", Type: "quran", Relevant: []string{"quran_2_255"}},
			{ID: "hardship-ease", Query: "with hardship will be ease", Type: "quran", Relevant: []string{"quran_94_5", "quran_94_6"}},
			{ID: "patience-prayer", Query: "seek help through patience and prayer", Type: "quran", Relevant: []string{"quran_2_45", "quran_2_153"}},
			{ID: "oneness", Query: "Say, He is Allah, who is One", Type: "quran", Relevant: []string{"quran_112_1"}},
			{ID: "intentions", Query: "actions are judged by intentions", Type: "hadith", Relevant: []string{"hadith_sahih-bukhari_1_1"}},
			{ID: "arabic-basmala", Query: "بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ", Relevant: []string{"quran_1_1"}},
		},
	}
}

// FormatMarkdown renders a report as a markdown summary.
func FormatMarkdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Retrieval benchmark: %s\n\n", r.Dataset)
	fmt.Fprintf(&b, "**Started:** %s  \n", r.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Cases:** %d (%d with hits, %d errors)\n\n", r.Metrics.Cases, r.Metrics.WithHits, len(r.Errors))

	b.WriteString("| K | Precision | Recall | Hit rate |\n")
	b.WriteString("|---|-----------|--------|----------|\n")
	for _, k := range Cutoffs {
		fmt.Fprintf(&b, "| %d | %.4f | %.4f | %.4f |\n", k, r.Metrics.Precision[k], r.Metrics.Recall[k], r.Metrics.HitRate[k])
	}
	fmt.Fprintf(&b, "\nMRR %.4f, NDCG@10 %.4f, MAP %.4f\n", r.Metrics.MRR, r.Metrics.NDCG10, r.Metrics.MAP)
	fmt.Fprintf(&b, "Latency mean %.1fms, p95 %.1fms\n", r.Metrics.MeanLatencyMs, r.Metrics.P95LatencyMs)

	if len(r.ByType) > 1 {
		kinds := make([]string, 0, len(r.ByType))
		for kind := range r.ByType {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		b.WriteString("\n| Type | Cases | MRR | Hit rate@5 |\n")
		b.WriteString("|------|-------|-----|------------|\n")
		for _, kind := range kinds {
			m := r.ByType[kind]
			fmt.Fprintf(&b, "| %s | %d | %.4f | %.4f |\n", kind, m.Cases, m.MRR, m.HitRate[5])
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.CaseID, e.Error)
		}
	}
	return b.String()
}
