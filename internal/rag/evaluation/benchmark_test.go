package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/internal/rag"
)

type fakeSearcher struct {
	results map[string][]string
	opts    []rag.Options
}

func (f *fakeSearcher) Search(_ context.Context, query string, opts rag.Options) (*rag.Result, error) {
	f.opts = append(f.opts, opts)
	ids, ok := f.results[query]
	if !ok {
		return nil, errors.New("index unavailable")
	}
	res := &rag.Result{Query: query}
	for _, id := range ids {
		res.Passages = append(res.Passages, rag.Passage{ID: id})
	}
	return res, nil
}

func TestRunner_Run(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]string{
		"basmala":    {"quran_1_1", "quran_27_30"},
		"intentions": {"hadith_sahih-muslim_1907_33", "hadith_sahih-bukhari_1_1"},
	}}
	ds := Dataset{Name: "unit", Cases: []Case{
		{ID: "q1", Query: "basmala", Type: "quran", Relevant: []string{"quran_1_1"}},
		{ID: "h1", Query: "intentions", Type: "hadith", Relevant: []string{"hadith_sahih-bukhari_1_1"}},
		{ID: "x1", Query: "unreachable", Relevant: []string{"quran_2_255"}},
	}}

	report, err := NewRunner(searcher, Config{TopK: 5}, nil).Run(t.Context(), ds)
	require.NoError(t, err)

	assert.Equal(t, "unit", report.Dataset)
	require.Len(t, report.Results, 2)
	assert.Equal(t, []CaseError{{CaseID: "x1", Error: "index unavailable"}}, report.Errors)
	assert.InDelta(t, 0.75, report.Metrics.MRR, 1e-9)
	assert.InDelta(t, 1.0, report.ByType["quran"].MRR, 1e-9)
	assert.InDelta(t, 0.5, report.ByType["hadith"].MRR, 1e-9)

	require.Len(t, searcher.opts, 3)
	assert.Equal(t, rag.Options{TopK: 5, Type: "quran"}, searcher.opts[0])
	assert.Equal(t, rag.Options{TopK: 5}, searcher.opts[2])

	md := FormatMarkdown(report)
	assert.Contains(t, md, "# Retrieval benchmark: unit")
	assert.Contains(t, md, "| 1 | 0.5000 | 0.5000 | 0.5000 |")
	assert.Contains(t, md, "- **x1**: index unavailable")
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewRunner(&fakeSearcher{}, Config{}, nil).Run(ctx, DefaultDataset())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "cases.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cases":[{"id":"a","query":"mercy","relevant":["quran_1_3"]}]}`), 0o644))
	ds, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, path, ds.Name)
	assert.Equal(t, []string{"quran_1_3"}, ds.Cases[0].Relevant)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"name":"none","cases":[]}`), 0o644))
	_, err = LoadDataset(empty)
	assert.Error(t, err)

	_, err = LoadDataset(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestDefaultDataset(t *testing.T) {
	ds := DefaultDataset()
	seen := map[string]bool{}
	for _, c := range ds.Cases {
		assert.False(t, seen[c.ID], "duplicate case %s", c.ID)
		seen[c.ID] = true
		assert.NotEmpty(t, c.Query)
		assert.NotEmpty(t, c.Relevant)
	}
}
