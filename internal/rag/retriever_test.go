package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/internal/chunker"
	"github.com/alqutdigital/hikma/internal/storage"
)

// MockVectorStore implements storage.VectorStore for testing.
type MockVectorStore struct {
	*storage.MemoryStore
	matches   []storage.Match
	queryErr  error
	lastQuery storage.QueryRequest
}

func (m *MockVectorStore) Query(_ context.Context, req storage.QueryRequest) ([]storage.Match, error) {
	m.lastQuery = req
	return m.matches, m.queryErr
}

// MockEmbedder implements Embedder for testing.
type MockEmbedder struct {
	embedding []float32
	err       error
	called    bool
}

func (m *MockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.called = true
	return m.embedding, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quranMatch(surah, ayah, score float64) storage.Match {
	return storage.Match{
		ID:    "quran_x",
		Score: score,
		Metadata: map[string]any{
			"type":         "quran",
			"surah_name":   "Al-Baqarah",
			"surah_number": surah,
			"ayah_number":  ayah,
			"text_arabic":  "اللَّهُ لَا إِلَٰهَ إِلَّا هُوَ",
			"text_english": "Allah - there is no deity except Him",
		},
	}
}

func hadithMatch(number string, score float64) storage.Match {
	return storage.Match{
		ID:    "hadith_sahih-bukhari_" + number + "_1",
		Score: score,
		Metadata: map[string]any{
			"type":          "hadith",
			"book_name":     "Sahih Bukhari",
			"hadith_number": number,
			"english_text":  "Actions are judged by intentions",
			"arabic_text":   "إنما الأعمال بالنيات",
			"grade":         "Sahih",
		},
	}
}

func TestRetriever_Search(t *testing.T) {
	store := &MockVectorStore{matches: []storage.Match{
		quranMatch(2, 255, 0.91),
		hadithMatch("1", 0.85),
		hadithMatch("1", 0.80),
		hadithMatch("2", 0.70),
	}}
	emb := &MockEmbedder{embedding: []float32{0.1, 0.2}}
	r := NewRetriever(store, emb, testLogger(), RetrieverConfig{})

	res, err := r.Search(context.Background(), "what is intention", Options{TopK: 3})
	require.NoError(t, err)

	assert.True(t, emb.called)
	assert.Equal(t, 6, store.lastQuery.TopK)
	assert.Nil(t, store.lastQuery.Filter)
	require.Len(t, res.Passages, 3)
	assert.Equal(t, "Quran 2:255", res.Passages[0].Citation)
	assert.Equal(t, "Allah - there is no deity except Him", res.Passages[0].Text)
	assert.Equal(t, "Sahih Bukhari #1", res.Passages[1].Citation)
	assert.Equal(t, []string{"Quran 2:255", "Sahih Bukhari #1"}, res.Sources)
	assert.Equal(t, LanguageEnglish, res.Language)
}

func TestRetriever_SearchByType(t *testing.T) {
	store := &MockVectorStore{matches: []storage.Match{
		quranMatch(1, 1, 0.9),
		hadithMatch("7", 0.8),
	}}
	r := NewRetriever(store, &MockEmbedder{embedding: []float32{1}}, testLogger(), DefaultRetrieverConfig())

	res, err := r.Search(context.Background(), "intention", Options{Type: "hadith"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "hadith"}, store.lastQuery.Filter)
	assert.Equal(t, 10, store.lastQuery.TopK)
	require.Len(t, res.Passages, 1)
	assert.Equal(t, "hadith", res.Passages[0].Type)
}

func TestRetriever_MinScore(t *testing.T) {
	store := &MockVectorStore{matches: []storage.Match{
		quranMatch(1, 1, 0.9),
		hadithMatch("7", 0.2),
	}}
	r := NewRetriever(store, &MockEmbedder{embedding: []float32{1}}, testLogger(), RetrieverConfig{MinScore: 0.5})

	res, err := r.Search(context.Background(), "mercy", Options{})
	require.NoError(t, err)
	assert.Len(t, res.Passages, 1)
}

func TestRetriever_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		emb   *MockEmbedder
		store *MockVectorStore
	}{
		{"empty query", "", &MockEmbedder{}, &MockVectorStore{}},
		{"embedding error", "q", &MockEmbedder{err: errors.New("quota")}, &MockVectorStore{}},
		{"store error", "q", &MockEmbedder{embedding: []float32{1}}, &MockVectorStore{queryErr: errors.New("down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(tt.store, tt.emb, testLogger(), RetrieverConfig{})
			_, err := r.Search(context.Background(), tt.query, Options{})
			assert.Error(t, err)
		})
	}
}

func TestRetriever_WithMemoryStore(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore(2)
	_, err := mem.Upsert(ctx, []storage.Vector{
		{ID: "quran_1_1", Values: []float32{1, 0}, Metadata: map[string]any{"type": "quran", "ayah_key": "1:1", "text_english": "In the name of Allah"}},
		{ID: "hadith_a_1_1", Values: []float32{0, 1}, Metadata: map[string]any{"type": "hadith", "book_name": "Sahih Muslim", "hadith_number": "1"}},
	})
	require.NoError(t, err)

	r := NewRetriever(mem, &MockEmbedder{embedding: []float32{0.9, 0.1}}, testLogger(), RetrieverConfig{})
	res, err := r.Search(ctx, "name of Allah", Options{TopK: 1})
	require.NoError(t, err)
	require.Len(t, res.Passages, 1)
	assert.Equal(t, "quran_1_1", res.Passages[0].ID)
	assert.Equal(t, "Quran 1:1", res.Passages[0].Citation)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		query string
		want  Language
	}{
		{"What is zakat?", LanguageEnglish},
		{"ما هي الزكاة", LanguageArabic},
		{"زکوٰۃ کیا ہے", LanguageUrdu},
		{"Zekât nedir, açıkla", LanguageTurkish},
		{"apa yang dimaksud zakat", LanguageIndonesian},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.query))
		})
	}
	assert.Equal(t, "English", Language("xx").Name())
}

func TestFormatContext(t *testing.T) {
	passages := []Passage{
		passageFromMatch(quranMatch(2, 255, 0.9), LanguageEnglish),
		passageFromMatch(hadithMatch("1", 0.8), LanguageEnglish),
	}

	en := FormatContext(passages, LanguageEnglish, nil)
	assert.Contains(t, en, "# Islamic Knowledge Base (English)")
	assert.Contains(t, en, "**Surah:** Al-Baqarah (2:255)")
	assert.Contains(t, en, "**Collection:** Sahih Bukhari")
	assert.Contains(t, en, "**Translation:**\nActions are judged by intentions")
	assert.NotContains(t, en, "**Arabic Text:**")

	ar := FormatContext(passages, LanguageArabic, nil)
	assert.Contains(t, ar, "**Arabic Text:**")
	assert.NotContains(t, ar, "**Translation:**")

	assert.Empty(t, FormatContext(nil, LanguageEnglish, nil))
}

func TestFormatContext_Budget(t *testing.T) {
	passages := []Passage{
		{Type: "hadith", Book: "A", HadithNumber: "1", Text: strings.Repeat("x", 100)},
		{Type: "hadith", Book: "B", HadithNumber: "2", Text: strings.Repeat("y", 100)},
	}
	full := FormatContext(passages, LanguageEnglish, nil)
	budget := chunker.NewApproxBudget(chunker.NewApproxBudget(1).Count(full) - 10)

	limited := FormatContext(passages, LanguageEnglish, budget)
	assert.Contains(t, limited, "## Source 1")
	assert.NotContains(t, limited, "## Source 2")
}
