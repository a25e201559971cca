package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/corpus"
	"github.com/alqutdigital/hikma/internal/embedder"
	"github.com/alqutdigital/hikma/internal/ingest"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
)

func serveJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func hadithServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/sahih-bukhari/chapters", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, map[string]any{"chapters": []map[string]any{
			{"chapterNumber": "1", "chapterEnglish": "Revelation"},
			{"chapterNumber": "2", "chapterEnglish": "Belief"},
		}})
	})
	mux.HandleFunc("/hadiths", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("chapter") {
		case "1":
			serveJSON(t, w, map[string]any{"hadiths": map[string]any{"data": []map[string]any{
				{"hadithEnglish": "Actions are judged by intentions.", "hadithArabic": "إنما الأعمال بالنيات", "hadithNumber": "1"},
				{"hadithEnglish": "  ", "hadithNumber": "2"},
			}}})
		default:
			serveJSON(t, w, map[string]any{"hadiths": map[string]any{"data": []map[string]any{
				{"hadithEnglish": "Faith has over sixty branches.", "hadithNumber": "9"},
			}}})
		}
	})
	return httptest.NewServer(mux)
}

func quranServer(t *testing.T) *httptest.Server {
	ayahs := map[string][]string{
		corpus.EditionArabic:  {"بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ", "الْحَمْدُ لِلَّهِ رَبِّ الْعَالَمِينَ"},
		corpus.EditionEnglish: {"In the name of Allah, the Entirely Merciful, the Especially Merciful.", "All praise is due to Allah, Lord of the worlds."},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/surah/1/{edition}", func(w http.ResponseWriter, r *http.Request) {
		texts, ok := ayahs[r.PathValue("edition")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		list := make([]map[string]any, len(texts))
		for i, text := range texts {
			list[i] = map[string]any{"text": text, "numberInSurah": i + 1}
		}
		serveJSON(t, w, map[string]any{"code": 200, "data": map[string]any{
			"name":           "سُورَةُ ٱلْفَاتِحَةِ",
			"englishName":    "Al-Faatiha",
			"revelationType": "Meccan",
			"ayahs":          list,
		}})
	})
	return httptest.NewServer(mux)
}

func testRunner(t *testing.T) (*runner, *storage.MemoryStore, *bytes.Buffer) {
	t.Helper()
	hs := hadithServer(t)
	t.Cleanup(hs.Close)
	qs := quranServer(t)
	t.Cleanup(qs.Close)

	log := logger.Discard()
	store := storage.NewMemoryStore(8)
	var out bytes.Buffer
	r := &runner{
		cfg:    &config.Config{Ingest: config.IngestConfig{HadithBatchSize: 2, QuranBatchSize: 3}},
		log:    log,
		runID:  "run-1",
		store:  store,
		emb:    embedder.NewMockEmbedder(8),
		hadith: corpus.NewHadithClient(corpus.HadithConfig{APIKey: "k", BaseURL: hs.URL, Workers: 2}, log),
		quran:  corpus.NewQuranClient(corpus.QuranConfig{BaseURL: qs.URL}, log),
		stats:  &ingest.Stats{},
		bars:   newProgress(io.Discard, false),
		out:    &out,
	}
	return r, store, &out
}

func TestRunner_IngestHadith(t *testing.T) {
	r, store, out := testRunner(t)
	book, _ := corpus.LookupBook("sahih-bukhari")

	require.NoError(t, r.ingestHadith(t.Context(), []corpus.Book{book}))

	found, err := store.Fetch(t.Context(), []string{"hadith_sahih-bukhari_1_1", "hadith_sahih-bukhari_9_2"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "Revelation", found["hadith_sahih-bukhari_1_1"].Metadata["chapter"])

	c := r.stats.Snapshot()
	assert.Equal(t, ingest.Counts{Fetched: 2, Uploaded: 2, Skipped: 1}, c)
	assert.Contains(t, out.String(), "Sahih Bukhari")
}

func TestRunner_QuranAndVerify(t *testing.T) {
	r, store, out := testRunner(t)

	require.NoError(t, r.ingestQuran(t.Context(), 1, 2))
	stats, err := store.DescribeStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalVectorCount)

	c := r.stats.Snapshot()
	assert.Equal(t, 2, c.Fetched)
	assert.Equal(t, 2, c.Uploaded)
	// the fake serves only surah 1
	assert.Equal(t, 1, c.FetchErrors)

	report, err := r.verify(t.Context())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Contains(t, out.String(), "Sample quran_1_1: found")
}

func TestRunner_QuranStopsWhenCanceled(t *testing.T) {
	r, store, _ := testRunner(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.ErrorIs(t, r.ingestQuran(ctx, 1, 1), context.Canceled)
	stats, err := store.DescribeStats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVectorCount)
}

func TestRunner_Finish(t *testing.T) {
	r, _, out := testRunner(t)
	require.NoError(t, r.ingestQuran(t.Context(), 1, 2))

	r.finish(t.Context(), time.Now())
	assert.Contains(t, out.String(), "=== Ingestion Summary ===")
	assert.Contains(t, out.String(), "Vectors:   2")
	assert.Contains(t, out.String(), "Fetch err: 1")
	assert.NotContains(t, out.String(), "interrupted")
}

func TestSelectBooks(t *testing.T) {
	books, err := selectBooks(nil)
	require.NoError(t, err)
	assert.Equal(t, corpus.Books, books)

	books, err = selectBooks([]string{"sahih-muslim", "ibn-e-majah"})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Sahih Muslim", books[0].Name)

	_, err = selectBooks([]string{"muwatta"})
	assert.Error(t, err)
}

func TestValidateSurahRange(t *testing.T) {
	assert.NoError(t, validateSurahRange(1, 114))
	assert.NoError(t, validateSurahRange(2, 2))
	assert.Error(t, validateSurahRange(0, 5))
	assert.Error(t, validateSurahRange(5, 115))
	assert.Error(t, validateSurahRange(9, 3))
}
