package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/pkg/logger"
)

type countingStats struct {
	fetched     atomic.Int64
	skipped     atomic.Int64
	fetchErrors atomic.Int64
}

func (c *countingStats) AddFetched(n int)     { c.fetched.Add(int64(n)) }
func (c *countingStats) AddSkipped(n int)     { c.skipped.Add(int64(n)) }
func (c *countingStats) AddFetchErrors(n int) { c.fetchErrors.Add(int64(n)) }

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"12a"`, "12a"},
		{`7`, "7"},
		{`null`, ""},
		{`3.0`, "3.0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f flexString
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			assert.Equal(t, tt.want, string(f))
		})
	}

	var bad flexString
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestLookupBook(t *testing.T) {
	b, ok := LookupBook("al-tirmidhi")
	require.True(t, ok)
	assert.Equal(t, "Jami' at-Tirmidhi", b.Name)

	_, ok = LookupBook("muwatta")
	assert.False(t, ok)
	assert.Len(t, Books, 6)
}

// hadithAPI fakes hadithapi.com with one book of several chapters.
func hadithAPI(t *testing.T, chapters int, inFlight *atomic.Int32, maxInFlight *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/sahih-bukhari/chapters":
			list := make([]map[string]any, 0, chapters+1)
			for i := 1; i <= chapters; i++ {
				switch i % 3 {
				case 0:
					list = append(list, map[string]any{"chapterNumber": i, "chapterName": fmt.Sprintf("Name %d", i)})
				case 1:
					list = append(list, map[string]any{"chapterKey": fmt.Sprint(i), "chapterEnglish": fmt.Sprintf("Chapter %d", i)})
				default:
					list = append(list, map[string]any{"key": i})
				}
			}
			// no usable key
			list = append(list, map[string]any{"chapterEnglish": "Orphan"})
			_ = json.NewEncoder(w).Encode(map[string]any{"chapters": list})

		case r.URL.Path == "/hadiths":
			if inFlight != nil {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
			}
			assert.Equal(t, "sahih-bukhari", r.URL.Query().Get("book"))
			assert.Equal(t, "500", r.URL.Query().Get("paginate"))
			ch := r.URL.Query().Get("chapter")
			if ch == "2" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"hadiths": map[string]any{"data": []map[string]any{
					{"hadithEnglish": " English " + ch + " ", "hadithArabic": "عربي", "hadithNumber": ch + "01", "hadithNarrator": "Abu Hurairah", "grade": "Sahih"},
					{"hadithEnglish": "Second " + ch, "hadithArabic": "", "hadithNumber": 2, "hadithNarrator": nil},
					{"hadithEnglish": "   ", "hadithArabic": "only arabic", "hadithNumber": 3},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestHadithClient_Chapters(t *testing.T) {
	srv := hadithAPI(t, 3, nil, nil)
	defer srv.Close()

	c := NewHadithClient(HadithConfig{APIKey: "secret", BaseURL: srv.URL}, logger.Discard())
	chapters := c.Chapters(context.Background(), "sahih-bukhari")
	require.Len(t, chapters, 4)
	assert.Equal(t, Chapter{Key: "1", Name: "Chapter 1"}, chapters[0])
	assert.Equal(t, Chapter{Key: "2", Name: "Unknown"}, chapters[1])
	assert.Equal(t, Chapter{Key: "3", Name: "Name 3"}, chapters[2])
	assert.Equal(t, "", chapters[3].Key)

	assert.Nil(t, c.Chapters(context.Background(), "unknown-book"))
}

func TestHadithClient_ChapterHadiths(t *testing.T) {
	srv := hadithAPI(t, 3, nil, nil)
	defer srv.Close()

	c := NewHadithClient(HadithConfig{APIKey: "secret", BaseURL: srv.URL}, logger.Discard())
	book := Book{Slug: "sahih-bukhari", Name: "Sahih Bukhari"}
	stats := &countingStats{}

	records := c.ChapterHadiths(context.Background(), book, Chapter{Key: "1", Name: "Revelation"}, stats)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, KindHadith, first.Corpus)
	assert.Equal(t, "English 1", first.Primary)
	assert.Equal(t, "عربي", first.Secondary)
	assert.Equal(t, "101", first.HadithNumber)
	assert.Equal(t, "Sahih", first.Grade)
	assert.Equal(t, "Revelation", first.ChapterName)
	assert.Equal(t, "Unknown", records[1].Grade)
	assert.Equal(t, "2", records[1].HadithNumber)
	assert.Equal(t, "", records[1].Narrator)

	assert.Equal(t, int64(2), stats.fetched.Load())
	assert.Equal(t, int64(1), stats.skipped.Load())

	// failing chapter and missing key both degrade to no records
	assert.Empty(t, c.ChapterHadiths(context.Background(), book, Chapter{Key: "2"}, stats))
	assert.Empty(t, c.ChapterHadiths(context.Background(), book, Chapter{}, stats))
	assert.Equal(t, int64(2), stats.fetched.Load())
	assert.Equal(t, int64(1), stats.fetchErrors.Load(), "only the request that failed counts")
}

func TestHadithClient_FetchBookBoundedFanOut(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := hadithAPI(t, 30, &inFlight, &maxInFlight)
	defer srv.Close()

	c := NewHadithClient(HadithConfig{APIKey: "secret", BaseURL: srv.URL, Workers: 4}, logger.Discard())
	var mu sync.Mutex
	var progress []int
	c.OnChapter = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, done)
		assert.Equal(t, 31, total)
	}

	stats := &countingStats{}
	records := c.FetchBook(context.Background(), Book{Slug: "sahih-bukhari", Name: "Sahih Bukhari"}, stats)

	// 30 keyed chapters, one of which fails, two usable hadiths each
	assert.Len(t, records, 29*2)
	assert.Equal(t, int64(58), stats.fetched.Load())
	assert.Equal(t, int64(29), stats.skipped.Load())
	assert.Equal(t, int64(1), stats.fetchErrors.Load())
	assert.LessOrEqual(t, maxInFlight.Load(), int32(4))

	sort.Ints(progress)
	require.Len(t, progress, 31)
	assert.Equal(t, 31, progress[30])
}

func TestHadithClient_FetchBookWithoutChapters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewHadithClient(HadithConfig{APIKey: "secret", BaseURL: srv.URL}, logger.Discard())
	assert.Nil(t, c.FetchBook(context.Background(), Books[0], nil))

	stats := &countingStats{}
	assert.Nil(t, c.FetchBook(context.Background(), Books[0], stats))
	assert.Equal(t, int64(1), stats.fetchErrors.Load())
}

func TestHadithClient_FetchBookCountsFailedChapters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sahih-muslim/chapters" {
			_, _ = w.Write([]byte(`{"chapters":[{"chapterKey":"1"},{"chapterKey":"2"}]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHadithClient(HadithConfig{APIKey: "secret", BaseURL: srv.URL, Workers: 2}, logger.Discard())
	stats := &countingStats{}
	records := c.FetchBook(context.Background(), Book{Slug: "sahih-muslim", Name: "Sahih Muslim"}, stats)

	assert.Empty(t, records)
	assert.Zero(t, stats.fetched.Load())
	assert.Equal(t, int64(2), stats.fetchErrors.Load())
}

// quranAPI fakes alquran.cloud. overrides maps "surah/edition" to a raw response.
func quranAPI(t *testing.T, overrides map[string]func(w http.ResponseWriter)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		require.Len(t, parts, 3)
		key := parts[1] + "/" + parts[2]
		if fn, ok := overrides[key]; ok {
			fn(w)
			return
		}

		data := map[string]any{"ayahs": []map[string]any{
			{"text": "verse one " + parts[2], "numberInSurah": 1},
			{"text": "verse two " + parts[2], "numberInSurah": 2},
		}}
		if parts[2] == EditionArabic {
			data["name"] = "سورة"
		} else {
			data["englishName"] = "Al-Ikhlas"
			data["revelationType"] = "Meccan"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": data})
	}))
}

func TestQuranClient_FetchSurah(t *testing.T) {
	srv := quranAPI(t, nil)
	defer srv.Close()

	c := NewQuranClient(QuranConfig{BaseURL: srv.URL}, logger.Discard())
	records := c.FetchSurah(context.Background(), 112, nil)
	require.Len(t, records, 2)

	r := records[1]
	assert.Equal(t, KindQuran, r.Corpus)
	assert.Equal(t, 112, r.Surah)
	assert.Equal(t, 2, r.Ayah)
	assert.Equal(t, "verse two "+EditionArabic, r.Primary)
	assert.Equal(t, "verse two "+EditionEnglish, r.Secondary)
	assert.Equal(t, "Al-Ikhlas", r.SurahName)
	assert.Equal(t, "سورة", r.SurahArabic)
	assert.Equal(t, "Meccan", r.Revelation)
}

func TestQuranClient_FetchSurahDefaults(t *testing.T) {
	srv := quranAPI(t, map[string]func(http.ResponseWriter){
		"5/" + EditionEnglish: func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"code":200,"data":{"ayahs":[{"text":"a","numberInSurah":1},{"text":"b","numberInSurah":"2"}]}}`))
		},
	})
	defer srv.Close()

	c := NewQuranClient(QuranConfig{BaseURL: srv.URL}, logger.Discard())
	records := c.FetchSurah(context.Background(), 5, nil)
	require.Len(t, records, 2)
	assert.Equal(t, "Surah 5", records[0].SurahName)
	assert.Equal(t, "makkah", records[0].Revelation)
}

func TestQuranClient_FetchSurahFailures(t *testing.T) {
	tests := []struct {
		name     string
		override func(http.ResponseWriter)
	}{
		{"http error", func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) }},
		{"body code", func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"code":404,"data":{}}`)) }},
		{"malformed", func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"code":`)) }},
		{"count mismatch", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"code":200,"data":{"ayahs":[{"text":"only","numberInSurah":1}]}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := quranAPI(t, map[string]func(http.ResponseWriter){"9/" + EditionEnglish: tt.override})
			defer srv.Close()

			c := NewQuranClient(QuranConfig{BaseURL: srv.URL}, logger.Discard())
			stats := &countingStats{}
			assert.Nil(t, c.FetchSurah(context.Background(), 9, stats))
			assert.Equal(t, int64(1), stats.fetchErrors.Load())
		})
	}

	c := NewQuranClient(QuranConfig{BaseURL: "http://127.0.0.1:1"}, logger.Discard())
	stats := &countingStats{}
	assert.Nil(t, c.FetchSurah(context.Background(), 0, stats))
	assert.Nil(t, c.FetchSurah(context.Background(), 115, stats))
	assert.Zero(t, stats.fetchErrors.Load(), "out of range is not a fetch error")
}
