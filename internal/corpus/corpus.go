// Package corpus fetches Quran verses and Hadith collections from their public REST APIs.
//
// Fetch failures never surface as errors: a non-success status or malformed body
// degrades to "no records" and is logged, so one bad chapter or surah never stops
// an ingestion run.
package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// Kind discriminates the two corpora.
type Kind string

const (
	KindHadith Kind = "hadith"
	KindQuran  Kind = "quran"
)

// SurahCount is the number of surahs in the Quran.
const SurahCount = 114

// Record is one unit of source text: a hadith or a Quran verse.
type Record struct {
	Corpus Kind `json:"corpus"`

	// Hadith identity.
	BookSlug     string `json:"book_slug,omitempty"`
	BookName     string `json:"book_name,omitempty"`
	ChapterKey   string `json:"chapter_key,omitempty"`
	ChapterName  string `json:"chapter_name,omitempty"`
	HadithNumber string `json:"hadith_number,omitempty"`
	Narrator     string `json:"narrator,omitempty"`
	Grade        string `json:"grade,omitempty"`

	// Quran identity.
	Surah       int    `json:"surah,omitempty"`
	Ayah        int    `json:"ayah,omitempty"`
	SurahName   string `json:"surah_name,omitempty"`
	SurahArabic string `json:"surah_arabic,omitempty"`
	Revelation  string `json:"revelation,omitempty"`

	// Primary is English for hadith and Arabic for Quran; Secondary is the other.
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Book is one hadith collection.
type Book struct {
	Slug string
	Name string
}

// Books lists the hadith collections ingested by default, in ingestion order.
var Books = []Book{
	{Slug: "sahih-bukhari", Name: "Sahih Bukhari"},
	{Slug: "sahih-muslim", Name: "Sahih Muslim"},
	{Slug: "abu-dawood", Name: "Sunan Abu Dawood"},
	{Slug: "al-tirmidhi", Name: "Jami' at-Tirmidhi"},
	{Slug: "sunan-nasai", Name: "Sunan an-Nasa'i"},
	{Slug: "ibn-e-majah", Name: "Sunan Ibn Majah"},
}

// LookupBook finds a book by slug.
func LookupBook(slug string) (Book, bool) {
	for _, b := range Books {
		if b.Slug == slug {
			return b, true
		}
	}
	return Book{}, false
}

// Counter receives fetch counts. ingest.Stats implements it. FetchErrors
// counts requests (a chapter list, a chapter, a surah) that yielded nothing
// because the upstream call failed; it is not a record count.
type Counter interface {
	AddFetched(n int)
	AddSkipped(n int)
	AddFetchErrors(n int)
}

type nopCounter struct{}

func (nopCounter) AddFetched(int)     {}
func (nopCounter) AddSkipped(int)     {}
func (nopCounter) AddFetchErrors(int) {}

// getter performs throttled JSON GET requests.
type getter struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func newGetter(timeout time.Duration, rps float64, log *logger.Logger) *getter {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &getter{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

// getJSON decodes the response body into out. Non-200 statuses are errors.
func (g *getter) getJSON(ctx context.Context, url string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
