package corpus

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// HadithConfig configures the hadithapi.com client.
type HadithConfig struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Workers   int     // concurrent chapter fetches
	RateLimit float64 // requests per second, 0 disables
	PageSize  int
}

// DefaultHadithConfig returns the default client configuration.
func DefaultHadithConfig(apiKey string) HadithConfig {
	return HadithConfig{
		APIKey:   apiKey,
		BaseURL:  "https://hadithapi.com/api",
		Timeout:  30 * time.Second,
		Workers:  10,
		PageSize: 500,
	}
}

// Chapter is one chapter of a hadith book.
type Chapter struct {
	Key  string
	Name string
}

// HadithClient fetches hadith collections.
type HadithClient struct {
	cfg HadithConfig
	get *getter
	log *logger.Logger

	// OnChapter, when set, is called after each chapter fetch completes.
	OnChapter func(done, total int)
}

// NewHadithClient creates a hadith client.
func NewHadithClient(cfg HadithConfig, log *logger.Logger) *HadithClient {
	if log == nil {
		log = logger.Default()
	}
	def := DefaultHadithConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	log = log.WithComponent("hadith_client")
	return &HadithClient{
		cfg: cfg,
		get: newGetter(cfg.Timeout, cfg.RateLimit, log),
		log: log,
	}
}

type chaptersResponse struct {
	Chapters []struct {
		ChapterKey     flexString `json:"chapterKey"`
		Key            flexString `json:"key"`
		ChapterNumber  flexString `json:"chapterNumber"`
		ChapterEnglish string     `json:"chapterEnglish"`
		ChapterName    string     `json:"chapterName"`
	} `json:"chapters"`
}

// Chapters lists a book's chapters, or nil when the request fails.
func (c *HadithClient) Chapters(ctx context.Context, slug string) []Chapter {
	chapters, err := c.chapters(ctx, slug)
	if err != nil {
		c.log.WithError(err).Warn("failed to fetch chapters", "book", slug)
	}
	return chapters
}

func (c *HadithClient) chapters(ctx context.Context, slug string) ([]Chapter, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + url.PathEscape(slug) + "/chapters?" +
		url.Values{"apiKey": {c.cfg.APIKey}}.Encode()

	var resp chaptersResponse
	if err := c.get.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	chapters := make([]Chapter, 0, len(resp.Chapters))
	for _, ch := range resp.Chapters {
		key := firstNonEmpty(string(ch.ChapterKey), string(ch.Key), string(ch.ChapterNumber))
		name := firstNonEmpty(ch.ChapterEnglish, ch.ChapterName, "Unknown")
		chapters = append(chapters, Chapter{Key: key, Name: name})
	}
	return chapters, nil
}

type hadithsResponse struct {
	Hadiths struct {
		Data []struct {
			HadithEnglish  string     `json:"hadithEnglish"`
			HadithArabic   string     `json:"hadithArabic"`
			HadithNumber   flexString `json:"hadithNumber"`
			HadithNarrator string     `json:"hadithNarrator"`
			Grade          string     `json:"grade"`
		} `json:"data"`
	} `json:"hadiths"`
}

// ChapterHadiths fetches one chapter. Hadiths without English text are dropped
// and reported to counter as skipped; kept ones are reported as fetched. A
// failed request is reported as one fetch error.
func (c *HadithClient) ChapterHadiths(ctx context.Context, book Book, chapter Chapter, counter Counter) []Record {
	if counter == nil {
		counter = nopCounter{}
	}
	if chapter.Key == "" {
		return nil
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/hadiths?" + url.Values{
		"apiKey":   {c.cfg.APIKey},
		"book":     {book.Slug},
		"chapter":  {chapter.Key},
		"paginate": {strconv.Itoa(c.cfg.PageSize)},
	}.Encode()

	var resp hadithsResponse
	if err := c.get.getJSON(ctx, u, &resp); err != nil {
		c.log.WithError(err).Warn("failed to fetch chapter", "book", book.Slug, "chapter", chapter.Key)
		counter.AddFetchErrors(1)
		return nil
	}

	records := make([]Record, 0, len(resp.Hadiths.Data))
	skipped := 0
	for _, h := range resp.Hadiths.Data {
		english := strings.TrimSpace(h.HadithEnglish)
		if english == "" {
			skipped++
			continue
		}
		records = append(records, Record{
			Corpus:       KindHadith,
			BookSlug:     book.Slug,
			BookName:     book.Name,
			ChapterKey:   chapter.Key,
			ChapterName:  chapter.Name,
			HadithNumber: string(h.HadithNumber),
			Narrator:     h.HadithNarrator,
			Grade:        firstNonEmpty(h.Grade, "Unknown"),
			Primary:      english,
			Secondary:    strings.TrimSpace(h.HadithArabic),
		})
	}

	counter.AddFetched(len(records))
	if skipped > 0 {
		counter.AddSkipped(skipped)
	}
	return records
}

// FetchBook fetches every chapter of a book concurrently. Records arrive in
// completion order, which differs between runs.
func (c *HadithClient) FetchBook(ctx context.Context, book Book, counter Counter) []Record {
	if counter == nil {
		counter = nopCounter{}
	}
	chapters, err := c.chapters(ctx, book.Slug)
	if err != nil {
		c.log.WithError(err).Warn("failed to fetch chapters", "book", book.Slug)
		counter.AddFetchErrors(1)
		return nil
	}
	if len(chapters) == 0 {
		return nil
	}

	c.log.Info("fetching book", "book", book.Slug, "chapters", len(chapters), "workers", c.cfg.Workers)

	var (
		mu      sync.Mutex
		records []Record
		done    int
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for _, ch := range chapters {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			got := c.ChapterHadiths(ctx, book, ch, counter)

			mu.Lock()
			records = append(records, got...)
			done++
			n := done
			mu.Unlock()

			if c.OnChapter != nil {
				c.OnChapter(n, len(chapters))
			}
			return nil
		})
	}
	_ = g.Wait()

	c.log.Info("book fetched", "book", book.Slug, "records", len(records))
	return records
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
