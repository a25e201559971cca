package corpus

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// Editions fetched per surah.
const (
	EditionArabic  = "quran-uthmani"
	EditionEnglish = "en.sahih"
)

// QuranConfig configures the alquran.cloud client.
type QuranConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// QuranClient fetches surahs with their English translation.
type QuranClient struct {
	cfg QuranConfig
	get *getter
	log *logger.Logger
}

// NewQuranClient creates a Quran client.
func NewQuranClient(cfg QuranConfig, log *logger.Logger) *QuranClient {
	if log == nil {
		log = logger.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://api.alquran.cloud/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	log = log.WithComponent("quran_client")
	return &QuranClient{
		cfg: cfg,
		get: newGetter(cfg.Timeout, cfg.RateLimit, log),
		log: log,
	}
}

type surahResponse struct {
	Code int `json:"code"`
	Data struct {
		Name           string `json:"name"`
		EnglishName    string `json:"englishName"`
		RevelationType string `json:"revelationType"`
		Ayahs          []struct {
			Text          string  `json:"text"`
			NumberInSurah flexInt `json:"numberInSurah"`
		} `json:"ayahs"`
	} `json:"data"`
}

// FetchSurah fetches surah n in both editions and pairs the verses. It returns
// nil unless both editions succeed with equal verse counts; such a failure is
// reported to counter as one fetch error.
func (c *QuranClient) FetchSurah(ctx context.Context, n int, counter Counter) []Record {
	if counter == nil {
		counter = nopCounter{}
	}
	if n < 1 || n > SurahCount {
		c.log.Warn("surah out of range", "surah", n)
		return nil
	}

	arabic, err := c.fetchEdition(ctx, n, EditionArabic)
	if err != nil {
		c.log.WithError(err).Warn("failed to fetch surah", "surah", n, "edition", EditionArabic)
		counter.AddFetchErrors(1)
		return nil
	}
	english, err := c.fetchEdition(ctx, n, EditionEnglish)
	if err != nil {
		c.log.WithError(err).Warn("failed to fetch surah", "surah", n, "edition", EditionEnglish)
		counter.AddFetchErrors(1)
		return nil
	}

	if len(arabic.Data.Ayahs) != len(english.Data.Ayahs) {
		c.log.Warn("edition verse counts differ",
			"surah", n,
			"arabic", len(arabic.Data.Ayahs),
			"english", len(english.Data.Ayahs),
		)
		counter.AddFetchErrors(1)
		return nil
	}

	surahName := firstNonEmpty(english.Data.EnglishName, fmt.Sprintf("Surah %d", n))
	revelation := firstNonEmpty(english.Data.RevelationType, "makkah")

	records := make([]Record, len(arabic.Data.Ayahs))
	for i, ar := range arabic.Data.Ayahs {
		records[i] = Record{
			Corpus:      KindQuran,
			Surah:       n,
			Ayah:        int(ar.NumberInSurah),
			SurahName:   surahName,
			SurahArabic: arabic.Data.Name,
			Revelation:  revelation,
			Primary:     strings.TrimSpace(ar.Text),
			Secondary:   strings.TrimSpace(english.Data.Ayahs[i].Text),
		}
	}
	return records
}

func (c *QuranClient) fetchEdition(ctx context.Context, n int, edition string) (*surahResponse, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/surah/" + strconv.Itoa(n) + "/" + edition

	var resp surahResponse
	if err := c.get.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, fmt.Errorf("response code %d", resp.Code)
	}
	return &resp, nil
}
