package ingest

import (
	"fmt"
	"strconv"

	"github.com/alqutdigital/hikma/internal/corpus"
)

// Metadata length caps, in runes.
const (
	maxChapterLen  = 200
	maxNarratorLen = 200
	maxTextLen     = 1000
	maxCombinedLen = 2000
)

// Source labels stored with each vector.
const (
	SourceHadith = "Hadith API"
	SourceQuran  = "AlQuran Cloud API"
)

// VectorID returns the deterministic ID of a record. Re-ingesting a record
// overwrites the same vector.
func VectorID(r corpus.Record) string {
	if r.Corpus == corpus.KindQuran {
		return fmt.Sprintf("quran_%d_%d", r.Surah, r.Ayah)
	}
	return fmt.Sprintf("hadith_%s_%s_%s", r.BookSlug, r.HadithNumber, r.ChapterKey)
}

// CombinedText is the text that gets embedded: primary, then secondary on a
// new line when present.
func CombinedText(r corpus.Record) string {
	if r.Secondary == "" {
		return r.Primary
	}
	return r.Primary + "\n" + r.Secondary
}

// Metadata builds the vector metadata for a record.
func Metadata(r corpus.Record) map[string]any {
	if r.Corpus == corpus.KindQuran {
		return map[string]any{
			"type":             string(corpus.KindQuran),
			"surah_number":     r.Surah,
			"surah_name":       r.SurahName,
			"surah_arabic":     r.SurahArabic,
			"ayah_number":      r.Ayah,
			"ayah_key":         strconv.Itoa(r.Surah) + ":" + strconv.Itoa(r.Ayah),
			"revelation_place": r.Revelation,
			"text_arabic":      truncate(r.Primary, maxTextLen),
			"text_english":     truncate(r.Secondary, maxTextLen),
			"source":           SourceQuran,
			"text":             truncate(CombinedText(r), maxCombinedLen),
		}
	}
	return map[string]any{
		"type":          string(corpus.KindHadith),
		"book_name":     r.BookName,
		"book_slug":     r.BookSlug,
		"chapter":       truncate(r.ChapterName, maxChapterLen),
		"hadith_number": r.HadithNumber,
		"english_text":  truncate(r.Primary, maxTextLen),
		"arabic_text":   truncate(r.Secondary, maxTextLen),
		"narrator":      truncate(r.Narrator, maxNarratorLen),
		"grade":         r.Grade,
		"source":        SourceHadith,
	}
}

// unitOf labels the book or surah a record belongs to.
func unitOf(r corpus.Record) string {
	if r.Corpus == corpus.KindQuran {
		return strconv.Itoa(r.Surah)
	}
	return r.BookSlug
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
