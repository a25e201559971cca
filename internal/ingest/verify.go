package ingest

import (
	"context"
	"fmt"

	"github.com/alqutdigital/hikma/internal/storage"
)

// SampleID is the vector checked by Verify.
const SampleID = "quran_1_1"

// VerifyReport is the result of a post-ingestion check.
type VerifyReport struct {
	TotalVectors int64 `json:"total_vectors"`
	SampleFound  bool  `json:"sample_found"`
	HasArabic    bool  `json:"has_arabic"`
	HasEnglish   bool  `json:"has_english"`
}

// OK reports whether the sample verse is present with both texts.
func (r VerifyReport) OK() bool {
	return r.SampleFound && r.HasArabic && r.HasEnglish
}

// Verify reads index stats and checks that the first verse carries both texts.
func Verify(ctx context.Context, store storage.VectorStore) (VerifyReport, error) {
	var report VerifyReport

	stats, err := store.DescribeStats(ctx)
	if err != nil {
		return report, fmt.Errorf("describe index stats: %w", err)
	}
	report.TotalVectors = stats.TotalVectorCount

	found, err := store.Fetch(ctx, []string{SampleID})
	if err != nil {
		return report, fmt.Errorf("fetch %s: %w", SampleID, err)
	}
	v, ok := found[SampleID]
	if !ok {
		return report, nil
	}
	report.SampleFound = true
	report.HasArabic = nonEmpty(v.Metadata["text_arabic"])
	report.HasEnglish = nonEmpty(v.Metadata["text_english"])
	return report, nil
}

func nonEmpty(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}
