// Package evaluation measures retrieval quality against cases with known
// relevant vector IDs.
package evaluation

import (
	"math"
	"slices"
)

// Cutoffs are the ranks at which precision, recall and hit rate are reported.
var Cutoffs = []int{1, 3, 5, 10}

// CaseResult is the ranked output of one case.
type CaseResult struct {
	CaseID    string   `json:"case_id"`
	Query     string   `json:"query"`
	Retrieved []string `json:"retrieved"` // vector IDs, best first
	Relevant  []string `json:"relevant"`
	LatencyMs int64    `json:"latency_ms"`
}

// AtK holds a rank-cut metric for each of Cutoffs.
type AtK map[int]float64

// Metrics aggregates retrieval quality over a set of cases.
type Metrics struct {
	Cases     int     `json:"cases"`
	WithHits  int     `json:"with_hits"`
	Precision AtK     `json:"precision"`
	Recall    AtK     `json:"recall"`
	HitRate   AtK     `json:"hit_rate"`
	MRR       float64 `json:"mrr"`
	NDCG10    float64 `json:"ndcg_at_10"`
	MAP       float64 `json:"map"`

	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
}

// Calculate averages the metrics over results. Relevance is binary.
func Calculate(results []CaseResult) Metrics {
	m := Metrics{
		Cases:     len(results),
		Precision: AtK{},
		Recall:    AtK{},
		HitRate:   AtK{},
	}
	if len(results) == 0 {
		return m
	}

	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		relevant := make(map[string]bool, len(r.Relevant))
		for _, id := range r.Relevant {
			relevant[id] = true
		}

		for _, k := range Cutoffs {
			hits := hitsAt(r.Retrieved, relevant, k)
			m.Precision[k] += float64(hits) / float64(k)
			if len(relevant) > 0 {
				m.Recall[k] += float64(hits) / float64(len(relevant))
			}
			if hits > 0 {
				m.HitRate[k]++
			}
		}
		if hitsAt(r.Retrieved, relevant, len(r.Retrieved)) > 0 {
			m.WithHits++
		}

		m.MRR += reciprocalRank(r.Retrieved, relevant)
		m.NDCG10 += ndcg(r.Retrieved, relevant, 10)
		m.MAP += averagePrecision(r.Retrieved, relevant)
		latencies = append(latencies, float64(r.LatencyMs))
	}

	n := float64(len(results))
	for _, k := range Cutoffs {
		m.Precision[k] /= n
		m.Recall[k] /= n
		m.HitRate[k] /= n
	}
	m.MRR /= n
	m.NDCG10 /= n
	m.MAP /= n
	m.MeanLatencyMs = mean(latencies)
	m.P95LatencyMs = percentile(latencies, 95)
	return m
}

func hitsAt(retrieved []string, relevant map[string]bool, k int) int {
	hits := 0
	for _, id := range retrieved[:min(k, len(retrieved))] {
		if relevant[id] {
			hits++
		}
	}
	return hits
}

func reciprocalRank(retrieved []string, relevant map[string]bool) float64 {
	for i, id := range retrieved {
		if relevant[id] {
			return 1 / float64(i+1)
		}
	}
	return 0
}

func ndcg(retrieved []string, relevant map[string]bool, k int) float64 {
	var dcg, ideal float64
	for i, id := range retrieved[:min(k, len(retrieved))] {
		if relevant[id] {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	for i := range min(k, len(relevant)) {
		ideal += 1 / math.Log2(float64(i+2))
	}
	if ideal == 0 {
		return 0
	}
	return dcg / ideal
}

func averagePrecision(retrieved []string, relevant map[string]bool) float64 {
	if len(relevant) == 0 {
		return 0
	}
	var sum float64
	found := 0
	for i, id := range retrieved {
		if relevant[id] {
			found++
			sum += float64(found) / float64(i+1)
		}
	}
	return sum / float64(len(relevant))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile interpolates linearly between the closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	idx := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	w := idx - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
