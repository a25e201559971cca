package ingest

import "sync"

// Stats counts records through a run. It is shared by fetch workers and the
// pipeline and is safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	fetched     int
	uploaded    int
	failed      int
	skipped     int
	fetchErrors int
}

// Counts is a point-in-time copy of Stats.
type Counts struct {
	Fetched  int `json:"fetched"`
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`

	// FetchErrors counts failed upstream requests, not records.
	FetchErrors int `json:"fetch_errors"`
}

func (s *Stats) AddFetched(n int)  { s.add(&s.fetched, n) }
func (s *Stats) AddUploaded(n int) { s.add(&s.uploaded, n) }
func (s *Stats) AddFailed(n int)   { s.add(&s.failed, n) }
func (s *Stats) AddSkipped(n int)  { s.add(&s.skipped, n) }

func (s *Stats) AddFetchErrors(n int) { s.add(&s.fetchErrors, n) }

func (s *Stats) add(counter *int, n int) {
	s.mu.Lock()
	*counter += n
	s.mu.Unlock()
}

// Snapshot returns the current counts.
func (s *Stats) Snapshot() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Fetched:  s.fetched,
		Uploaded: s.uploaded,
		Failed:   s.failed,
		Skipped:  s.skipped,

		FetchErrors: s.fetchErrors,
	}
}
