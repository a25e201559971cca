// Package ingest turns fetched corpus records into vectors: it batches records,
// embeds their combined text and upserts the result, counting every outcome.
package ingest

import (
	"context"
	"time"

	"github.com/alqutdigital/hikma/internal/chunker"
	"github.com/alqutdigital/hikma/internal/corpus"
	"github.com/alqutdigital/hikma/internal/embedder"
	"github.com/alqutdigital/hikma/internal/events"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
)

// Mode selects how a batch is embedded.
type Mode int

const (
	// ModeBatch embeds a whole batch in one call.
	ModeBatch Mode = iota
	// ModePerItem embeds one record per call with a delay between calls.
	ModePerItem
)

func (m Mode) String() string {
	if m == ModePerItem {
		return "per-item"
	}
	return "batch"
}

// Notifier is told about upserted batches. events.Publisher implements it.
type Notifier interface {
	BatchUpserted(ctx context.Context, ev events.BatchEvent) error
	RunCompleted(ctx context.Context, ev events.RunEvent) error
}

// Archiver stores the raw records of a unit before they are embedded.
// storage.SnapshotArchive implements it.
type Archiver interface {
	Archive(ctx context.Context, corpus, unit string, records any) (string, error)
}

// Config holds pipeline configuration.
type Config struct {
	RunID      string
	Mode       Mode
	BatchSize  int
	BatchDelay time.Duration // pause between batches
	ItemDelay  time.Duration // pause between per-item calls
}

// DefaultHadithConfig embeds hadith in batches of 100.
func DefaultHadithConfig() Config {
	return Config{
		Mode:       ModeBatch,
		BatchSize:  100,
		BatchDelay: 500 * time.Millisecond,
	}
}

// DefaultQuranConfig embeds verses one at a time in batches of 20.
func DefaultQuranConfig() Config {
	return Config{
		Mode:       ModePerItem,
		BatchSize:  20,
		BatchDelay: 500 * time.Millisecond,
		ItemDelay:  100 * time.Millisecond,
	}
}

// RunResult summarizes one Run call.
type RunResult struct {
	Unit     string        `json:"unit"`
	Records  int           `json:"records"`
	Batches  int           `json:"batches"`
	Uploaded int           `json:"uploaded"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier sets the batch notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithBudget truncates embedding input to a token budget.
func WithBudget(b *chunker.TextBudget) Option {
	return func(p *Pipeline) { p.budget = b }
}

// WithArchiver archives each unit's raw records.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithProgress sets a callback invoked after every batch.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) { p.onBatch = fn }
}

// Pipeline embeds and stores records.
type Pipeline struct {
	cfg      Config
	embedder embedder.Embedder
	store    storage.VectorStore
	stats    *Stats
	log      *logger.Logger
	notifier Notifier
	budget   *chunker.TextBudget
	archiver Archiver
	onBatch  func(done, total int)
}

// New creates a pipeline. stats is shared with the fetchers feeding it.
func New(emb embedder.Embedder, store storage.VectorStore, stats *Stats, cfg Config, log *logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	if stats == nil {
		stats = &Stats{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultHadithConfig().BatchSize
	}
	p := &Pipeline{
		cfg:      cfg,
		embedder: emb,
		store:    store,
		stats:    stats,
		log:      log.WithComponent("pipeline"),
		notifier: events.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the shared counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Run processes records batch by batch. Embedding and upsert failures are
// counted, not returned; the only error is context cancellation, checked
// between batches.
func (p *Pipeline) Run(ctx context.Context, records []corpus.Record) (RunResult, error) {
	start := time.Now()
	res := RunResult{Records: len(records)}
	if len(records) == 0 {
		return res, nil
	}
	res.Unit = unitOf(records[0])
	kind := string(records[0].Corpus)
	log := p.log.WithFields(map[string]any{"corpus": kind, "unit": res.Unit})

	if p.archiver != nil {
		if path, err := p.archiver.Archive(ctx, kind, res.Unit, records); err != nil {
			log.WithError(err).Warn("failed to archive snapshot")
		} else {
			log.Debug("archived snapshot", "path", path)
		}
	}

	total := (len(records) + p.cfg.BatchSize - 1) / p.cfg.BatchSize
	for i := 0; i < len(records); i += p.cfg.BatchSize {
		if i > 0 {
			if err := sleep(ctx, p.cfg.BatchDelay); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		end := min(i+p.cfg.BatchSize, len(records))
		res.Batches++
		out := p.processBatch(ctx, records[i:end])
		res.Uploaded += out.uploaded
		res.Failed += out.failed
		res.Skipped += out.skipped

		log.Debug("batch processed",
			"batch", res.Batches,
			"size", end-i,
			"uploaded", out.uploaded,
			"failed", out.failed,
			"skipped", out.skipped,
		)

		if out.uploaded > 0 {
			err := p.notifier.BatchUpserted(ctx, events.BatchEvent{
				RunID:    p.cfg.RunID,
				Corpus:   kind,
				Unit:     res.Unit,
				Batch:    res.Batches,
				Size:     end - i,
				Uploaded: out.uploaded,
				Failed:   out.failed,
			})
			if err != nil {
				log.WithError(err).Warn("failed to publish batch event")
			}
		}
		if p.onBatch != nil {
			p.onBatch(res.Batches, total)
		}
	}

	res.Duration = time.Since(start)
	log.Info("unit ingested",
		"records", res.Records,
		"uploaded", res.Uploaded,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	return res, nil
}

type batchOutcome struct {
	uploaded, failed, skipped int
}

func (p *Pipeline) processBatch(ctx context.Context, batch []corpus.Record) batchOutcome {
	var out batchOutcome

	usable := make([]corpus.Record, 0, len(batch))
	for _, r := range batch {
		if r.Primary == "" {
			out.skipped++
			continue
		}
		usable = append(usable, r)
	}
	if out.skipped > 0 {
		p.stats.AddSkipped(out.skipped)
	}
	if len(usable) == 0 {
		return out
	}

	var vectors []storage.Vector
	if p.cfg.Mode == ModePerItem {
		vectors, out.failed = p.embedEach(ctx, usable)
	} else {
		vectors = p.embedAll(ctx, usable)
		if vectors == nil {
			out.failed = len(usable)
		}
	}
	if out.failed > 0 {
		p.stats.AddFailed(out.failed)
	}
	if len(vectors) == 0 {
		return out
	}

	if _, err := p.store.Upsert(ctx, vectors); err != nil {
		p.log.WithError(err).Error("upsert failed", "vectors", len(vectors))
		out.failed += len(vectors)
		p.stats.AddFailed(len(vectors))
		return out
	}
	out.uploaded = len(vectors)
	p.stats.AddUploaded(out.uploaded)
	return out
}

// embedAll embeds the batch in one call. Any failure loses the whole batch.
func (p *Pipeline) embedAll(ctx context.Context, batch []corpus.Record) []storage.Vector {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = p.fit(CombinedText(r))
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.log.WithError(err).Error("batch embedding failed", "size", len(batch))
		return nil
	}
	if len(embeddings) != len(batch) {
		p.log.Error("batch embedding returned wrong count", "want", len(batch), "got", len(embeddings))
		return nil
	}

	vectors := make([]storage.Vector, 0, len(batch))
	for i, r := range batch {
		if len(embeddings[i]) == 0 {
			p.log.Error("batch embedding returned an empty vector", "id", VectorID(r))
			return nil
		}
		vectors = append(vectors, toVector(r, embeddings[i]))
	}
	return vectors
}

// embedEach embeds one record per call. A failed record is counted and the
// rest of the batch continues.
func (p *Pipeline) embedEach(ctx context.Context, batch []corpus.Record) ([]storage.Vector, int) {
	vectors := make([]storage.Vector, 0, len(batch))
	failed := 0
	for i, r := range batch {
		if i > 0 {
			if err := sleep(ctx, p.cfg.ItemDelay); err != nil {
				return vectors, failed + len(batch) - i
			}
		}
		emb, err := p.embedder.Embed(ctx, p.fit(CombinedText(r)))
		if err != nil || len(emb) == 0 {
			p.log.WithError(err).Warn("embedding failed", "id", VectorID(r))
			failed++
			continue
		}
		vectors = append(vectors, toVector(r, emb))
	}
	return vectors, failed
}

func (p *Pipeline) fit(text string) string {
	if p.budget == nil {
		return text
	}
	fitted, truncated := p.budget.Fit(text)
	if truncated {
		p.log.Debug("embedding input truncated", "max_tokens", p.budget.MaxTokens())
	}
	return fitted
}

func toVector(r corpus.Record, values []float32) storage.Vector {
	return storage.Vector{
		ID:       VectorID(r),
		Values:   values,
		Metadata: Metadata(r),
	}
}

// Complete publishes the run summary through the notifier.
func (p *Pipeline) Complete(ctx context.Context, start time.Time, vectorsNow int64) {
	c := p.stats.Snapshot()
	ev := events.RunEvent{
		RunID:      p.cfg.RunID,
		Fetched:    c.Fetched,
		Uploaded:   c.Uploaded,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		FetchErrs:  c.FetchErrors,
		Duration:   time.Since(start),
		Canceled:   ctx.Err() != nil,
		VectorsNow: vectorsNow,
	}
	// the run context may already be canceled
	if err := p.notifier.RunCompleted(context.WithoutCancel(ctx), ev); err != nil {
		p.log.WithError(err).Warn("failed to publish run event")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
