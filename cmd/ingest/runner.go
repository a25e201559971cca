package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/alqutdigital/hikma/internal/app"
	"github.com/alqutdigital/hikma/internal/chunker"
	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/corpus"
	"github.com/alqutdigital/hikma/internal/embedder"
	"github.com/alqutdigital/hikma/internal/ingest"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
	"github.com/alqutdigital/hikma/pkg/shutdown"
)

// requirement is what a subcommand needs from configuration.
type requirement int

const (
	needIndex    requirement = iota // vector store only
	needEmbedder                    // vector store and embeddings
	needHadith                      // plus the hadith API key
)

// runner holds the dependencies of one ingestion run.
type runner struct {
	cfg      *config.Config
	log      *logger.Logger
	runID    string
	store    storage.VectorStore
	emb      embedder.Embedder
	hadith   *corpus.HadithClient
	quran    *corpus.QuranClient
	notifier ingest.Notifier
	archiver ingest.Archiver
	budget   *chunker.TextBudget
	stats    *ingest.Stats
	bars     *progress
	out      io.Writer
}

// withRunner loads configuration, wires a runner and calls fn with a context
// canceled on SIGINT/SIGTERM. Registered resources are released on return.
func withRunner(ctx context.Context, opts *Options, req requirement, fn func(context.Context, *runner) error) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DryRun {
		cfg.Vector.Backend = "memory"
	}
	if opts.Workers > 0 {
		cfg.Sources.Workers = opts.Workers
	}
	if req == needIndex {
		err = cfg.ValidateIndex()
	} else {
		err = cfg.ValidateIngest(req == needHadith)
	}
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg)
	sd := shutdown.New(log.Logger, 10*time.Second)
	defer func() {
		if err := sd.Shutdown(); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()
	ctx, stop := sd.NotifyContext(ctx)
	defer stop()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log = log.WithContext(ctx)

	r, err := newRunner(ctx, cfg, log, sd, req, runID)
	if err != nil {
		return err
	}
	r.bars = newProgress(os.Stderr, !opts.NoProgress)

	log.Info("starting ingestion",
		"backend", cfg.Vector.Backend,
		"embedding_provider", cfg.Embedding.Provider,
		"dry_run", opts.DryRun,
	)

	start := time.Now()
	err = fn(ctx, r)
	if req != needIndex {
		r.finish(ctx, start)
	}
	if errors.Is(err, context.Canceled) {
		return errors.New("ingestion interrupted")
	}
	return err
}

func newRunner(ctx context.Context, cfg *config.Config, log *logger.Logger, sd *shutdown.Handler, req requirement, runID string) (*runner, error) {
	store, err := app.OpenVectorStore(ctx, cfg, log, sd)
	if err != nil {
		return nil, err
	}
	r := &runner{
		cfg:      cfg,
		log:      log,
		runID:    runID,
		store:    store,
		stats:    &ingest.Stats{},
		bars:     newProgress(io.Discard, false),
		out:      os.Stdout,
	}
	if req == needIndex {
		return r, nil
	}

	emb, err := app.OpenEmbedder(ctx, cfg, log, app.OpenCache(ctx, cfg, log, sd))
	if err != nil {
		return nil, err
	}
	r.emb = emb
	r.notifier = app.OpenNotifier(ctx, cfg, log, sd)
	r.budget = app.NewBudget(cfg, log)
	if obj := app.OpenObjectStorage(ctx, cfg, log); obj != nil {
		r.archiver = storage.NewSnapshotArchive(obj, runID, log.Logger)
	}

	r.hadith = corpus.NewHadithClient(corpus.HadithConfig{
		APIKey:    cfg.Sources.HadithAPIKey,
		BaseURL:   cfg.Sources.HadithBaseURL,
		Timeout:   cfg.Sources.HadithTimeout,
		Workers:   cfg.Sources.Workers,
		RateLimit: cfg.Sources.RateLimit,
	}, log)
	r.quran = corpus.NewQuranClient(corpus.QuranConfig{
		BaseURL:   cfg.Sources.QuranBaseURL,
		Timeout:   cfg.Sources.QuranTimeout,
		RateLimit: cfg.Sources.RateLimit,
	}, log)
	return r, nil
}

func (r *runner) hadithConfig() ingest.Config {
	c := ingest.DefaultHadithConfig()
	c.RunID = r.runID
	c.BatchSize = r.cfg.Ingest.HadithBatchSize
	c.BatchDelay = r.cfg.Ingest.BatchDelay
	return c
}

func (r *runner) quranConfig() ingest.Config {
	c := ingest.DefaultQuranConfig()
	c.RunID = r.runID
	c.BatchSize = r.cfg.Ingest.QuranBatchSize
	c.BatchDelay = r.cfg.Ingest.BatchDelay
	c.ItemDelay = r.cfg.Ingest.ItemDelay
	return c
}

func (r *runner) pipeline(cfg ingest.Config, withProgress bool) *ingest.Pipeline {
	opts := []ingest.Option{
		ingest.WithNotifier(r.notifier),
		ingest.WithBudget(r.budget),
	}
	if r.archiver != nil {
		opts = append(opts, ingest.WithArchiver(r.archiver))
	}
	if withProgress {
		opts = append(opts, ingest.WithProgress(r.bars.update))
	}
	return ingest.New(r.emb, r.store, r.stats, cfg, r.log, opts...)
}

// ingestHadith fetches and embeds each book in turn.
func (r *runner) ingestHadith(ctx context.Context, books []corpus.Book) error {
	p := r.pipeline(r.hadithConfig(), true)
	r.hadith.OnChapter = r.bars.update

	for _, book := range books {
		r.bars.begin("Fetching " + book.Name)
		records := r.hadith.FetchBook(ctx, book, r.stats)
		r.bars.end()
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(records) == 0 {
			r.log.Warn("no hadith fetched", "book", book.Slug)
			continue
		}

		r.bars.begin("Embedding " + book.Name)
		res, err := p.Run(logger.WithCorpus(ctx, book.Slug), records)
		r.bars.end()
		r.printResult(book.Name, res)
		if err != nil {
			return err
		}
	}
	return nil
}

// ingestQuran fetches and embeds surahs from..to.
func (r *runner) ingestQuran(ctx context.Context, from, to int) error {
	p := r.pipeline(r.quranConfig(), false)
	total := to - from + 1

	r.bars.begin("Quran")
	defer r.bars.end()
	for n := from; n <= to; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		records := r.quran.FetchSurah(ctx, n, r.stats)
		r.stats.AddFetched(len(records))
		if len(records) == 0 {
			r.log.Warn("no verses fetched", "surah", n)
		} else {
			res, err := p.Run(ctx, records)
			if err != nil {
				return err
			}
			r.log.Debug("surah ingested", "surah", n, "uploaded", res.Uploaded, "failed", res.Failed)
		}
		r.bars.update(n-from+1, total)
	}
	return nil
}

// verify prints the index check.
func (r *runner) verify(ctx context.Context) (ingest.VerifyReport, error) {
	report, err := ingest.Verify(ctx, r.store)
	if err != nil {
		return report, err
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "=== Verification ===")
	fmt.Fprintf(r.out, "Total vectors:  %d\n", report.TotalVectors)
	fmt.Fprintf(r.out, "Sample %s: %s\n", ingest.SampleID, yesNo(report.SampleFound, "found", "missing"))
	fmt.Fprintf(r.out, "Arabic text:    %s\n", yesNo(report.HasArabic, "yes", "no"))
	fmt.Fprintf(r.out, "English text:   %s\n", yesNo(report.HasEnglish, "yes", "no"))
	fmt.Fprintln(r.out, "====================")

	if !report.OK() {
		r.log.Warn("verification failed", "sample", ingest.SampleID)
	}
	return report, nil
}

// finish publishes the run summary and prints the counters.
func (r *runner) finish(ctx context.Context, start time.Time) {
	var vectors int64
	if stats, err := r.store.DescribeStats(context.WithoutCancel(ctx)); err != nil {
		r.log.WithError(err).Warn("failed to read index stats")
	} else {
		vectors = stats.TotalVectorCount
	}
	r.pipeline(r.hadithConfig(), false).Complete(ctx, start, vectors)

	c := r.stats.Snapshot()
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "=== Ingestion Summary ===")
	fmt.Fprintf(r.out, "Run ID:    %s\n", r.runID)
	fmt.Fprintf(r.out, "Duration:  %s\n", time.Since(start).Round(time.Second))
	fmt.Fprintf(r.out, "Fetched:   %d\n", c.Fetched)
	fmt.Fprintf(r.out, "Uploaded:  %d\n", c.Uploaded)
	fmt.Fprintf(r.out, "Failed:    %d\n", c.Failed)
	fmt.Fprintf(r.out, "Skipped:   %d\n", c.Skipped)
	fmt.Fprintf(r.out, "Fetch err: %d\n", c.FetchErrors)
	fmt.Fprintf(r.out, "Vectors:   %d\n", vectors)
	if ctx.Err() != nil {
		fmt.Fprintln(r.out, "Status:    interrupted")
	}
	fmt.Fprintln(r.out, "=========================")
}

func (r *runner) printResult(unit string, res ingest.RunResult) {
	fmt.Fprintf(r.out, "%-22s records=%d uploaded=%d failed=%d skipped=%d (%s)\n",
		unit, res.Records, res.Uploaded, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))
}

func yesNo(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
