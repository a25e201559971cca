// Package main is the entry point for the vector index maintenance CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alqutdigital/hikma/internal/app"
	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/rag"
	"github.com/alqutdigital/hikma/internal/rag/evaluation"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
	"github.com/alqutdigital/hikma/pkg/shutdown"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:          "indexctl",
		Short:        "Inspect and maintain the Hikma vector index",
		Version:      fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newStatsCmd(),
		newClearCmd(),
		newFetchCmd(),
		newSearchCmd(),
		newEvalCmd(),
		newSnapshotsCmd(),
	)
	return rootCmd.Execute()
}

// env is the configuration and logger shared by one command invocation.
type env struct {
	cfg *config.Config
	log *logger.Logger
	sd  *shutdown.Handler
}

// withEnv loads configuration and calls fn with a signal-aware context.
func withEnv(ctx context.Context, fn func(context.Context, *env) error) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateIndex(); err != nil {
		return err
	}

	log := app.NewLogger(cfg).WithComponent("indexctl")
	sd := shutdown.New(log.Logger, 10*time.Second)
	defer func() {
		if err := sd.Shutdown(); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()
	ctx, stop := sd.NotifyContext(ctx)
	defer stop()

	return fn(ctx, &env{cfg: cfg, log: log, sd: sd})
}

func (e *env) store(ctx context.Context) (storage.VectorStore, error) {
	return app.OpenVectorStore(ctx, e.cfg, e.log, e.sd)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				store, err := e.store(ctx)
				if err != nil {
					return err
				}
				return runStats(ctx, cmd.OutOrStdout(), store)
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	var purgeCache bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every vector in the index",
		Long: `Deletes every vector in the configured index after confirmation.
Type DELETE at the prompt to proceed; any other input cancels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				store, err := e.store(ctx)
				if err != nil {
					return err
				}
				var cache purger
				if purgeCache {
					if c := app.OpenCache(ctx, e.cfg, e.log, e.sd); c != nil {
						cache = c
					} else {
						e.log.Warn("embedding cache not available, nothing to purge")
					}
				}
				c := &clearer{
					store:  store,
					cache:  cache,
					settle: settleDelay,
					in:     cmd.InOrStdin(),
					out:    cmd.OutOrStdout(),
				}
				return c.run(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&purgeCache, "purge-cache", false, "Also delete cached embeddings from Redis")
	return cmd
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "fetch <id>...",
		Short:   "Print stored vectors by ID",
		Example: "  indexctl fetch quran_1_1 hadith_sahih-bukhari_1_1",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				store, err := e.store(ctx)
				if err != nil {
					return err
				}
				return runFetch(ctx, cmd.OutOrStdout(), store, args)
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	var (
		opts   rag.Options
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index with a natural-language query",
		Example: `  indexctl search "patience in hardship" --type quran
  indexctl search "الصبر" --top-k 3 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Type != "" && opts.Type != "quran" && opts.Type != "hadith" {
				return fmt.Errorf("invalid --type %q (valid: quran, hadith)", opts.Type)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if err := e.cfg.ValidateIngest(false); err != nil {
					return err
				}
				store, err := e.store(ctx)
				if err != nil {
					return err
				}
				emb, err := app.OpenQueryEmbedder(ctx, e.cfg, e.log)
				if err != nil {
					return err
				}
				retriever := rag.NewRetriever(store, emb, e.log.Logger, rag.DefaultRetrieverConfig())
				return runSearch(ctx, cmd.OutOrStdout(), retriever, joinArgs(args), opts, asJSON)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.TopK, "top-k", "k", 5, "Number of passages to return")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "Restrict to quran or hadith")
	cmd.Flags().Float64Var(&opts.MinScore, "min-score", 0, "Drop matches scoring below this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newEvalCmd() *cobra.Command {
	var (
		datasetPath string
		topK        int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure retrieval quality against cases with known answers",
		Long: `Runs each case's query through search and scores the ranked vector IDs
against the case's relevant IDs (precision, recall, hit rate, MRR, NDCG, MAP).
Without --dataset a built-in set of well-known verses and hadith is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds := evaluation.DefaultDataset()
			if datasetPath != "" {
				loaded, err := evaluation.LoadDataset(datasetPath)
				if err != nil {
					return err
				}
				ds = *loaded
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if err := e.cfg.ValidateIngest(false); err != nil {
					return err
				}
				store, err := e.store(ctx)
				if err != nil {
					return err
				}
				emb, err := app.OpenQueryEmbedder(ctx, e.cfg, e.log)
				if err != nil {
					return err
				}
				retriever := rag.NewRetriever(store, emb, e.log.Logger, rag.DefaultRetrieverConfig())
				runner := evaluation.NewRunner(retriever, evaluation.Config{TopK: topK}, e.log.Logger)
				return runEval(ctx, cmd.OutOrStdout(), runner, ds, asJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "JSON file of cases")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Passages retrieved per case")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func newSnapshotsCmd() *cobra.Command {
	var runID, key string

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List raw corpus snapshots archived by ingestion runs",
		Example: `  indexctl snapshots --run 3f2a9c1e-...
  indexctl snapshots --key snapshots/3f2a9c1e-.../quran/1.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				obj := app.OpenObjectStorage(ctx, e.cfg, e.log)
				if obj == nil {
					return fmt.Errorf("object storage is not configured (set STORAGE_ENDPOINT)")
				}
				if key != "" {
					return runShowSnapshot(ctx, cmd.OutOrStdout(), obj, key)
				}
				return runSnapshots(ctx, cmd.OutOrStdout(), obj, runID)
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only list snapshots of this run ID")
	cmd.Flags().StringVar(&key, "key", "", "Print the records of one snapshot")
	return cmd
}
