// Package main is the entry point for the corpus ingestion CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alqutdigital/hikma/internal/corpus"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Options holds flags shared by every subcommand.
type Options struct {
	DryRun     bool
	NoProgress bool
	Workers    int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Hikma corpus ingestion CLI",
		Long: `Fetches the hadith collections and the Quran, embeds every hadith and verse
and upserts the vectors into the configured vector store.

With no subcommand the full corpus is ingested: all hadith books, then surahs
1 to 114, then the index is verified.`,
		Version:      fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd.Context(), opts, needHadith, func(ctx context.Context, r *runner) error {
				if err := r.ingestHadith(ctx, corpus.Books); err != nil {
					return err
				}
				if err := r.ingestQuran(ctx, 1, corpus.SurahCount); err != nil {
					return err
				}
				_, err := r.verify(ctx)
				return err
			})
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Store vectors in memory instead of the configured backend")
	rootCmd.PersistentFlags().BoolVar(&opts.NoProgress, "no-progress", false, "Disable progress bars")
	rootCmd.PersistentFlags().IntVarP(&opts.Workers, "workers", "w", 0, "Concurrent chapter fetches (default FETCH_WORKERS)")

	rootCmd.AddCommand(newHadithCmd(opts), newQuranCmd(opts), newVerifyCmd(opts))
	return rootCmd.Execute()
}

func newHadithCmd(opts *Options) *cobra.Command {
	var slugs []string

	cmd := &cobra.Command{
		Use:   "hadith",
		Short: "Ingest hadith collections",
		Example: `  # Every collection
  ingest hadith

  # One collection
  ingest hadith --book sahih-muslim`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := selectBooks(slugs)
			if err != nil {
				return err
			}
			return withRunner(cmd.Context(), opts, needHadith, func(ctx context.Context, r *runner) error {
				return r.ingestHadith(ctx, books)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&slugs, "book", "b", nil, "Book slug to ingest (repeatable)")
	return cmd
}

func newQuranCmd(opts *Options) *cobra.Command {
	var from, to int

	cmd := &cobra.Command{
		Use:   "quran",
		Short: "Ingest Quran surahs with their English translation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateSurahRange(from, to); err != nil {
				return err
			}
			return withRunner(cmd.Context(), opts, needEmbedder, func(ctx context.Context, r *runner) error {
				return r.ingestQuran(ctx, from, to)
			})
		},
	}

	cmd.Flags().IntVar(&from, "from", 1, "First surah")
	cmd.Flags().IntVar(&to, "to", corpus.SurahCount, "Last surah")
	return cmd
}

func newVerifyCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the index for the first verse with both texts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd.Context(), opts, needIndex, func(ctx context.Context, r *runner) error {
				report, err := r.verify(ctx)
				if err != nil {
					return err
				}
				if !report.OK() {
					return errors.New("verification failed")
				}
				return nil
			})
		},
	}
}

// selectBooks resolves slugs to books. No slugs selects every book.
func selectBooks(slugs []string) ([]corpus.Book, error) {
	if len(slugs) == 0 {
		return corpus.Books, nil
	}
	books := make([]corpus.Book, 0, len(slugs))
	for _, slug := range slugs {
		b, ok := corpus.LookupBook(slug)
		if !ok {
			return nil, fmt.Errorf("unknown book %q", slug)
		}
		books = append(books, b)
	}
	return books, nil
}

func validateSurahRange(from, to int) error {
	if from < 1 || to > corpus.SurahCount || from > to {
		return fmt.Errorf("invalid surah range %d-%d (valid: 1-%d)", from, to, corpus.SurahCount)
	}
	return nil
}
