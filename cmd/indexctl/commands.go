package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alqutdigital/hikma/internal/corpus"
	"github.com/alqutdigital/hikma/internal/ingest"
	"github.com/alqutdigital/hikma/internal/rag"
	"github.com/alqutdigital/hikma/internal/rag/evaluation"
	"github.com/alqutdigital/hikma/internal/storage"
)

// confirmWord must be typed to clear the index.
const confirmWord = "DELETE"

// settleDelay is how long clear waits before re-reading stats. Deletes are
// eventually consistent on hosted indexes.
var settleDelay = 2 * time.Second

type purger interface {
	Purge(ctx context.Context) (int, error)
}

func runStats(ctx context.Context, out io.Writer, store storage.VectorStore) error {
	stats, err := store.DescribeStats(ctx)
	if err != nil {
		return fmt.Errorf("describe index stats: %w", err)
	}
	fmt.Fprintf(out, "Total vectors: %d\n", stats.TotalVectorCount)
	if stats.Dimension > 0 {
		fmt.Fprintf(out, "Dimension:     %d\n", stats.Dimension)
	}
	if len(stats.Namespaces) > 0 {
		names := make([]string, 0, len(stats.Namespaces))
		for name := range stats.Namespaces {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "Namespaces:")
		for _, name := range names {
			label := name
			if label == "" {
				label = "(default)"
			}
			fmt.Fprintf(out, "  %s: %d\n", label, stats.Namespaces[name])
		}
	}
	return nil
}

// clearer deletes every vector after an interactive confirmation.
type clearer struct {
	store  storage.VectorStore
	cache  purger // optional
	settle time.Duration
	in     io.Reader
	out    io.Writer
}

func (c *clearer) run(ctx context.Context) error {
	stats, err := c.store.DescribeStats(ctx)
	if err != nil {
		return fmt.Errorf("describe index stats: %w", err)
	}
	if stats.TotalVectorCount == 0 {
		fmt.Fprintln(c.out, "Index is already empty.")
		return c.purge(ctx)
	}

	fmt.Fprintf(c.out, "Index holds %d vectors.\n", stats.TotalVectorCount)
	fmt.Fprintf(c.out, "Type %s to delete all of them: ", confirmWord)
	answer, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(answer) != confirmWord {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "Cancelled.")
		return nil
	}

	if err := c.store.Delete(ctx, storage.DeleteRequest{All: true}); err != nil {
		return fmt.Errorf("delete all vectors: %w", err)
	}
	fmt.Fprintln(c.out, "Delete requested.")

	if c.settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.settle):
		}
	}
	if stats, err := c.store.DescribeStats(ctx); err != nil {
		fmt.Fprintf(c.out, "Could not re-read stats: %v\n", err)
	} else {
		fmt.Fprintf(c.out, "Remaining vectors: %d\n", stats.TotalVectorCount)
	}
	return c.purge(ctx)
}

func (c *clearer) purge(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	n, err := c.cache.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge embedding cache: %w", err)
	}
	fmt.Fprintf(c.out, "Purged %d cached embeddings.\n", n)
	return nil
}

func runFetch(ctx context.Context, out io.Writer, store storage.VectorStore, ids []string) error {
	found, err := store.Fetch(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch vectors: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	var missing []string
	for _, id := range ids {
		v, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		err := enc.Encode(struct {
			ID        string         `json:"id"`
			Dimension int            `json:"dimension"`
			Metadata  map[string]any `json:"metadata"`
		}{v.ID, len(v.Values), v.Metadata})
		if err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runSearch(ctx context.Context, out io.Writer, retriever *rag.Retriever, query string, opts rag.Options, asJSON bool) error {
	result, err := retriever.Search(ctx, query, opts)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(result)
	}

	if len(result.Passages) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}
	fmt.Fprintf(out, "Query language: %s\n\n", result.Language.Name())
	fmt.Fprint(out, rag.FormatContext(result.Passages, result.Language, nil))
	fmt.Fprintf(out, "\n(%d results in %dms)\n", len(result.Passages), result.Timing.TotalMs)
	return nil
}

func runEval(ctx context.Context, out io.Writer, runner *evaluation.Runner, ds evaluation.Dataset, asJSON bool) error {
	report, err := runner.Run(ctx, ds)
	if err != nil {
		return fmt.Errorf("run benchmark: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(report)
	}
	fmt.Fprint(out, evaluation.FormatMarkdown(report))
	return nil
}

func runSnapshots(ctx context.Context, out io.Writer, store storage.ObjectStorage, runID string) error {
	objects, err := storage.ListSnapshots(ctx, store, runID)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(objects) == 0 {
		fmt.Fprintln(out, "No snapshots.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

// runShowSnapshot lists the vector ID and opening text of each archived record.
func runShowSnapshot(ctx context.Context, out io.Writer, store storage.ObjectStorage, key string) error {
	var records []corpus.Record
	if err := storage.ReadSnapshot(ctx, store, key, &records); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d records\n", key, len(records))
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %s\n", ingest.VectorID(r), preview(r.Primary, 60))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
