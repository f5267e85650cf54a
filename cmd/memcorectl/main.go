// Command memcorectl is a diagnostic CLI over the memory engine: it opens
// the same SQLite-backed store memcored uses and lets an operator insert,
// search, delete, inspect, and sweep it directly from a shell, the way the
// teacher's cmd/sqvect does for its own store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sqmem/memcore/pkg/embedder"
	"github.com/sqmem/memcore/pkg/engine"
	"github.com/sqmem/memcore/pkg/logging"
	"github.com/sqmem/memcore/pkg/storage"
	"github.com/sqmem/memcore/pkg/tiering"
)

var dbPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memcorectl",
		Short: "Inspect and drive a memcore database directly",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", engine.DefaultConfig().StoragePath, "path to the SQLite database file")

	root.AddCommand(newInitCmd(), newInsertCmd(), newSearchCmd(), newDeleteCmd(), newStatsCmd(), newSweepCmd())
	return root
}

func openEngine(ctx context.Context, dim int) (*engine.Engine, *storage.Store, error) {
	store, err := storage.Open(ctx, dbPath, logging.NopLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	cfg := engine.DefaultConfig()
	cfg.StoragePath = dbPath
	if dim > 0 {
		cfg.Dim = dim
	}
	eng := engine.New(store, embedder.NewDeterministic(cfg.Dim), cfg, logging.NopLogger(), nil)
	return eng, store, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database file and its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "initialized", dbPath)
			return nil
		},
	}
}

func newInsertCmd() *cobra.Command {
	var text, tierFlag, metadataJSON string
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert a new memory entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()

			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("parsing --metadata: %w", err)
				}
			}
			tier := tiering.Tier(tierFlag)
			if tier == "" {
				tier = tiering.Semantic
			}

			id, err := eng.Ingest(cmd.Context(), engine.IngestInput{Text: text, Metadata: metadata, Tier: tier})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "entry text (required)")
	cmd.Flags().StringVar(&tierFlag, "tier", "semantic", "semantic or episodic")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "JSON object of arbitrary metadata")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var text string
	var topK int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search memory entries by semantic similarity",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := eng.Search(cmd.Context(), engine.SearchInput{Text: text, TopK: topK})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "query text (required)")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a memory entry by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := eng.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "entry id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entry count, dimension, and approximate on-disk size",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\ndimensions: %d\nsize: %s\n",
				stats.Count, stats.Dimensions, humanize.Bytes(uint64(stats.SizeBytes)))
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Physically delete expired episodic entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openEngine(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := tiering.Sweep(cmd.Context(), store, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired entries\n", n)
			return nil
		},
	}
}
