package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efebarandurmaz/chromademo/internal/app"
	"github.com/efebarandurmaz/chromademo/internal/config"
	"github.com/efebarandurmaz/chromademo/internal/demo"
	"github.com/efebarandurmaz/chromademo/internal/metrics"
	"github.com/efebarandurmaz/chromademo/internal/observability"
	"github.com/efebarandurmaz/chromademo/internal/sample"
	"github.com/efebarandurmaz/chromademo/internal/vectordb"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	query       string
	nResults    int
	filterKey   string
	filterValue string
	contains    string
	categories  bool
	stats       bool
}

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]string{
	"vector.host":       "host",
	"vector.port":       "port",
	"vector.collection": "collection",
	"vector.backend":    "backend",
	"retry.max_retries": "retries",
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:          "chromaquery",
		Short:        "Inspect and query collections in a running vector database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFlags(opts.configPath, cmd.Flags(), flagBindings)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	f := rootCmd.Flags()
	f.String("host", "localhost", "Vector database host")
	f.Int("port", 8000, "Vector database port")
	f.String("collection", sample.CollectionName, "Collection name to query")
	f.String("backend", "chroma", "Vector backend (chroma, qdrant)")
	f.Int("retries", 1, "Connection attempts before giving up")
	f.StringVar(&opts.query, "query", "space", "Query text")
	f.IntVar(&opts.nResults, "n-results", vectordb.DefaultNResults, "Results per query")
	f.StringVar(&opts.filterKey, "filter-key", "", "Metadata key for a filtered query")
	f.StringVar(&opts.filterValue, "filter-value", "", "Metadata value for a filtered query")
	f.StringVar(&opts.contains, "contains", "", "Only match documents containing this text")
	f.BoolVar(&opts.categories, "categories", false, "Run a one-result filtered query per sample category")
	f.StringVar(&opts.configPath, "config", "", "Config file path (optional)")
	f.BoolVar(&opts.stats, "stats", false, "Print run metrics")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, w io.Writer) error {
	logger := observability.SetupLogging(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})

	tp, err := app.Tracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	m := metrics.New()
	defer func() {
		if opts.stats {
			m.PrintSummary(w)
		}
	}()

	client, err := app.Connect(ctx, cfg, logger, m)
	if err != nil {
		fmt.Fprintf(w, "Failed to connect: %v\n", err)
		return err
	}
	defer client.Close()
	fmt.Fprintf(w, "Connected to %s\n", client.Address())

	names, err := client.ListCollections(ctx)
	if err != nil {
		fmt.Fprintf(w, "Error listing collections: %v\n", err)
		return err
	}
	demo.PrintCollections(w, names)
	if len(names) == 0 {
		fmt.Fprintln(w, "No collections found. Has the database been initialized with data?")
		return fmt.Errorf("no collections")
	}

	collection := demo.PickCollection(names, cfg.Vector.Collection)
	m.Collection = collection

	info, ok := client.CollectionInfo(ctx, collection)
	if !ok {
		fmt.Fprintf(w, "Could not access collection '%s'\n", collection)
		return fmt.Errorf("could not access collection %q", collection)
	}
	demo.PrintCollectionInfo(w, info)

	// Query failures are reported but do not change the exit status.
	if err := demo.RunBasicQuery(ctx, client, w, collection, opts.query, opts.nResults); err != nil {
		fmt.Fprintf(w, "Error running query: %v\n", err)
	}

	if opts.filterKey != "" {
		if err := demo.RunFilteredQuery(ctx, client, w, collection, opts.query, opts.filterKey, opts.filterValue, opts.nResults); err != nil {
			fmt.Fprintf(w, "Error running filtered query: %v\n", err)
		}
	}

	if opts.contains != "" {
		if err := demo.RunContainsQuery(ctx, client, w, collection, opts.query, opts.contains, opts.nResults); err != nil {
			fmt.Fprintf(w, "Error running document query: %v\n", err)
		}
	}

	if opts.categories {
		for _, category := range sample.Categories {
			if err := demo.RunFilteredQuery(ctx, client, w, collection, opts.query, sample.SourceKey, category, 1); err != nil {
				fmt.Fprintf(w, "Error running filtered query: %v\n", err)
			}
		}
	}

	m.Finish(nil)
	return nil
}
