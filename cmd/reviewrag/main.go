// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/poiesic/reviewrag"
	"github.com/poiesic/reviewrag/config"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/corpus"
	"github.com/poiesic/reviewrag/ingestion"
	"github.com/poiesic/reviewrag/reembed"
	"github.com/poiesic/reviewrag/server"
	"github.com/urfave/cli/v2"
)

// DefaultSampleQuery is run after ingestion to show the index answers queries.
const DefaultSampleQuery = "Can you give the lowest budge headphone?"

// openDatabase is replaced in tests.
var openDatabase = func(ctx context.Context, cfg *config.Config) (*reviewrag.Database, error) {
	return reviewrag.Open(ctx, cfg)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "reviewrag",
		Usage: "Index product reviews and answer questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Read variables from this .env file when it exists",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML settings file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Load a review corpus and index it",
				ArgsUsage: " ",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the CSV or TSV review corpus",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "delimiter",
						Usage: "Field delimiter, use \\t for TSV",
						Value: ",",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Documents per embedding batch (0 uses the configured value)",
					},
					&cli.IntFlag{
						Name:  "max-in-flight",
						Usage: "Batches processed concurrently (0 uses the configured value)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.StringFlag{
						Name:  "sample-query",
						Usage: "Query to run once ingestion completes, empty to skip",
						Value: DefaultSampleQuery,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the reviews most similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results (0 uses the configured value)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed reviews",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of reviews given to the model (0 uses the configured value)",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve search and answers over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
						Value: ":8080",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all indexed reviews with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entries to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entries",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.LoadOption
	if envFile := c.String("env-file"); envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			opts = append(opts, config.WithDotEnv(envFile))
		}
	}
	if settings := c.String("config"); settings != "" {
		opts = append(opts, config.WithFile(settings))
	}
	return config.Load(opts...)
}

func open(c *cli.Context) (*reviewrag.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	delimiter, err := parseDelimiter(c.String("delimiter"))
	if err != nil {
		return err
	}
	records, err := corpus.LoadFile(c.String("file"), corpus.WithDelimiter(delimiter))
	if err != nil {
		return err
	}

	db, err := openDatabase(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var opts []ingestion.Option
	if n := c.Int("batch-size"); n > 0 {
		opts = append(opts, ingestion.WithBatchSize(n))
	}
	if n := c.Int("max-in-flight"); n > 0 {
		opts = append(opts, ingestion.WithMaxInFlight(n))
	}
	opts = append(opts, ingestion.WithProgress(c.App.ErrWriter, c.Int("report-interval")))

	pipeline, err := db.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	fmt.Fprintf(c.App.ErrWriter, "Corpus: %s (%d records)\n", c.String("file"), len(records))
	run, runErr := pipeline.Run(ctx, records)
	if run != nil {
		printRun(c.App.Writer, run)
	}
	if runErr != nil {
		return fmt.Errorf("ingestion aborted: %w", runErr)
	}

	if query := strings.TrimSpace(c.String("sample-query")); query != "" {
		searcher, err := db.NewSearcher()
		if err != nil {
			return err
		}
		results, err := searcher.Search(ctx, query, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "\nSample query: %s\n", query)
		printResults(c.App.Writer, results)
	}
	return nil
}

func printRun(w io.Writer, run *core.PipelineRun) {
	fmt.Fprintf(w, "Run %s\n", run.RunID)
	fmt.Fprintf(w, "  attempted: %d\n", run.AttemptedCount)
	fmt.Fprintf(w, "  inserted:  %d", run.InsertedCount)
	if run.ResumedCount > 0 {
		fmt.Fprintf(w, " (%d from a previous run)", run.ResumedCount)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  failed:    %d\n", len(run.FailedRecords))
	for _, f := range run.FailedRecords {
		fmt.Fprintf(w, "    row %d: %v\n", f.Index, f.Reason)
	}
	fmt.Fprintf(w, "  elapsed:   %s\n", run.Elapsed.Round(time.Millisecond))
	if run.Aborted {
		fmt.Fprintf(w, "  %s %v\n", color.New(color.FgRed, color.Bold).Sprint("aborted:"), run.AbortReason)
	}
}

func printResults(w io.Writer, results []core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching reviews.")
		return
	}
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	for i, r := range results {
		meta := r.Document.Metadata
		fmt.Fprintf(w, "%d. %s %s (rating %g) score=%.4f\n",
			i+1, boldGreen(meta.ProductName), boldCyan(meta.ProductSummary), meta.ProductRating, r.Score)
		fmt.Fprintf(w, "   %s\n", r.Document.Content)
	}
}

func queryArg(c *cli.Context, what string) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("%s is required", what)
	}
	return strings.Join(c.Args().Slice(), " "), nil
}

func searchCommand(c *cli.Context) error {
	query, err := queryArg(c, "query")
	if err != nil {
		return err
	}
	db, err := open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	results, err := searcher.Search(c.Context, query, c.Int("k"))
	if err != nil {
		return err
	}
	printResults(c.App.Writer, results)
	return nil
}

func askCommand(c *cli.Context) error {
	question, err := queryArg(c, "question")
	if err != nil {
		return err
	}
	db, err := open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	answerer, err := db.NewAnswerer()
	if err != nil {
		return err
	}
	answer, err := answerer.Answer(c.Context, question, c.Int("k"))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(c.App.Writer, "\nSources:")
		printResults(c.App.Writer, answer.Sources)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := open(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	answerer, err := db.NewAnswerer()
	if err != nil {
		return err
	}
	srv, err := server.New(searcher, server.WithAnswerer(answerer), server.WithCounter(db.Index()))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, c.String("addr"))
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := open(c)
	if err != nil {
		return err
	}
	defer db.Close()
	reembedConfig.Timeout = db.Config().RequestTimeout

	reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if errors.Is(err, reviewrag.ErrScanUnsupported) {
		return fmt.Errorf("the %s backend cannot be reembedded in place", db.Config().VectorDB.Backend)
	}
	if err != nil {
		return err
	}

	cfg := db.Config()
	fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", cfg.CheckpointKey())
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
