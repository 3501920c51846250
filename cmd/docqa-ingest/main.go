// Package main is the entry point for the DocQA ingestion CLI. It loads
// a directory of PDFs into the document store once, or keeps watching
// the directory and re-ingests on changes.
package main

import (
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/app"
)

const commandDesc = `DocQA document ingestion

Loads every PDF directly under a directory into the document store.
Re-running over unchanged input is a no-op: chunks are keyed by file and
position, and unchanged content is skipped. With --watch the command
stays resident and re-ingests when the directory changes.`

// ingestOptions wraps the service options with CLI-only knobs.
type ingestOptions struct {
	*docqa.Options `mapstructure:",squash"`

	Watch    bool          `json:"watch" mapstructure:"watch"`
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

func newIngestOptions() *ingestOptions {
	return &ingestOptions{
		Options:  docqa.NewOptions(),
		Debounce: 2 * time.Second,
	}
}

func (o *ingestOptions) AddFlags(fs *pflag.FlagSet) {
	o.Options.AddFlags(fs)
	fs.BoolVar(&o.Watch, "watch", o.Watch, "Keep watching the directory and re-ingest on changes.")
	fs.DurationVar(&o.Debounce, "debounce", o.Debounce, "Settling delay after a change burst before re-ingesting.")
}

func main() {
	opts := newIngestOptions()

	app.NewApp(
		app.WithName("docqa-ingest"),
		app.WithShortDescription("Ingest PDF documents into the DocQA store"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return run(opts)
		}),
	).Run()
}

func run(opts *ingestOptions) error {
	if err := docqa.InitLogger(opts.Options, "docqa-ingest"); err != nil {
		return err
	}

	ctx := app.SignalContext()

	deps, err := docqa.BuildService(ctx, opts.Options)
	if err != nil {
		return err
	}
	defer deps.Close()

	dir := opts.DocQA.DataDir
	stats, err := deps.Service.Ingest(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	printStats(dir, stats)

	if !opts.Watch {
		return nil
	}

	watcher, err := biz.NewDirWatcher(dir, opts.Debounce, func() {
		runStats, runErr := deps.Service.Ingest(ctx, dir)
		if runErr != nil {
			logger.Errorw("re-ingestion failed", "directory", dir, "error", runErr.Error())
			return
		}
		printStats(dir, runStats)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	watcher.Start()
	defer watcher.Stop()

	logger.Infow("watching for document changes, Ctrl-C to stop", "directory", dir)
	<-ctx.Done()
	return nil
}

func printStats(dir string, stats *model.IngestStats) {
	fmt.Printf("Ingested %s: %d files, %d chunks (%d inserted, %d updated, %d skipped) in %.2fs\n",
		dir, stats.Processed, stats.Chunks, stats.Inserts, stats.Updates, stats.Skipped, stats.ElapsedSeconds)
}
