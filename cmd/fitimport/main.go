package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	fittours "github.com/lucasjlepore/fit-tours"
	"github.com/lucasjlepore/fit-tours/config"
	"github.com/lucasjlepore/fit-tours/fitstream"
	"github.com/lucasjlepore/fit-tours/store"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file (missing file uses defaults)")
		dsn        = flag.String("dsn", "", "database DSN (overrides store.dsn)")
		exportDir  = flag.String("export-dir", "", "write the samples of new tours into this directory")
		format     = flag.String("format", "", "export format csv|parquet (overrides export.format)")
		jsonOut    = flag.Bool("json", false, "emit file reports as JSON instead of text notes")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <fit-file-or-dir>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.Log.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}
	if *format != "" {
		cfg.Export.Format = *format
	}

	files, err := fittours.CollectFiles(flag.Args())
	if err != nil {
		log.Error("collecting files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		log.Warn("no FIT files found")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	imp := fittours.New(db, cfg.Import, log)
	if err := imp.ExportTo(*exportDir, cfg.Export.Format); err != nil {
		log.Error("invalid export settings", "error", err)
		os.Exit(1)
	}

	reports, err := imp.ImportFiles(ctx, files)
	for _, r := range reports {
		if *jsonOut {
			printJSON(r)
			continue
		}
		fmt.Println(fittours.BuildImportNotes(r))
		fmt.Println()
	}

	stats := imp.Stats()
	log.Info("import complete",
		"files", stats.FilesProcessed,
		"failed", stats.FilesErrored,
		"created", stats.ToursCreated,
		"merged", stats.ToursMerged,
		"samples", stats.SamplesStored,
		"skipped_messages", stats.MessagesRejected)
	if !*jsonOut {
		fmt.Println(fittours.BuildStatsNotes(stats))
	}
	if err != nil {
		log.Error("import interrupted", "error", err)
		os.Exit(1)
	}
	if stats.FilesErrored > 0 {
		os.Exit(1)
	}
}

func printJSON(r *fittours.FileReport) {
	out := struct {
		File   string                 `json:"file"`
		Decode *fitstream.Summary     `json:"decode"`
		Tours  []fittours.TourSummary `json:"tours"`
		Keys   []string               `json:"keys"`
	}{File: r.File, Decode: r.Decode}
	for _, t := range r.Tours {
		out.Keys = append(out.Keys, t.Key)
		if t.Tour != nil {
			out.Tours = append(out.Tours, fittours.Summarize(t.Tour))
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
		os.Exit(1)
	}
}
