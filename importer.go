// Package fittours imports FIT activity files into a tour store: each file is
// decoded, its messages are accumulated into tours, and every finalized tour
// is persisted or merged into the tour it duplicates.
package fittours

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lucasjlepore/fit-tours/config"
	"github.com/lucasjlepore/fit-tours/export"
	"github.com/lucasjlepore/fit-tours/fitstream"
	"github.com/lucasjlepore/fit-tours/store"
	"github.com/lucasjlepore/fit-tours/tour"
)

// Store is the persistence the importer writes to. *store.Store satisfies it.
type Store interface {
	TourKeys(ctx context.Context) ([]string, error)
	Persist(ctx context.Context, res *tour.Result) (store.Outcome, error)
}

// Stats tracks import results across files.
type Stats struct {
	FilesProcessed   int
	FilesErrored     int
	ToursCreated     int
	ToursMerged      int
	SamplesStored    int
	MessagesRejected int
	Exported         int
}

// TourReport describes one tour of an imported file.
type TourReport struct {
	Session    string
	Key        string
	TourID     string
	Created    bool
	Merged     bool
	ExportPath string
	// Tour is nil for a re-imported tour.
	Tour *tour.Tour
}

// FileReport describes one imported file.
type FileReport struct {
	File   string
	Decode *fitstream.Summary
	Tours  []TourReport
}

// Importer imports FIT files. It is not safe for concurrent use.
type Importer struct {
	store Store
	log   *slog.Logger
	cfg   config.ImportConfig

	exportDir    string
	exportFormat string

	known tour.KeySet
	stats Stats
}

// New creates an Importer.
func New(st Store, cfg config.ImportConfig, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{store: st, log: log, cfg: cfg}
}

// ExportTo makes the importer write the samples of every newly created tour
// into dir. An empty dir disables export.
func (imp *Importer) ExportTo(dir, format string) error {
	if dir == "" {
		imp.exportDir = ""
		return nil
	}
	f, err := export.NormalizeFormat(format)
	if err != nil {
		return err
	}
	imp.exportDir, imp.exportFormat = dir, f
	return nil
}

// Stats returns the accumulated import statistics.
func (imp *Importer) Stats() Stats {
	return imp.stats
}

// ImportFiles imports each file in turn. A file that fails is logged and
// counted; the remaining files are still imported. The returned error is only
// set when ctx is cancelled.
func (imp *Importer) ImportFiles(ctx context.Context, paths []string) ([]*FileReport, error) {
	reports := make([]*FileReport, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := imp.ImportFile(ctx, path)
		if err != nil {
			imp.log.Warn("import failed", "file", path, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ImportFile reads and imports one FIT file.
func (imp *Importer) ImportFile(ctx context.Context, path string) (*FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		imp.stats.FilesErrored++
		return nil, fmt.Errorf("read FIT file: %w", err)
	}
	return imp.ImportBytes(ctx, path, data)
}

// ImportBytes imports FIT data read from the file called name.
func (imp *Importer) ImportBytes(ctx context.Context, name string, data []byte) (*FileReport, error) {
	report, err := imp.importBytes(ctx, name, data)
	if err != nil {
		imp.stats.FilesErrored++
		return nil, err
	}
	imp.stats.FilesProcessed++
	return report, nil
}

func (imp *Importer) importBytes(ctx context.Context, name string, data []byte) (*FileReport, error) {
	if err := imp.loadKeys(ctx); err != nil {
		return nil, err
	}
	log := imp.log.With("file", filepath.Base(name))

	opts := imp.cfg.TourOptions()
	opts.FileName = name
	opts.Existing = imp.known
	opts.Logger = log
	acc := tour.New(opts)

	dec := fitstream.Decoder{SkipChecksum: imp.cfg.SkipChecksum, Logger: log}
	sum, err := dec.Decode(data, acc.Handle)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	imp.stats.MessagesRejected += sum.Rejected
	if sum.Rejected > 0 {
		log.Warn("skipped malformed messages", "count", sum.Rejected)
		for _, r := range sum.Rejections {
			log.Debug("skipped message", "reason", r)
		}
	}

	results, err := acc.End()
	if err != nil {
		log.Warn("finalizing sessions", "error", err)
	}
	if len(results) == 0 {
		log.Info("no tour data in file")
	}

	report := &FileReport{File: name, Decode: sum}
	for i := range results {
		res := &results[i]
		tr, err := imp.persist(ctx, log, res)
		if err != nil {
			return nil, err
		}
		report.Tours = append(report.Tours, tr)
	}
	return report, nil
}

func (imp *Importer) persist(ctx context.Context, log *slog.Logger, res *tour.Result) (TourReport, error) {
	out, err := imp.store.Persist(ctx, res)
	if err != nil {
		return TourReport{}, fmt.Errorf("persist %s: %w", res.Key, err)
	}
	imp.known.Add(res.Key)

	tr := TourReport{
		Session: res.Token,
		Key:     res.Key,
		TourID:  out.TourID,
		Created: out.Created,
		Merged:  out.Merged,
		Tour:    res.Tour,
	}
	switch {
	case out.Created:
		imp.stats.ToursCreated++
		imp.stats.SamplesStored += out.SamplesStored
	case out.Merged:
		imp.stats.ToursMerged++
		log.Info("merged re-imported tour", "key", res.Key, "tour", out.TourID, "pulse_merged", out.PulseMerged)
	}

	if imp.exportDir != "" && res.Tour != nil && len(res.Tour.Slices) > 0 {
		path, err := export.WriteTour(imp.exportDir, imp.exportFormat, res.Tour)
		if err != nil {
			return TourReport{}, fmt.Errorf("export %s: %w", res.Key, err)
		}
		tr.ExportPath = path
		imp.stats.Exported++
	}
	return tr, nil
}

// loadKeys loads the stored duplicate keys once per importer.
func (imp *Importer) loadKeys(ctx context.Context) error {
	if imp.known != nil {
		return nil
	}
	keys, err := imp.store.TourKeys(ctx)
	if err != nil {
		return fmt.Errorf("load stored tour keys: %w", err)
	}
	imp.known = tour.NewKeySet(keys...)
	imp.log.Debug("loaded stored tour keys", "count", len(keys))
	return nil
}

// CollectFiles expands args into the FIT files to import: directories are
// walked for *.fit files, other arguments are taken as they are. The result is
// sorted and free of duplicates.
func CollectFiles(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".fit") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
