package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

// ExportLimit caps the documents read per collection
const ExportLimit = 1000

// Uploader copies a finished seed file somewhere else
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// ExportOptions control GenerateSeedFile
type ExportOptions struct {
	OutputPath   string // empty means a timestamped file in the seed directory
	IncludeUsers bool
	Description  string
}

// Exporter snapshots the store into seed files
type Exporter struct {
	store  store.Store
	dir    string
	mirror Uploader
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter writing into dir by default
func NewExporter(s store.Store, dir string, logger *slog.Logger) *Exporter {
	return &Exporter{
		store:  s,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// SetMirror uploads every generated seed file with u
func (e *Exporter) SetMirror(u Uploader) {
	e.mirror = u
}

// GenerateSeedFile writes a snapshot of every collection and global and
// returns its absolute path. Collections or globals that cannot be read
// are left out and reported; only file system errors fail the export.
func (e *Exporter) GenerateSeedFile(ctx context.Context, opts ExportOptions) (string, *Report, error) {
	path := opts.OutputPath
	if path == "" {
		path = filepath.Join(e.dir, DefaultFileName(e.now()))
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	file, report := e.Snapshot(ctx, opts.IncludeUsers)
	file.Description = opts.Description

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		metrics.IncSeedRun("export", "error")
		return "", report, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := WriteFile(path, file); err != nil {
		metrics.IncSeedRun("export", "error")
		return "", report, err
	}

	metrics.IncSeedRun("export", "ok")
	e.logger.Info("seed file generated",
		"path", path,
		"collections", file.Collections.Len(),
		"documents", report.Count(KindCollection),
		"failed", len(report.Failed()),
	)

	if e.mirror != nil {
		if err := e.mirror.Upload(ctx, path); err != nil {
			e.logger.Warn("failed to mirror seed file", "path", path, "error", err)
		}
	}

	return path, report, nil
}

// Snapshot reads all collections concurrently, then all globals.
// Identity fields are stripped from every document.
func (e *Exporter) Snapshot(ctx context.Context, includeUsers bool) (*File, *Report) {
	collections := schema.CollectionsWithUsers(includeUsers)
	report := &Report{}

	type fetchResult struct {
		docs []store.Document
		err  error
	}
	results := make([]fetchResult, len(collections))

	var wg sync.WaitGroup
	for i, c := range collections {
		wg.Add(1)
		go func(i int, c schema.Collection) {
			defer wg.Done()
			docs, err := e.fetch(ctx, c)
			results[i] = fetchResult{docs: docs, err: err}
		}(i, c)
	}
	wg.Wait()

	file := &File{
		Globals:     make(map[string]store.Document),
		GeneratedAt: e.now().UTC().Format(time.RFC3339Nano),
		Version:     Version,
	}

	for i, c := range collections {
		res := results[i]
		if res.err != nil {
			e.logger.Warn("failed to export collection", "collection", c, "error", res.err)
			metrics.IncSeedItemFailure("export", string(KindCollection))
			report.Add(ItemResult{Name: string(c), Kind: KindCollection, Err: res.err})
			continue
		}
		file.Collections.Set(string(c), res.docs)
		metrics.AddSeedExported(string(c), len(res.docs))
		report.Add(ItemResult{Name: string(c), Kind: KindCollection, Count: len(res.docs)})
	}

	for _, g := range schema.Globals() {
		doc, err := e.store.FindGlobal(ctx, g)
		if err != nil {
			e.logger.Warn("failed to export global", "global", g, "error", err)
			metrics.IncSeedItemFailure("export", string(KindGlobal))
			report.Add(ItemResult{Name: string(g), Kind: KindGlobal, Err: err})
			file.Globals[string(g)] = nil
			continue
		}
		file.Globals[string(g)] = store.WithoutIdentity(doc)
		report.Add(ItemResult{Name: string(g), Kind: KindGlobal, Count: 1})
	}

	return file, report
}

func (e *Exporter) fetch(ctx context.Context, c schema.Collection) ([]store.Document, error) {
	result, err := e.store.Find(ctx, c, store.FindOptions{
		Depth:      0,
		Limit:      ExportLimit,
		Pagination: false,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, 0, len(result.Docs))
	for _, doc := range result.Docs {
		docs = append(docs, store.WithoutIdentity(doc))
	}
	return docs, nil
}

// DefaultFileName names a seed file after its creation time
func DefaultFileName(t time.Time) string {
	return "seed-data-" + t.UTC().Format("2006-01-02T15-04-05") + ".json"
}
