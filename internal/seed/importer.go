package seed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

// ImportOptions control CreateFromFile
type ImportOptions struct {
	ClearExisting bool // delete current documents and reset globals first
	IncludeUsers  bool
}

// Importer loads seed files into the store
type Importer struct {
	store  store.Store
	logger *slog.Logger
}

// NewImporter creates an importer
func NewImporter(s store.Store, logger *slog.Logger) *Importer {
	return &Importer{store: s, logger: logger}
}

// CreateFromFile reads the seed file at path and loads it.
// A missing or unparsable file is the only error returned; everything
// after that is best effort and recorded in the report.
func (i *Importer) CreateFromFile(ctx context.Context, path string, opts ImportOptions) (*Report, error) {
	file, err := ReadFile(path)
	if err != nil {
		metrics.IncSeedRun("import", "error")
		return nil, err
	}

	report := i.Import(ctx, file, opts)
	metrics.IncSeedRun("import", "ok")
	i.logger.Info("seed file imported",
		"path", path,
		"documents", report.Count(KindDocument),
		"failed", len(report.Failed()),
	)
	return report, nil
}

// Import loads an already decoded seed file. Writes skip frontend revalidation.
func (i *Importer) Import(ctx context.Context, file *File, opts ImportOptions) *Report {
	ctx = store.WithoutRevalidation(ctx)
	report := &Report{}

	if opts.ClearExisting {
		i.clear(ctx, opts.IncludeUsers, report)
	}

	for _, name := range file.Collections.Names() {
		c, ok := i.allowed(name, opts.IncludeUsers)
		if !ok {
			continue
		}
		docs, _ := file.Collections.Get(name)
		i.loadCollection(ctx, c, docs, report)
	}

	for _, g := range schema.Globals() {
		doc, ok := file.Globals[string(g)]
		if !ok || doc == nil {
			continue
		}
		if _, err := i.store.UpdateGlobal(ctx, g, doc); err != nil {
			i.logger.Warn("failed to import global", "global", g, "error", err)
			metrics.IncSeedItemFailure("import", string(KindGlobal))
			report.Add(ItemResult{Name: string(g), Kind: KindGlobal, Err: err})
			continue
		}
		report.Add(ItemResult{Name: string(g), Kind: KindGlobal, Count: 1})
	}

	for name := range file.Globals {
		if _, ok := schema.ParseGlobal(name); !ok {
			i.logger.Debug("ignoring unknown global", "global", name)
		}
	}

	return report
}

func (i *Importer) allowed(name string, includeUsers bool) (schema.Collection, bool) {
	c, ok := schema.ParseCollection(name)
	if !ok {
		i.logger.Debug("ignoring unknown collection", "collection", name)
		return "", false
	}
	if c == schema.Users && !includeUsers {
		i.logger.Debug("skipping users collection")
		return "", false
	}
	return c, true
}

func (i *Importer) loadCollection(ctx context.Context, c schema.Collection, docs []store.Document, report *Report) {
	created := 0
	for n, doc := range docs {
		if _, err := i.store.Create(ctx, c, doc); err != nil {
			i.logger.Warn("failed to import document", "collection", c, "index", n, "error", err)
			metrics.IncSeedItemFailure("import", string(KindDocument))
			report.Add(ItemResult{Name: fmt.Sprintf("%s[%d]", c, n), Kind: KindDocument, Err: err})
			continue
		}
		metrics.IncSeedImported(string(c))
		created++
	}
	report.Add(ItemResult{Name: string(c), Kind: KindDocument, Count: created})
}

// clear empties every collection and resets every global concurrently
func (i *Importer) clear(ctx context.Context, includeUsers bool, report *Report) {
	var wg sync.WaitGroup

	for _, c := range schema.CollectionsWithUsers(includeUsers) {
		wg.Add(1)
		go func(c schema.Collection) {
			defer wg.Done()
			n, err := i.store.DeleteMany(ctx, c, store.Where{})
			if err == nil && c.Versioned() {
				_, err = i.store.DeleteVersions(ctx, c, store.Where{})
			}
			if err != nil {
				i.logger.Warn("failed to clear collection", "collection", c, "error", err)
				metrics.IncSeedItemFailure("import", string(KindCollection))
				report.Add(ItemResult{Name: string(c), Kind: KindCollection, Err: err})
				return
			}
			report.Add(ItemResult{Name: string(c), Kind: KindCollection, Count: n})
		}(c)
	}

	for _, g := range schema.Globals() {
		wg.Add(1)
		go func(g schema.Global) {
			defer wg.Done()
			if _, err := i.store.UpdateGlobal(ctx, g, store.Document{}); err != nil {
				i.logger.Warn("failed to reset global", "global", g, "error", err)
				metrics.IncSeedItemFailure("import", string(KindGlobal))
				report.Add(ItemResult{Name: string(g), Kind: KindGlobal, Err: err})
			}
		}(g)
	}

	wg.Wait()
	i.logger.Info("existing data cleared")
}
