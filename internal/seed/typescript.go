package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

// GenerateTypeScriptFiles writes one <collection>.ts module per collection,
// a globals.ts module and an index.ts re-exporting all of them.
// It returns the written paths in that order.
func (e *Exporter) GenerateTypeScriptFiles(ctx context.Context, outputDir string, includeUsers bool) ([]string, *Report, error) {
	if outputDir == "" {
		outputDir = filepath.Join(e.dir, "typescript")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, report := e.Snapshot(ctx, includeUsers)

	var paths []string
	var modules []string

	for _, name := range file.Collections.Names() {
		docs, _ := file.Collections.Get(name)
		if docs == nil {
			docs = []store.Document{}
		}
		module := name
		path, err := writeModule(outputDir, module, CamelCase(name), docs, file.GeneratedAt)
		if err != nil {
			metrics.IncSeedRun("export", "error")
			return paths, report, err
		}
		paths = append(paths, path)
		modules = append(modules, module)
	}

	path, err := writeModule(outputDir, "globals", "globals", file.Globals, file.GeneratedAt)
	if err != nil {
		metrics.IncSeedRun("export", "error")
		return paths, report, err
	}
	paths = append(paths, path)
	modules = append(modules, "globals")

	var index strings.Builder
	index.WriteString(generatedHeader(file.GeneratedAt))
	for _, module := range modules {
		fmt.Fprintf(&index, "export * from './%s';\n", module)
	}
	indexPath := filepath.Join(outputDir, "index.ts")
	if err := os.WriteFile(indexPath, []byte(index.String()), 0644); err != nil {
		metrics.IncSeedRun("export", "error")
		return paths, report, fmt.Errorf("failed to write %s: %w", indexPath, err)
	}
	paths = append(paths, indexPath)

	metrics.IncSeedRun("export", "ok")
	e.logger.Info("typescript seed files generated", "dir", outputDir, "files", len(paths))
	return paths, report, nil
}

func writeModule(dir, module, constName string, value any, generatedAt string) (string, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", module, err)
	}

	var b strings.Builder
	b.WriteString(generatedHeader(generatedAt))
	fmt.Fprintf(&b, "export const %s = %s as const;\n", constName, data)

	path := filepath.Join(dir, module+".ts")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func generatedHeader(generatedAt string) string {
	return "// Generated by retailos seed export at " + generatedAt + ". Do not edit.\n\n"
}

// CamelCase turns a collection slug such as form-submissions into formSubmissions
func CamelCase(slug string) string {
	var b strings.Builder
	upper := false
	for _, r := range slug {
		if r == '-' || r == '_' || r == ' ' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
