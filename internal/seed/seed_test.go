package seed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// faultyStore fails selected operations of an otherwise working store
type faultyStore struct {
	*store.BoltStore
	failFind   map[schema.Collection]bool
	failGlobal map[schema.Global]bool
	failCreate func(c schema.Collection, doc store.Document) bool
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) Find(ctx context.Context, c schema.Collection, opts store.FindOptions) (*store.FindResult, error) {
	if f.failFind[c] {
		return nil, errInjected
	}
	return f.BoltStore.Find(ctx, c, opts)
}

func (f *faultyStore) FindGlobal(ctx context.Context, g schema.Global) (store.Document, error) {
	if f.failGlobal[g] {
		return nil, errInjected
	}
	return f.BoltStore.FindGlobal(ctx, g)
}

func (f *faultyStore) UpdateGlobal(ctx context.Context, g schema.Global, doc store.Document) (store.Document, error) {
	if f.failGlobal[g] {
		return nil, errInjected
	}
	return f.BoltStore.UpdateGlobal(ctx, g, doc)
}

func (f *faultyStore) Create(ctx context.Context, c schema.Collection, doc store.Document) (store.Document, error) {
	if f.failCreate != nil && f.failCreate(c, doc) {
		return nil, errInjected
	}
	return f.BoltStore.Create(ctx, c, doc)
}

type recordingRevalidator struct {
	mu   sync.Mutex
	tags []string
}

func (r *recordingRevalidator) Revalidate(ctx context.Context, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
}

func seedStore(t *testing.T, s store.Store) []store.Document {
	t.Helper()
	ctx := context.Background()

	pages := []store.Document{
		{"title": "Home", "slug": "home", "layout": []any{map[string]any{"blockType": "hero"}}},
		{"title": "About", "slug": "about", "meta": map[string]any{"description": "Who we are"}},
	}
	for _, p := range pages {
		if _, err := s.Create(ctx, schema.Pages, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := s.Create(ctx, schema.Categories, store.Document{"title": "News"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, schema.Users, store.Document{"email": "admin@shop.example"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.UpdateGlobal(ctx, schema.Header, store.Document{"navItems": []any{"home", "about"}}); err != nil {
		t.Fatalf("UpdateGlobal failed: %v", err)
	}
	return pages
}

// normalize round-trips through JSON so values compare like decoded ones
func normalize(t *testing.T, docs []store.Document) []store.Document {
	t.Helper()
	data, err := json.Marshal(docs)
	if err != nil {
		t.Fatal(err)
	}
	var out []store.Document
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newStore(t)
	pages := seedStore(t, src)
	ctx := context.Background()

	out := filepath.Join(t.TempDir(), "out", "seed.json")
	path, report, err := NewExporter(src, t.TempDir(), testLogger()).GenerateSeedFile(ctx, ExportOptions{
		OutputPath:  out,
		Description: "round trip",
	})
	if err != nil {
		t.Fatalf("GenerateSeedFile failed: %v", err)
	}
	if path != out {
		t.Errorf("path = %s, want %s", path, out)
	}
	if len(report.Failed()) != 0 {
		t.Errorf("unexpected failures: %v", report.Failed())
	}

	dst := newStore(t)
	importReport, err := NewImporter(dst, testLogger()).CreateFromFile(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("CreateFromFile failed: %v", err)
	}
	if len(importReport.Failed()) != 0 {
		t.Errorf("unexpected failures: %v", importReport.Failed())
	}

	result, err := dst.Find(ctx, schema.Pages, store.FindOptions{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	got := make([]store.Document, 0, len(result.Docs))
	for _, doc := range result.Docs {
		if doc["id"] == nil || doc["createdAt"] == nil {
			t.Error("imported document should get new identity fields")
		}
		got = append(got, store.WithoutIdentity(doc))
	}
	if want := normalize(t, pages); !reflect.DeepEqual(got, want) {
		t.Errorf("pages after round trip:\n got %v\nwant %v", got, want)
	}

	header, _ := dst.FindGlobal(ctx, schema.Header)
	if items, _ := header["navItems"].([]any); len(items) != 2 {
		t.Errorf("header not imported: %v", header)
	}

	users, _ := dst.Find(ctx, schema.Users, store.FindOptions{})
	if users.TotalDocs != 0 {
		t.Error("users must not be exported without IncludeUsers")
	}
}

func TestExportFileFormat(t *testing.T) {
	src := newStore(t)
	seedStore(t, src)

	path, _, err := NewExporter(src, t.TempDir(), testLogger()).GenerateSeedFile(context.Background(), ExportOptions{
		OutputPath:   filepath.Join(t.TempDir(), "seed.json"),
		IncludeUsers: true,
		Description:  "nightly",
	})
	if err != nil {
		t.Fatalf("GenerateSeedFile failed: %v", err)
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if f.Version != "1.0.0" || f.Description != "nightly" || f.GeneratedAt == "" {
		t.Errorf("unexpected metadata: %+v", f)
	}

	var want []string
	for _, c := range schema.CollectionsWithUsers(true) {
		want = append(want, string(c))
	}
	if !reflect.DeepEqual(f.Collections.Names(), want) {
		t.Errorf("collections = %v, want %v", f.Collections.Names(), want)
	}

	pages, _ := f.Collections.Get("pages")
	for _, doc := range pages {
		for _, field := range []string{"id", "createdAt", "updatedAt"} {
			if _, ok := doc[field]; ok {
				t.Errorf("exported document still has %s", field)
			}
		}
	}

	users, _ := f.Collections.Get("users")
	if len(users) != 1 {
		t.Errorf("expected 1 user with IncludeUsers, got %d", len(users))
	}
	if len(f.Globals) != len(schema.Globals()) {
		t.Errorf("expected every global, got %v", f.Globals)
	}
}

func TestExportDefaultPath(t *testing.T) {
	dir := t.TempDir()
	path, _, err := NewExporter(newStore(t), dir, testLogger()).GenerateSeedFile(context.Background(), ExportOptions{})
	if err != nil {
		t.Fatalf("GenerateSeedFile failed: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "seed-data-") {
		t.Errorf("unexpected default path %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("path should be absolute: %s", path)
	}
}

func TestExportSurvivesCollectionFailure(t *testing.T) {
	s := &faultyStore{
		BoltStore:  newStore(t),
		failFind:   map[schema.Collection]bool{schema.Posts: true},
		failGlobal: map[schema.Global]bool{schema.Footer: true},
	}
	seedStore(t, s)

	path, report, err := NewExporter(s, t.TempDir(), testLogger()).GenerateSeedFile(context.Background(), ExportOptions{
		OutputPath: filepath.Join(t.TempDir(), "seed.json"),
	})
	if err != nil {
		t.Fatalf("GenerateSeedFile failed: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failures, got %v", failed)
	}
	for _, item := range failed {
		if !errors.Is(item.Err, errInjected) {
			t.Errorf("unexpected error %v", item.Err)
		}
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Collections.Get("posts"); ok {
		t.Error("failed collection should be left out")
	}
	if pages, _ := f.Collections.Get("pages"); len(pages) != 2 {
		t.Errorf("other collections must still be exported, got %d pages", len(pages))
	}
	if doc, ok := f.Globals["footer"]; !ok || doc != nil {
		t.Errorf("failed global should be null, got %v", doc)
	}
}

func TestImportSurvivesDocumentFailure(t *testing.T) {
	s := &faultyStore{
		BoltStore: newStore(t),
		failCreate: func(c schema.Collection, doc store.Document) bool {
			return doc["title"] == "broken"
		},
	}

	f := &File{Globals: map[string]store.Document{"header": {"navItems": []any{}}}}
	f.Collections.Set("pages", []store.Document{
		{"title": "one"},
		{"title": "broken"},
		{"title": "three"},
	})
	f.Collections.Set("posts", []store.Document{{"title": "after"}})

	report := NewImporter(s, testLogger()).Import(context.Background(), f, ImportOptions{})

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Name != "pages[1]" || failed[0].Kind != KindDocument {
		t.Errorf("unexpected failures %v", failed)
	}
	if got := report.Count(KindDocument); got != 3 {
		t.Errorf("created %d documents, want 3", got)
	}

	pages, _ := s.Find(context.Background(), schema.Pages, store.FindOptions{})
	if pages.TotalDocs != 2 || pages.Docs[1]["title"] != "three" {
		t.Errorf("unexpected pages %v", pages.Docs)
	}
	posts, _ := s.Find(context.Background(), schema.Posts, store.FindOptions{})
	if posts.TotalDocs != 1 {
		t.Error("documents after the failure must still be created")
	}
	header, _ := s.FindGlobal(context.Background(), schema.Header)
	if _, ok := header["navItems"]; !ok {
		t.Error("globals after the failure must still be updated")
	}
}

func TestImportClearExisting(t *testing.T) {
	s := newStore(t)
	seedStore(t, s)
	ctx := context.Background()
	s.UpdateGlobal(ctx, schema.Footer, store.Document{"columns": []any{"a"}})

	f := &File{Globals: map[string]store.Document{"header": {"logo": "new.svg"}}}
	f.Collections.Set("pages", []store.Document{{"title": "Fresh"}})

	report := NewImporter(s, testLogger()).Import(ctx, f, ImportOptions{ClearExisting: true})
	if len(report.Failed()) != 0 {
		t.Fatalf("unexpected failures %v", report.Failed())
	}

	pages, _ := s.Find(ctx, schema.Pages, store.FindOptions{})
	if pages.TotalDocs != 1 || pages.Docs[0]["title"] != "Fresh" {
		t.Errorf("pages not replaced: %v", pages.Docs)
	}
	categories, _ := s.Find(ctx, schema.Categories, store.FindOptions{})
	if categories.TotalDocs != 0 {
		t.Error("collections missing from the file should still be cleared")
	}
	users, _ := s.Find(ctx, schema.Users, store.FindOptions{})
	if users.TotalDocs != 1 {
		t.Error("users must survive a clear without IncludeUsers")
	}

	// Old versions are gone, only the fresh page's remains
	n, _ := s.DeleteVersions(ctx, schema.Pages, store.Where{})
	if n != 1 {
		t.Errorf("expected 1 remaining page version, got %d", n)
	}

	footer, _ := s.FindGlobal(ctx, schema.Footer)
	if _, ok := footer["columns"]; ok {
		t.Error("globals should be reset by clear")
	}
	header, _ := s.FindGlobal(ctx, schema.Header)
	if header["logo"] != "new.svg" {
		t.Errorf("header = %v", header)
	}
}

func TestImportFiltersNames(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	f := &File{Globals: map[string]store.Document{
		"sidebar": {"x": 1},
		"phone":   nil,
	}}
	f.Collections.Set("products", []store.Document{{"sku": "1"}})
	f.Collections.Set("users", []store.Document{{"email": "a@b.co"}})
	f.Collections.Set("media", []store.Document{{"alt": "logo"}})

	report := NewImporter(s, testLogger()).Import(ctx, f, ImportOptions{})
	if len(report.Failed()) != 0 {
		t.Errorf("unknown names must be ignored, got %v", report.Failed())
	}

	users, _ := s.Find(ctx, schema.Users, store.FindOptions{})
	if users.TotalDocs != 0 {
		t.Error("users imported without IncludeUsers")
	}
	media, _ := s.Find(ctx, schema.Media, store.FindOptions{})
	if media.TotalDocs != 1 {
		t.Error("media not imported")
	}

	NewImporter(s, testLogger()).Import(ctx, f, ImportOptions{IncludeUsers: true})
	users, _ = s.Find(ctx, schema.Users, store.FindOptions{})
	if users.TotalDocs != 1 {
		t.Error("users not imported with IncludeUsers")
	}
}

func TestImportSkipsRevalidation(t *testing.T) {
	s := newStore(t)
	rv := &recordingRevalidator{}
	s.SetRevalidator(rv)

	f := &File{Globals: map[string]store.Document{"header": {}}}
	f.Collections.Set("pages", []store.Document{{"title": "x"}})

	NewImporter(s, testLogger()).Import(context.Background(), f, ImportOptions{ClearExisting: true})

	if len(rv.tags) != 0 {
		t.Errorf("import triggered revalidation: %v", rv.tags)
	}
}

func TestCreateFromFileErrors(t *testing.T) {
	imp := NewImporter(newStore(t), testLogger())
	dir := t.TempDir()

	if _, err := imp.CreateFromFile(context.Background(), filepath.Join(dir, "missing.json"), ImportOptions{}); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	writeTestFile(t, bad, "{not json")
	if _, err := imp.CreateFromFile(context.Background(), bad, ImportOptions{}); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCollectionsJSONOrder(t *testing.T) {
	input := `{"posts":[{"a":1}],"categories":[],"pages":null}`

	var c Collections
	if err := json.Unmarshal([]byte(input), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if want := []string{"posts", "categories", "pages"}; !reflect.DeepEqual(c.Names(), want) {
		t.Errorf("Names() = %v, want %v", c.Names(), want)
	}

	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"posts":[{"a":1}],"categories":[],"pages":[]}` {
		t.Errorf("Marshal() = %s", out)
	}

	if err := json.Unmarshal([]byte(`[1,2]`), &c); err == nil {
		t.Error("expected error for non-object collections")
	}
}

type failingUploader struct {
	paths []string
}

func (u *failingUploader) Upload(ctx context.Context, path string) error {
	u.paths = append(u.paths, path)
	return errors.New("bucket unreachable")
}

func TestExportMirrorFailureKeepsFile(t *testing.T) {
	src := newStore(t)
	seedStore(t, src)

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	up := &failingUploader{}
	exp := NewExporter(src, t.TempDir(), testLogger())
	exp.SetMirror(up)

	path, report, err := exp.GenerateSeedFile(context.Background(), ExportOptions{
		OutputPath: filepath.Join("out", "seed.json"),
	})
	if err != nil {
		t.Fatalf("GenerateSeedFile should ignore mirror errors: %v", err)
	}
	if report == nil {
		t.Fatal("expected a report")
	}
	if !filepath.IsAbs(path) || !strings.HasSuffix(path, filepath.Join("out", "seed.json")) {
		t.Errorf("unexpected path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("seed file missing after mirror failure: %v", err)
	}
	if len(up.paths) != 1 || up.paths[0] != path {
		t.Errorf("uploader got %v, want [%s]", up.paths, path)
	}
}
