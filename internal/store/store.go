// Package store is the data-access layer for collections and globals.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kalhara-JA/retail-os/internal/schema"
)

// Identity fields assigned by the store on every write
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// DefaultLimit is applied by Find when no limit is given
const DefaultLimit = 10

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownGlobal     = errors.New("unknown global")
)

// Document is a schemaless JSON object
type Document map[string]any

// Where is an equality filter on top-level document fields.
// An empty filter matches every document.
type Where map[string]any

// FindOptions controls a Find call
type FindOptions struct {
	Depth      int   // relationship depth; documents are stored flat
	Limit      int   // 0 means DefaultLimit
	Page       int   // 1-based, only used with Pagination
	Pagination bool  // when false the first Limit matches are returned
	Where      Where // optional filter
}

// FindResult is the response of Find
type FindResult struct {
	Docs      []Document `json:"docs"`
	TotalDocs int        `json:"totalDocs"`
	Limit     int        `json:"limit"`
	Page      int        `json:"page,omitempty"`
}

// Store provides CRUD over collections and read/replace over globals
type Store interface {
	Find(ctx context.Context, collection schema.Collection, opts FindOptions) (*FindResult, error)
	Create(ctx context.Context, collection schema.Collection, data Document) (Document, error)
	DeleteMany(ctx context.Context, collection schema.Collection, where Where) (int, error)
	DeleteVersions(ctx context.Context, collection schema.Collection, where Where) (int, error)
	FindGlobal(ctx context.Context, global schema.Global) (Document, error)
	UpdateGlobal(ctx context.Context, global schema.Global, data Document) (Document, error)
}

// Revalidator is notified after content changes so cached pages can be rebuilt
type Revalidator interface {
	Revalidate(ctx context.Context, tag string)
}

type revalidationKey struct{}

// WithoutRevalidation marks ctx so writes made with it skip the revalidation hook.
// Bulk jobs use it to avoid one invalidation per document.
func WithoutRevalidation(ctx context.Context) context.Context {
	return context.WithValue(ctx, revalidationKey{}, true)
}

// RevalidationDisabled reports whether ctx was marked by WithoutRevalidation
func RevalidationDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(revalidationKey{}).(bool)
	return disabled
}

// CollectionTag is the cache tag revalidated after a collection changes
func CollectionTag(c schema.Collection) string {
	return string(c)
}

// GlobalTag is the cache tag revalidated after a global changes
func GlobalTag(g schema.Global) string {
	return "global_" + string(g)
}

// WithoutIdentity returns a shallow copy of doc with id, createdAt and updatedAt removed
func WithoutIdentity(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

// Matches reports whether doc satisfies every condition in where
func (w Where) Matches(doc Document) bool {
	for k, want := range w {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func checkCollection(c schema.Collection) error {
	if _, ok := schema.ParseCollection(string(c)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}

func checkGlobal(g schema.Global) error {
	if _, ok := schema.ParseGlobal(string(g)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGlobal, g)
	}
	return nil
}
