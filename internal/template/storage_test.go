package template

import (
	"context"
	"errors"
	"testing"

	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

// failingStore fails every Find
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Find(ctx context.Context, c schema.Collection, opts store.FindOptions) (*store.FindResult, error) {
	return nil, f.err
}

func TestStorageGetByName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	docs := []store.Document{
		{"name": "contact", "subject": "Contact", "html": "<p>contact</p>"},
		{"name": "welcome", "subject": "First", "html": "<p>first</p>"},
		{"name": "welcome", "subject": "Second", "html": "<p>second</p>"},
	}
	for _, doc := range docs {
		if _, err := s.Create(ctx, schema.EmailTemplates, doc); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	storage := NewStorage(s)

	tests := []struct {
		name        string
		lookup      string
		wantSubject string
		wantNil     bool
	}{
		{"first match wins", "welcome", "First", false},
		{"single match", "contact", "Contact", false},
		{"miss", "admin-notification", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := storage.GetByName(ctx, tt.lookup)
			if err != nil {
				t.Fatalf("GetByName() error = %v", err)
			}
			if tt.wantNil {
				if tmpl != nil {
					t.Errorf("expected nil, got %+v", tmpl)
				}
				return
			}
			if tmpl == nil {
				t.Fatal("expected a template, got nil")
			}
			if tmpl.Name != tt.lookup || tmpl.Subject != tt.wantSubject {
				t.Errorf("got name %q subject %q", tmpl.Name, tmpl.Subject)
			}
		})
	}
}

func TestStorageGetByNameStoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	storage := NewStorage(failingStore{err: boom})

	tmpl, err := storage.GetByName(context.Background(), "welcome")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if tmpl != nil {
		t.Errorf("expected nil template on error, got %+v", tmpl)
	}
}
