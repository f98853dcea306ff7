package template

import (
	"context"
	"fmt"

	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

// Storage loads templates from the email-templates collection
type Storage struct {
	store store.Store
}

// NewStorage creates a template storage backed by s
func NewStorage(s store.Store) *Storage {
	return &Storage{store: s}
}

// GetByName returns the first template whose name matches, or nil
func (s *Storage) GetByName(ctx context.Context, name string) (*Template, error) {
	result, err := s.store.Find(ctx, schema.EmailTemplates, store.FindOptions{
		Limit: 1,
		Where: store.Where{"name": name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load template %q: %w", name, err)
	}
	if len(result.Docs) == 0 {
		return nil, nil
	}

	doc := result.Docs[0]
	tmpl := &Template{Name: name, Content: doc["content"]}
	tmpl.Subject, _ = doc["subject"].(string)
	tmpl.HTML, _ = doc["html"].(string)
	return tmpl, nil
}
