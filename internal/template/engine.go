package template

import (
	"context"
	"fmt"
	"log/slog"
)

// Engine renders named templates with variables
type Engine struct {
	storage *Storage
	logger  *slog.Logger
}

// NewEngine creates a new template engine.
// storage may be nil, in which case only built-in templates are available.
func NewEngine(storage *Storage, logger *slog.Logger) *Engine {
	return &Engine{storage: storage, logger: logger}
}

// Render loads the named template and substitutes vars into subject and body.
// Built-in templates are used when the store has no template with that name.
func (e *Engine) Render(ctx context.Context, name string, vars Variables) (*RenderResult, error) {
	tmpl, err := e.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return Render(tmpl, vars), nil
}

func (e *Engine) lookup(ctx context.Context, name string) (*Template, error) {
	if e.storage != nil {
		tmpl, err := e.storage.GetByName(ctx, name)
		if err != nil {
			// Use the built-in template below
			e.logger.Warn("template lookup failed", "template", name, "error", err)
		} else if tmpl != nil {
			return tmpl, nil
		}
	}

	if tmpl, ok := Fallback(name); ok {
		return &tmpl, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Render renders a single template. The body comes from the rich-text
// content, or from the raw HTML field when the content renders empty.
// Values are escaped in the body; the subject is plain text and gets them raw.
func Render(tmpl *Template, vars Variables) *RenderResult {
	body := RenderContent(tmpl.Content)
	if body == "" {
		body = tmpl.HTML
	}
	return &RenderResult{
		Subject: ReplaceVariables(tmpl.Subject, vars),
		HTML:    ReplaceVariables(body, vars.HTMLEscaped()),
	}
}
