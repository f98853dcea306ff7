package template

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
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

var testVars = Variables{Email: "jane@example.com", Date: "2024-03-01", Time: "09:15:00", IP: "203.0.113.7"}

func TestEngineRenderFromStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, schema.EmailTemplates, store.Document{
		"name":    "welcome",
		"subject": "Welcome {{email}}",
		"content": map[string]any{
			"root": map[string]any{
				"children": []any{
					map[string]any{
						"type":     "paragraph",
						"children": []any{map[string]any{"type": "text", "text": "Joined on {{date}}"}},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	engine := NewEngine(NewStorage(s), testLogger())
	result, err := engine.Render(ctx, Welcome, testVars)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if result.Subject != "Welcome jane@example.com" {
		t.Errorf("Subject = %q", result.Subject)
	}
	if result.HTML != "Joined on 2024-03-01" {
		t.Errorf("HTML = %q", result.HTML)
	}
}

func TestEngineRenderHTMLField(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.Create(ctx, schema.EmailTemplates, store.Document{
		"name":    "contact",
		"subject": "Contact",
		"html":    "<p>{{ip}}</p>",
	})

	engine := NewEngine(NewStorage(s), testLogger())
	result, err := engine.Render(ctx, "contact", testVars)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.HTML != "<p>203.0.113.7</p>" {
		t.Errorf("HTML = %q", result.HTML)
	}
}

func TestEngineFallbacks(t *testing.T) {
	engine := NewEngine(NewStorage(newStore(t)), testLogger())

	for _, name := range []string{Welcome, AdminNotification} {
		t.Run(name, func(t *testing.T) {
			result, err := engine.Render(context.Background(), name, testVars)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if result.Subject == "" || result.HTML == "" {
				t.Errorf("empty render: %+v", result)
			}
			if strings.Contains(result.HTML, "{{email}}") {
				t.Errorf("placeholder left in %q", result.HTML)
			}
		})
	}
}

func TestEngineWithoutStorage(t *testing.T) {
	engine := NewEngine(nil, testLogger())

	result, err := engine.Render(context.Background(), AdminNotification, testVars)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(result.HTML, "203.0.113.7") {
		t.Errorf("HTML = %q", result.HTML)
	}
}

func TestEngineNotFound(t *testing.T) {
	engine := NewEngine(NewStorage(newStore(t)), testLogger())

	_, err := engine.Render(context.Background(), "missing", testVars)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestRenderEscapesValuesInBody(t *testing.T) {
	tmpl := &Template{
		Subject: "New subscriber: {{email}}",
		HTML:    `<p>{{email}} from {{ip}} ({{plan}})</p>`,
	}
	vars := Variables{
		Email: `<a href="//evil.example">click</a>@x.com`,
		IP:    "203.0.113.7",
		Extra: map[string]string{"plan": "<b>gold</b>"},
	}

	result := Render(tmpl, vars)

	wantHTML := `<p>&lt;a href=&#34;//evil.example&#34;&gt;click&lt;/a&gt;@x.com from 203.0.113.7 (&lt;b&gt;gold&lt;/b&gt;)</p>`
	if result.HTML != wantHTML {
		t.Errorf("HTML = %q, want %q", result.HTML, wantHTML)
	}
	if result.Subject != `New subscriber: <a href="//evil.example">click</a>@x.com` {
		t.Errorf("Subject = %q", result.Subject)
	}
	if vars.Email != `<a href="//evil.example">click</a>@x.com` || vars.Extra["plan"] != "<b>gold</b>" {
		t.Error("input variables should not be modified")
	}
}
