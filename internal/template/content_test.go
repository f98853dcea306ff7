package template

import (
	"encoding/json"
	"testing"

	"github.com/Kalhara-JA/retail-os/internal/store"
)

func mustJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return v
}

func TestRenderContent(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "single paragraph",
			doc:  `{"root":{"children":[{"type":"paragraph","children":[{"type":"text","text":"Hi"}]}]}}`,
			want: "Hi",
		},
		{
			name: "paragraphs concatenated without separators",
			doc: `{"root":{"children":[
				{"type":"paragraph","children":[{"type":"text","text":"Hello "},{"type":"text","text":"{{email}}"}]},
				{"type":"paragraph","children":[{"type":"text","text":"!"}]}
			]}}`,
			want: "Hello {{email}}!",
		},
		{
			name: "non paragraph nodes skipped",
			doc: `{"root":{"children":[
				{"type":"heading","children":[{"type":"text","text":"Title"}]},
				{"type":"paragraph","children":[{"type":"link","text":"x"},{"type":"text","text":"body"}]}
			]}}`,
			want: "body",
		},
		{
			name: "text not a string",
			doc:  `{"root":{"children":[{"type":"paragraph","children":[{"type":"text","text":5}]}]}}`,
			want: "",
		},
		{
			name: "children not a list",
			doc:  `{"root":{"children":"oops"}}`,
			want: "",
		},
		{
			name: "no root",
			doc:  `{"children":[]}`,
			want: "",
		},
		{
			name: "not an object",
			doc:  `"plain"`,
			want: "",
		},
		{
			name: "null",
			doc:  `null`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderContent(mustJSON(t, tt.doc)); got != tt.want {
				t.Errorf("RenderContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderContentNil(t *testing.T) {
	if got := RenderContent(nil); got != "" {
		t.Errorf("RenderContent(nil) = %q", got)
	}
}

func TestRenderContentStoreDocument(t *testing.T) {
	doc := store.Document{
		"root": map[string]any{
			"children": []any{
				map[string]any{
					"type":     "paragraph",
					"children": []any{map[string]any{"type": "text", "text": "ok"}},
				},
			},
		},
	}
	if got := RenderContent(doc); got != "ok" {
		t.Errorf("RenderContent() = %q, want ok", got)
	}
}
