package template

import (
	"log/slog"
	"strings"

	"github.com/Kalhara-JA/retail-os/internal/store"
)

// RenderContent flattens a rich-text document into the HTML body of an email.
//
// Only top-level paragraph nodes are rendered: the text of their direct
// text children is concatenated with no tags or separators. Anything that
// does not have the expected shape renders as "".
func RenderContent(doc any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("failed to render email content", "panic", r)
			out = ""
		}
	}()

	root, ok := asMap(doc)["root"]
	if !ok {
		return ""
	}
	children, _ := asMap(root)["children"].([]any)

	var b strings.Builder
	for _, child := range children {
		node := asMap(child)
		if node["type"] != "paragraph" {
			continue
		}
		inline, _ := node["children"].([]any)
		for _, leaf := range inline {
			textNode := asMap(leaf)
			if textNode["type"] != "text" {
				continue
			}
			if text, ok := textNode["text"].(string); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case store.Document:
		return m
	default:
		return nil
	}
}
