// Package seed exports the store to JSON seed files and loads them back.
package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Kalhara-JA/retail-os/internal/store"
)

// Version is written to every seed file
const Version = "1.0.0"

// File is the on-disk seed format
type File struct {
	Collections Collections               `json:"collections"`
	Globals     map[string]store.Document `json:"globals"`
	GeneratedAt string                    `json:"generatedAt"`
	Version     string                    `json:"version"`
	Description string                    `json:"description"`
}

// Collections maps collection names to documents and keeps the order
// the names appear in the file.
type Collections struct {
	names []string
	docs  map[string][]store.Document
}

// Set adds or replaces a collection, appending new names at the end
func (c *Collections) Set(name string, docs []store.Document) {
	if c.docs == nil {
		c.docs = make(map[string][]store.Document)
	}
	if _, ok := c.docs[name]; !ok {
		c.names = append(c.names, name)
	}
	c.docs[name] = docs
}

// Get returns the documents of a collection
func (c *Collections) Get(name string) ([]store.Document, bool) {
	docs, ok := c.docs[name]
	return docs, ok
}

// Names returns collection names in file order
func (c *Collections) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of collections
func (c *Collections) Len() int {
	return len(c.names)
}

// MarshalJSON writes the collections as an object in insertion order
func (c Collections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		docs := c.docs[name]
		if docs == nil {
			docs = []store.Document{}
		}
		value, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of document arrays, remembering key order
func (c *Collections) UnmarshalJSON(data []byte) error {
	*c = Collections{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("collections must be an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)

		var docs []store.Document
		if err := dec.Decode(&docs); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
		c.Set(name, docs)
	}

	_, err = dec.Token()
	return err
}

// ReadFile loads and decodes a seed file
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// WriteFile writes f as indented JSON, replacing any existing file
func WriteFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal seed file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}
	return nil
}
