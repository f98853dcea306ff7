package seed

import (
	"encoding/json"
	"sync"
)

// Kind is what an ItemResult refers to
type Kind string

const (
	KindCollection Kind = "collection"
	KindGlobal     Kind = "global"
	KindDocument   Kind = "document"
)

// ItemResult is the outcome for one collection, global or document
type ItemResult struct {
	Name  string
	Kind  Kind
	Count int // documents read or written
	Err   error
}

// OK reports whether the item succeeded
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// MarshalJSON renders the error as a string
func (r ItemResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Name  string `json:"name"`
		Kind  Kind   `json:"kind"`
		Count int    `json:"count,omitempty"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}{
		Name:  r.Name,
		Kind:  r.Kind,
		Count: r.Count,
		OK:    r.OK(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Report collects per-item results of an export or import.
// It is safe for concurrent use.
type Report struct {
	mu    sync.Mutex
	items []ItemResult
}

// Add appends a result
func (r *Report) Add(item ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// Items returns a copy of all results
func (r *Report) Items() []ItemResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ItemResult(nil), r.items...)
}

// Failed returns the results that carry an error
func (r *Report) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items() {
		if !item.OK() {
			failed = append(failed, item)
		}
	}
	return failed
}

// Count sums Count over successful results of a kind
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, item := range r.Items() {
		if item.Kind == kind && item.OK() {
			n += item.Count
		}
	}
	return n
}

// MarshalJSON renders the report as {items, failed}
func (r *Report) MarshalJSON() ([]byte, error) {
	items := r.Items()
	if items == nil {
		items = []ItemResult{}
	}
	return json.Marshal(struct {
		Items  []ItemResult `json:"items"`
		Failed int          `json:"failed"`
	}{
		Items:  items,
		Failed: len(r.Failed()),
	})
}
