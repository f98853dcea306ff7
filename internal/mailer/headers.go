package mailer

import (
	"bytes"
	"fmt"
	"strings"
)

// HeaderAction is what a HeaderRule does
type HeaderAction string

const (
	HeaderRemove  HeaderAction = "remove"
	HeaderReplace HeaderAction = "replace"
	HeaderAdd     HeaderAction = "add"
)

// HeaderRule edits one or more headers of a composed message
type HeaderRule struct {
	Action  HeaderAction `yaml:"action" json:"action"`
	Headers []string     `yaml:"headers,omitempty" json:"headers,omitempty"` // remove
	Header  string       `yaml:"header,omitempty" json:"header,omitempty"`   // replace, add
	Value   string       `yaml:"value,omitempty" json:"value,omitempty"`     // replace, add
}

// HeaderRules apply to every message, then per sender domain
type HeaderRules struct {
	Global  []HeaderRule            `yaml:"global,omitempty" json:"global,omitempty"`
	Domains map[string][]HeaderRule `yaml:"domains,omitempty" json:"domains,omitempty"`
}

// For returns the rules for a sender domain, global ones first
func (r *HeaderRules) For(domain string) []HeaderRule {
	if r == nil {
		return nil
	}
	rules := append([]HeaderRule(nil), r.Global...)
	return append(rules, r.Domains[strings.ToLower(domain)]...)
}

// Validate rejects unknown actions and values that would break the header block
func (r *HeaderRules) Validate() error {
	if r == nil {
		return nil
	}
	check := func(where string, rules []HeaderRule) error {
		for i, rule := range rules {
			if err := rule.validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", where, i, err)
			}
		}
		return nil
	}
	if err := check("global", r.Global); err != nil {
		return err
	}
	for domain, rules := range r.Domains {
		if err := check(domain, rules); err != nil {
			return err
		}
	}
	return nil
}

func (rule HeaderRule) validate() error {
	switch rule.Action {
	case HeaderRemove:
		if len(rule.Headers) == 0 {
			return fmt.Errorf("remove needs headers")
		}
		return nil
	case HeaderReplace, HeaderAdd:
		if rule.Header == "" || strings.ContainsAny(rule.Header, ": \t\r\n") {
			return fmt.Errorf("invalid header name %q", rule.Header)
		}
		if strings.ContainsAny(rule.Value, "\r\n") {
			return fmt.Errorf("header %s: value must be a single line", rule.Header)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", rule.Action)
}

type field struct {
	name  string
	value string // unfolded continuation lines keep their CRLF
}

// ApplyHeaderRules rewrites the header block of a composed message.
// The body is returned untouched.
func ApplyHeaderRules(data []byte, rules []HeaderRule) []byte {
	if len(rules) == 0 {
		return data
	}

	head, body, ok := bytes.Cut(data, []byte("\r\n\r\n"))
	if !ok {
		head, body = data, nil
	}

	fields := parseFields(head)
	for _, rule := range rules {
		fields = rule.apply(fields)
	}

	var buf bytes.Buffer
	for _, f := range fields {
		buf.WriteString(f.name)
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func parseFields(head []byte) []field {
	var fields []field
	for _, line := range strings.Split(string(head), "\r\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if n := len(fields); n > 0 {
				fields[n-1].value += "\r\n" + line
			}
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		fields = append(fields, field{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
	}
	return fields
}

func (rule HeaderRule) apply(fields []field) []field {
	switch rule.Action {
	case HeaderRemove:
		out := fields[:0]
		for _, f := range fields {
			if !containsFold(rule.Headers, f.name) {
				out = append(out, f)
			}
		}
		return out

	case HeaderReplace:
		for i := range fields {
			if strings.EqualFold(fields[i].name, rule.Header) {
				fields[i].value = rule.Value
				return fields
			}
		}
		return append(fields, field{name: rule.Header, value: rule.Value})

	case HeaderAdd:
		return append(fields, field{name: rule.Header, value: rule.Value})
	}
	return fields
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
