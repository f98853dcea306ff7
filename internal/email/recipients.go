// Package email validates and normalizes the addresses the site mails.
package email

import (
	"net/mail"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValid reports whether addr looks like local@domain.tld
func IsValid(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Normalize trims and lowercases an address
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ExtractDomain returns the lowercased domain of addr, or "" when it has none.
// The display-name form "Shop <hello@shop.example>" is accepted.
func ExtractDomain(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return ""
	}
	return Normalize(addr[at+1:])
}

// DomainOr is ExtractDomain with a fallback for addresses without a domain
func DomainOr(addr, fallback string) string {
	if d := ExtractDomain(addr); d != "" {
		return d
	}
	return fallback
}

// ParseRecipientList turns a comma or semicolon separated string, or a list
// of strings, into normalized valid addresses without duplicates.
// First-seen order is kept. Anything else yields an empty list.
func ParseRecipientList(input any) []string {
	var candidates []string

	switch v := input.(type) {
	case string:
		candidates = strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';'
		})
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	out := []string{}
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		addr := Normalize(c)
		if !IsValid(addr) || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
