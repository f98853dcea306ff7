package template

import (
	"sort"
	"strings"
)

const (
	tokenEmail = "{{email}}"
	tokenDate  = "{{date}}"
	tokenTime  = "{{time}}"
	tokenIP    = "{{ip}}"
)

// ReplaceVariables substitutes every placeholder in text with its value.
// Unknown placeholders are left as they are. Values are inserted verbatim,
// so callers building HTML must escape them first.
func ReplaceVariables(text string, vars Variables) string {
	pairs := []string{
		tokenEmail, vars.Email,
		tokenDate, vars.Date,
		tokenTime, vars.Time,
		tokenIP, vars.IP,
	}

	if len(vars.Extra) > 0 {
		keys := make([]string, 0, len(vars.Extra))
		for k := range vars.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			token := "{{" + k + "}}"
			switch token {
			case tokenEmail, tokenDate, tokenTime, tokenIP:
				continue
			}
			pairs = append(pairs, token, vars.Extra[k])
		}
	}

	// Single pass, so substituted values are never expanded again
	return strings.NewReplacer(pairs...).Replace(text)
}
