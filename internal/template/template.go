// Package template renders the transactional emails sent by the site.
//
// Templates live in the email-templates collection as
// {name, subject, content} documents, where content is a rich-text tree.
// Four placeholders are substituted: {{email}}, {{date}}, {{time}} and {{ip}}.
package template

import (
	"errors"
	"html"
)

// Template names used by the newsletter flow
const (
	Welcome           = "welcome"
	AdminNotification = "admin-notification"
)

// ErrTemplateNotFound is returned when no template with the requested name exists
var ErrTemplateNotFound = errors.New("template not found")

// Template is an email template loaded from the store
type Template struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Content any    `json:"content,omitempty"` // rich-text document
	HTML    string `json:"html,omitempty"`    // used when content renders empty
}

// RenderResult contains rendered template output
type RenderResult struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Variables are the values substituted into a template
type Variables struct {
	Email string `json:"email"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	IP    string `json:"ip"`

	// Extra holds additional {{key}} values, e.g. submitted form fields.
	// They never replace the four fixed placeholders.
	Extra map[string]string `json:"extra,omitempty"`
}

// HTMLEscaped returns a copy with every value escaped for an HTML body
func (v Variables) HTMLEscaped() Variables {
	out := Variables{
		Email: html.EscapeString(v.Email),
		Date:  html.EscapeString(v.Date),
		Time:  html.EscapeString(v.Time),
		IP:    html.EscapeString(v.IP),
	}
	if len(v.Extra) > 0 {
		out.Extra = make(map[string]string, len(v.Extra))
		for k, val := range v.Extra {
			out.Extra[k] = html.EscapeString(val)
		}
	}
	return out
}

var fallbacks = map[string]Template{
	Welcome: {
		Name:    Welcome,
		Subject: "Welcome to our newsletter",
		HTML:    "<p>Thanks for subscribing, {{email}}. You will hear from us soon.</p>",
	},
	AdminNotification: {
		Name:    AdminNotification,
		Subject: "New newsletter subscriber: {{email}}",
		HTML:    "<p>{{email}} subscribed on {{date}} at {{time}} from {{ip}}.</p>",
	},
}

// Fallback returns the built-in template for name, if there is one
func Fallback(name string) (Template, bool) {
	tmpl, ok := fallbacks[name]
	return tmpl, ok
}
