// Package template renders message templates against a recipient.
//
// Placeholders use the {field_name} form, e.g. "Hi {name}, your order at
// {location} is ready". Field names resolve through contact.Recipient.Field;
// {phone_number} and {name} are always available, everything else comes from
// the contact file's columns.
//
// Rendering is pure: same template + same recipient always yields the same
// string, and nothing is mutated.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"wablast/internal/contact"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Error reports a placeholder the recipient cannot fill. The dispatch engine
// treats it as a permanent per-recipient failure.
type Error struct {
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("template: recipient has no field %q", e.Field)
}

// Render fills tmpl with the recipient's fields. An unknown placeholder
// returns *Error naming the missing field.
func Render(tmpl string, r contact.Recipient) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := r.Field(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", &Error{Field: missing}
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Validate checks template syntax before a batch starts. It catches the
// obvious editing mistakes (unbalanced braces, empty template); unknown
// fields are a per-recipient concern and are left to Render.
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("template: empty template")
	}
	open := strings.Count(tmpl, "{")
	close := strings.Count(tmpl, "}")
	if open != close {
		return fmt.Errorf("template: unbalanced braces (%d open, %d close)", open, close)
	}
	return nil
}
