package contact

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMissingPhone = errors.New("contact: missing phone number")

// Recipient is one row of the loaded contact list. It is immutable once
// loaded; the dispatch engine only ever reads it.
type Recipient struct {
	Phone  string
	Name   string
	Fields map[string]string
}

// Field resolves a template placeholder name against the recipient.
// "phone_number" and "name" are built-in; everything else comes from the
// custom field map (CSV columns).
func (r Recipient) Field(name string) (string, bool) {
	switch name {
	case "phone_number":
		return r.Phone, true
	case "name":
		if r.Name != "" {
			return r.Name, true
		}
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Normalize validates the identity shape and returns a cleaned recipient.
//
// Validation here is deliberately lenient: the phone must be non-empty and
// start with '+' or a digit. Strict destination checking belongs to the
// provider, which rejects bad numbers with a permanent error; rejecting
// aggressively at load time would hide those per-recipient failures from
// the final report.
func Normalize(r Recipient) (Recipient, error) {
	phone := cleanPhone(r.Phone)
	if phone == "" {
		return r, ErrMissingPhone
	}
	if phone[0] != '+' && (phone[0] < '0' || phone[0] > '9') {
		return r, fmt.Errorf("contact: implausible phone number %q", r.Phone)
	}
	r.Phone = phone
	return r, nil
}

// cleanPhone strips the separators people type into phone columns.
func cleanPhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, c := range s {
		switch {
		case c == '+' && i == 0:
			b.WriteRune(c)
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
			// separator, drop
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
