// Package sanitize makes raw engine state safe to hand to an autonomous caller.
//
// Sanitize walks a decoded JSON tree, replaces values under credential-like keys
// with a fixed marker, and truncates oversized sequences. The transform is pure
// and idempotent.
package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// RedactedMarker replaces every redacted value.
const RedactedMarker = "***REDACTED***"

// DefaultMaxItems is the default sequence length threshold.
const DefaultMaxItems = 200

// Truncation marker keys.
const (
	TruncatedKey    = "truncated"
	OmittedCountKey = "omittedCount"
)

// denylist holds normalized key names whose values are always redacted.
var denylist = map[string]struct{}{
	"password":           {},
	"passwd":             {},
	"passcode":           {},
	"token":              {},
	"accesstoken":        {},
	"refreshtoken":       {},
	"authtoken":          {},
	"bearertoken":        {},
	"idtoken":            {},
	"secret":             {},
	"clientsecret":       {},
	"secretkey":          {},
	"secretaccesskey":    {},
	"apikey":             {},
	"keytab":             {},
	"kerberoskeytab":     {},
	"keystore":           {},
	"keystorepassword":   {},
	"keystorepasswd":     {},
	"sslkeystorepasswd":  {},
	"truststorepassword": {},
	"keypassword":        {},
}

// Sanitizer applies redaction and truncation.
type Sanitizer struct {
	MaxItems int
}

// New returns a Sanitizer; maxItems <= 0 selects DefaultMaxItems.
func New(maxItems int) *Sanitizer {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Sanitizer{MaxItems: maxItems}
}

// Sanitize transforms a generic JSON tree. Unknown types pass through untouched.
func (s *Sanitizer) Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return s.sanitizeMap(val)
	case []any:
		return s.sanitizeSlice(val)
	default:
		return v
	}
}

// SanitizeValue normalizes any Go value into a generic JSON tree and sanitizes it.
func (s *Sanitizer) SanitizeValue(v any) (any, error) {
	generic, err := ToGeneric(v)
	if err != nil {
		return nil, err
	}
	return s.Sanitize(generic), nil
}

func (s *Sanitizer) sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	sensitive := m["sensitive"] == true

	for k, v := range m {
		if IsSensitiveKey(k) || (sensitive && k == "value" && v != nil) {
			out[k] = RedactedMarker
			continue
		}
		out[k] = s.Sanitize(v)
	}
	return out
}

func (s *Sanitizer) sanitizeSlice(items []any) []any {
	max := s.maxItems()
	if len(items) <= max || isTruncated(items, max) {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = s.Sanitize(item)
		}
		return out
	}

	out := make([]any, 0, max+1)
	for _, item := range items[:max] {
		out = append(out, s.Sanitize(item))
	}
	return append(out, map[string]any{
		TruncatedKey:    true,
		OmittedCountKey: len(items) - max,
	})
}

func (s *Sanitizer) maxItems() int {
	if s == nil || s.MaxItems <= 0 {
		return DefaultMaxItems
	}
	return s.MaxItems
}

// isTruncated reports whether items already ends in a truncation marker at
// exactly the position a previous pass would have placed it.
func isTruncated(items []any, max int) bool {
	if len(items) != max+1 {
		return false
	}
	marker, ok := items[max].(map[string]any)
	if !ok || len(marker) != 2 || marker[TruncatedKey] != true {
		return false
	}
	_, ok = marker[OmittedCountKey]
	return ok
}

// IsSensitiveKey reports whether a mapping key is on the denylist,
// ignoring case and separators ("Keystore Password" == "keystorePassword").
func IsSensitiveKey(key string) bool {
	_, ok := denylist[normalizeKey(key)]
	return ok
}

func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ToGeneric converts an arbitrary value into map[string]any / []any / scalars.
// Containers always take the JSON round trip so typed values nested in a
// map[string]any are walked like any other mapping.
func ToGeneric(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sanitize: marshal %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("sanitize: unmarshal %T: %w", v, err)
	}
	return out, nil
}
