// Package normalize classifies, fingerprints and coerces the loosely-typed
// values found in project payloads. Nothing here holds state.
package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// IsEmpty reports whether v carries no information. nil, whitespace-only
// strings and zero-length lists or maps are empty. Numeric zero and false are not.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case bool, float64, float32, int, int64, int32, json.Number:
		return false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmpty(rv.Elem().Interface())
	}
	return false
}

// Signature returns a stable textual fingerprint of v. Map keys are
// serialised in sorted order so key ordering never affects the result.
// Values that cannot be serialised fall back to a type+repr form.
func Signature(v any) (sig string) {
	defer func() {
		if r := recover(); r != nil {
			sig = fallbackSignature(v)
		}
	}()

	data, err := json.Marshal(v)
	if err != nil {
		return fallbackSignature(v)
	}
	return string(data)
}

func fallbackSignature(v any) string {
	return fmt.Sprintf("%T:%#v", v, v)
}

// EnsureList coerces v into a list: nil becomes an empty list, a scalar
// becomes a one-element list and lists pass through.
func EnsureList(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]any:
		return []any{t}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// NormalizeLink returns the comparison form of a link: trimmed, without
// trailing slashes, lower-cased. Stored links keep their original form.
func NormalizeLink(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	return strings.ToLower(s)
}

// DedupeKey is the identity used when de-duplicating list items. Strings
// compare by their normalised link form, anything else by signature.
func DedupeKey(v any) string {
	if s, ok := v.(string); ok {
		return "s:" + NormalizeLink(s)
	}
	return "v:" + Signature(v)
}

// StringList returns the trimmed, non-empty string items of v. The second
// result counts items that were dropped because they were not strings.
func StringList(v any) ([]any, int) {
	items := EnsureList(v)
	out := make([]any, 0, len(items))
	dropped := 0
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			if item != nil {
				dropped++
			}
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, dropped
}
