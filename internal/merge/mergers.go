// Package merge combines an existing project document with an incoming
// observation. Every merger takes the existing value first, the incoming
// value second, and a flag saying whether the incoming side is preferred.
package merge

import (
	"strings"

	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/types"
)

// Prefer resolves two scalar values. An empty value never replaces a
// populated one; when both are populated preferB picks the winner.
func Prefer(a, b any, preferB bool) any {
	aEmpty, bEmpty := normalize.IsEmpty(a), normalize.IsEmpty(b)
	switch {
	case aEmpty && !bEmpty:
		return b
	case bEmpty:
		return a
	case preferB:
		return b
	default:
		return a
	}
}

// MergeLists unions two lists. Items from the preferred side come first and
// duplicates are dropped by normalize.DedupeKey. When an item exists on both
// sides the existing spelling is kept.
func MergeLists(a, b any, preferB bool) []any {
	existing, incoming := normalize.EnsureList(a), normalize.EnsureList(b)

	known := make(map[string]any, len(existing))
	for _, item := range existing {
		key := normalize.DedupeKey(item)
		if _, ok := known[key]; !ok {
			known[key] = item
		}
	}

	first, second := existing, incoming
	if preferB {
		first, second = incoming, existing
	}

	out := make([]any, 0, len(first)+len(second))
	seen := make(map[string]struct{}, len(first)+len(second))
	for _, seq := range [][]any{first, second} {
		for _, item := range seq {
			if normalize.IsEmpty(item) {
				continue
			}
			key := normalize.DedupeKey(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if original, ok := known[key]; ok {
				item = original
			}
			out = append(out, types.CloneValue(item))
		}
	}
	return out
}

// MergeSocials unions two channel→links maps channel by channel. The result
// is always a map of lists, even when an input held a bare string.
func MergeSocials(a, b any, preferB bool) map[string]any {
	existing, _ := a.(map[string]any)
	incoming, _ := b.(map[string]any)

	out := make(map[string]any, len(existing)+len(incoming))
	for channel, links := range existing {
		out[channel] = MergeLists(links, incoming[channel], preferB)
	}
	for channel, links := range incoming {
		if _, done := out[channel]; done {
			continue
		}
		out[channel] = MergeLists(nil, links, preferB)
	}
	return out
}

// AdminKey is the grouping identity of an admin record: its username
// without a leading "@", trimmed and lower-cased. Records without a
// username return "".
func AdminKey(admin map[string]any) string {
	username, _ := admin[types.AdminUsername].(string)
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

type rosterSlot struct {
	existing map[string]any
	incoming map[string]any
	other    any
}

// MergeAdmins merges two admin rosters by identity. Records sharing a
// username collapse into one whose fields are resolved with Prefer; records
// without a username are de-duplicated by signature. Order follows the
// preferred-first sequence.
func MergeAdmins(a, b any, preferB bool) []any {
	existing, incoming := normalize.EnsureList(a), normalize.EnsureList(b)

	slots := make(map[string]*rosterSlot)
	var order []string
	slot := func(key string) *rosterSlot {
		s, ok := slots[key]
		if !ok {
			s = &rosterSlot{}
			slots[key] = s
			order = append(order, key)
		}
		return s
	}

	first, second := existing, incoming
	firstIsExisting := true
	if preferB {
		first, second = incoming, existing
		firstIsExisting = false
	}

	for pass, seq := range [][]any{first, second} {
		fromExisting := (pass == 0) == firstIsExisting
		for _, item := range seq {
			if normalize.IsEmpty(item) {
				continue
			}
			admin, isMap := item.(map[string]any)
			if !isMap {
				key := "item:" + normalize.DedupeKey(item)
				if s := slot(key); s.other == nil {
					s.other = item
				}
				continue
			}

			key := "user:" + AdminKey(admin)
			if key == "user:" {
				key = "sig:" + normalize.Signature(rosterSignatureView(admin))
			}
			s := slot(key)
			if fromExisting {
				s.existing = foldAdmin(s.existing, admin)
			} else {
				s.incoming = foldAdmin(s.incoming, admin)
			}
		}
	}

	out := make([]any, 0, len(order))
	for _, key := range order {
		s := slots[key]
		switch {
		case s.other != nil:
			out = append(out, types.CloneValue(s.other))
		case s.existing == nil:
			out = append(out, s.incoming)
		case s.incoming == nil:
			out = append(out, s.existing)
		default:
			out = append(out, combineAdmins(s.existing, s.incoming, preferB))
		}
	}
	return out
}

// foldAdmin merges a same-side duplicate into acc; the first record seen wins.
func foldAdmin(acc, admin map[string]any) map[string]any {
	if acc == nil {
		return types.CloneValue(admin).(map[string]any)
	}
	return combineAdmins(acc, admin, false)
}

func combineAdmins(existing, incoming map[string]any, preferIncoming bool) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = types.CloneValue(Prefer(v, incoming[k], preferIncoming))
	}
	for k, v := range incoming {
		if _, done := out[k]; !done && !normalize.IsEmpty(v) {
			out[k] = types.CloneValue(v)
		}
	}
	// the username is the identity; keep the spelling already on record
	if username, ok := existing[types.AdminUsername]; ok && !normalize.IsEmpty(username) {
		out[types.AdminUsername] = username
	}
	return out
}

func rosterSignatureView(admin map[string]any) map[string]any {
	view := make(map[string]any, len(admin))
	for k, v := range admin {
		// status is filled in after merging, so it never tells records apart
		if k == types.AdminUsername || k == types.AdminStatus || normalize.IsEmpty(v) {
			continue
		}
		view[k] = v
	}
	return view
}
