package merge

import (
	"github.com/project-reconciler/internal/normalize"
	"github.com/project-reconciler/internal/types"
)

// Strategy merges one field. existing and incoming may be any JSON value,
// including nil.
type Strategy func(existing, incoming any, preferIncoming bool) any

// DefaultFieldKinds declares the merge strategy of the well-known top-level
// project fields. Anything not listed is inferred from the values.
func DefaultFieldKinds() map[string]types.FieldKind {
	return map[string]types.FieldKind{
		types.FieldSocials:        types.KindLinkMap,
		types.FieldCategory:       types.KindList,
		types.FieldNetwork:        types.KindList,
		types.FieldExchanges:      types.KindList,
		types.FieldTelegramAdmins: types.KindRoster,
	}
}

// Engine deep-merges project documents.
type Engine struct {
	kinds      map[string]types.FieldKind
	strategies map[types.FieldKind]Strategy
	protected  map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithFieldKind declares or overrides the kind of a top-level field.
func WithFieldKind(key string, kind types.FieldKind) Option {
	return func(e *Engine) {
		e.kinds[key] = kind
	}
}

// WithStrategy replaces the strategy used for a field kind.
func WithStrategy(kind types.FieldKind, s Strategy) Option {
	return func(e *Engine) {
		e.strategies[kind] = s
	}
}

// WithProtectedKeys replaces the set of write-once top-level keys.
func WithProtectedKeys(keys ...string) Option {
	return func(e *Engine) {
		e.protected = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			e.protected[k] = struct{}{}
		}
	}
}

// NewEngine creates an engine with the default field kinds and
// types.ProtectedKeys.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		kinds:      DefaultFieldKinds(),
		strategies: make(map[types.FieldKind]Strategy),
	}
	e.strategies[types.KindScalar] = Prefer
	e.strategies[types.KindList] = func(a, b any, p bool) any { return MergeLists(a, b, p) }
	e.strategies[types.KindLinkMap] = func(a, b any, p bool) any { return MergeSocials(a, b, p) }
	e.strategies[types.KindRoster] = func(a, b any, p bool) any { return MergeAdmins(a, b, p) }
	e.strategies[types.KindNested] = e.mergeNested
	WithProtectedKeys(types.ProtectedKeys...)(e)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KindOf returns the declared kind of a top-level key.
func (e *Engine) KindOf(key string) (types.FieldKind, bool) {
	k, ok := e.kinds[key]
	return k, ok
}

// Merge folds incoming into existing and returns a new document; neither
// input is modified. The incoming "sources" key is ignored. Protected keys
// are only taken from incoming when existing has no value for them.
func (e *Engine) Merge(existing, incoming types.Document, preferIncoming bool) types.Document {
	out := existing.Clone()
	if out == nil {
		out = types.Document{}
	}

	for key, value := range incoming {
		if key == types.FieldSources || value == nil {
			continue
		}
		current, present := out[key]

		if _, protected := e.protected[key]; protected {
			if normalize.IsEmpty(current) && !normalize.IsEmpty(value) {
				out[key] = types.CloneValue(value)
			}
			continue
		}
		if normalize.IsEmpty(value) {
			if !present {
				out[key] = types.CloneValue(value)
			}
			continue
		}
		out[key] = e.mergeValue(e.kindFor(key, current, value), current, value, preferIncoming)
	}
	return out
}

func (e *Engine) kindFor(key string, existing, incoming any) types.FieldKind {
	if kind, ok := e.kinds[key]; ok {
		return kind
	}
	return inferKind(existing, incoming)
}

func inferKind(existing, incoming any) types.FieldKind {
	_, existingMap := existing.(map[string]any)
	_, incomingMap := incoming.(map[string]any)
	if existingMap && incomingMap {
		return types.KindNested
	}
	_, existingList := existing.([]any)
	_, incomingList := incoming.([]any)
	if existingList && incomingList {
		return types.KindList
	}
	return types.KindScalar
}

func (e *Engine) mergeValue(kind types.FieldKind, existing, incoming any, preferIncoming bool) any {
	strategy, ok := e.strategies[kind]
	if !ok {
		strategy = Prefer
	}
	return types.CloneValue(strategy(existing, incoming, preferIncoming))
}

// mergeNested recurses into two objects. Below the top level no key is
// protected and kinds are inferred from the values.
func (e *Engine) mergeNested(existing, incoming any, preferIncoming bool) any {
	a, aOK := existing.(map[string]any)
	b, bOK := incoming.(map[string]any)
	if !aOK || !bOK {
		return Prefer(existing, incoming, preferIncoming)
	}

	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = types.CloneValue(v)
	}
	for k, v := range b {
		if v == nil {
			continue
		}
		current, present := out[k]
		if !present {
			out[k] = types.CloneValue(v)
			continue
		}
		if normalize.IsEmpty(v) {
			continue
		}
		out[k] = e.mergeValue(inferKind(current, v), current, v, preferIncoming)
	}
	return out
}
