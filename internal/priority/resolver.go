// Package priority ranks upstream sources by authority.
package priority

import (
	"github.com/project-reconciler/internal/normalize"
)

// Resolver holds an ordered list of source identifiers. Position 0 is the
// most authoritative; sources not in the list rank below all of them.
type Resolver struct {
	order []string
	ranks map[string]int
}

// NewResolver creates a resolver for the given ordering. Identifiers are
// compared case-insensitively; a repeated identifier keeps its first rank.
func NewResolver(order []string) *Resolver {
	r := &Resolver{ranks: make(map[string]int, len(order))}
	for _, source := range order {
		id := normalize.NormalizeSourceID(source)
		if id == "" {
			continue
		}
		if _, dup := r.ranks[id]; dup {
			continue
		}
		r.ranks[id] = len(r.order)
		r.order = append(r.order, id)
	}
	return r
}

// Order returns a copy of the configured ordering.
func (r *Resolver) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Rank returns the position of source in the ordering, or the length of the
// ordering for unknown sources.
func (r *Resolver) Rank(source string) int {
	if rank, ok := r.ranks[normalize.NormalizeSourceID(source)]; ok {
		return rank
	}
	return len(r.order)
}

// HighestPriority returns the most authoritative of sources. ok is false
// when sources is empty. Equal ranks resolve to the lexically smallest id so
// the answer does not depend on input order.
func (r *Resolver) HighestPriority(sources []string) (best string, ok bool) {
	bestRank := 0
	for _, source := range sources {
		id := normalize.NormalizeSourceID(source)
		rank := r.Rank(id)
		if !ok || rank < bestRank || (rank == bestRank && id < best) {
			best, bestRank, ok = id, rank, true
		}
	}
	return best, ok
}

// PreferIncoming reports whether a write from incoming should win scalar
// conflicts against a record already backed by existing. Ties favour the
// incoming write, and a record with no sources always yields to it.
func (r *Resolver) PreferIncoming(existing []string, incoming string) bool {
	best, ok := r.HighestPriority(existing)
	if !ok {
		return true
	}
	return r.Rank(incoming) <= r.Rank(best)
}
