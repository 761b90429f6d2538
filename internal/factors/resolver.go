package factors

import (
	"sync"

	"github.com/rshade/carboncounter/internal/greenops"
)

// Resolver turns a vehicle profile into an emissions factor.
//
// A miss keeps the last resolved factor, so switching to a vehicle that is
// absent from the dataset silently reuses the previous vehicle's value.
// Before any hit the factor is greenops.UnknownFactor.
type Resolver struct {
	table *Table

	mu   sync.Mutex
	last greenops.Factor
}

// NewResolver creates a resolver over table. A nil table never matches.
func NewResolver(table *Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the factor for v and whether it came from a fresh match.
func (r *Resolver) Resolve(v VehicleProfile) (greenops.Factor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gpm, ok := r.table.Lookup(v)
	if !ok {
		return r.last, false
	}
	r.last = greenops.KnownFactor(gpm)
	return r.last, true
}

// Last returns the most recently resolved factor.
func (r *Resolver) Last() greenops.Factor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
