package breaker

import (
	"github.com/signalnine/fiveworlds/internal/world"
)

// Registry holds one independent breaker per world in a fixed array indexed
// by world ordinal, so worlds never contend on a shared lock.
type Registry struct {
	breakers [world.Count]*Breaker
}

func NewRegistry(settings Settings) *Registry {
	r := &Registry{}
	for _, id := range world.All() {
		r.breakers[id.Index()] = New(settings)
	}
	return r
}

func (r *Registry) For(id world.ID) *Breaker {
	return r.breakers[id.Index()]
}

func (r *Registry) States() map[world.ID]State {
	out := make(map[world.ID]State, world.Count)
	for _, id := range world.All() {
		out[id] = r.For(id).State()
	}
	return out
}

// Snapshot captures every breaker's counts for persistence.
func (r *Registry) Snapshot() map[world.ID]Counts {
	out := make(map[world.ID]Counts, world.Count)
	for _, id := range world.All() {
		out[id] = r.For(id).Counts()
	}
	return out
}

// Restore applies a snapshot taken by Snapshot. Worlds missing from snap are
// left untouched.
func (r *Registry) Restore(snap map[world.ID]Counts) {
	for id, c := range snap {
		if id.Valid() {
			r.For(id).restore(c)
		}
	}
}
