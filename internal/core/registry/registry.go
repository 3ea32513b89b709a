// Package registry keeps per-endpoint throttle state for the lifetime of a
// coordinator instance. State is created lazily and never evicted: throttle
// granularity is (method, path), so cardinality is bounded by the number of
// routes the remote API exposes.
package registry

import (
	"sort"
	"sync"

	"github.com/pacekit/pacekit/internal/core"
)

// Registry maps endpoint keys to mutable throttle state.
type Registry struct {
	mu     sync.Mutex
	states map[core.EndpointKey]*core.EndpointState
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{states: make(map[core.EndpointKey]*core.EndpointState)}
}

// GetOrCreate returns the state for key, creating a default non-throttled
// entry on first observation.
func (r *Registry) GetOrCreate(key core.EndpointKey) *core.EndpointState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.states == nil {
		r.states = make(map[core.EndpointKey]*core.EndpointState)
	}
	state, ok := r.states[key]
	if !ok {
		state = &core.EndpointState{}
		r.states[key] = state
	}
	return state
}

// Get returns the state for key if it has been observed.
func (r *Registry) Get(key core.EndpointKey) (*core.EndpointState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[key]
	return state, ok
}

// Len reports how many distinct endpoints have been observed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.states)
}

// Entry pairs an endpoint key with a snapshot of its state.
type Entry struct {
	Key   core.EndpointKey  `json:"key"`
	State core.EndpointView `json:"state"`
}

// Snapshot returns a stable, sorted view of every observed endpoint.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.states))
	for key, state := range r.states {
		entries = append(entries, Entry{Key: key, State: state.View()})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Path != entries[j].Key.Path {
			return entries[i].Key.Path < entries[j].Key.Path
		}
		return entries[i].Key.Method < entries[j].Key.Method
	})
	return entries
}
