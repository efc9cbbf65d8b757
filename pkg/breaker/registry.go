package breaker

import "sync"

// Standard breaker scope names.
const (
	// ScopeService guards the top-level execute path.
	ScopeService = "service"

	// ScopeDelivery guards the response streaming sub-path.
	ScopeDelivery = "delivery"
)

// Registry holds process-wide breakers keyed by scope name. It is constructed
// once at startup and threaded through the executor so no package-level
// mutable state exists.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry containing the given breakers.
func NewRegistry(breakers ...*Breaker) *Registry {
	reg := &Registry{breakers: make(map[string]*Breaker, len(breakers))}

	for _, b := range breakers {
		reg.breakers[b.name] = b
	}

	return reg
}

// Get returns the breaker registered under name, or nil.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.breakers[name]
}

// Register adds or replaces a breaker.
func (r *Registry) Register(b *Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakers[b.name] = b
}

// Snapshots returns the current state of every registered breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, b.Snapshot())
	}

	return snaps
}
