// Package stat implements a small named-counter registry. Protocol modules
// acquire counter cells once at setup and increment them on the hot path;
// supervisory code reads them back by name.
package stat

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps dotted counter names (e.g. "eth0.arp.requests_rx") to
// 32-bit cells. The zero value is ready for use. Cells returned by
// [Registry.Uint32] remain valid for the lifetime of the registry and must
// be mutated with sync/atomic operations.
type Registry struct {
	mu  sync.Mutex
	u32 map[string]*uint32
}

// Uint32 returns the cell registered under name, creating it at zero if it
// does not exist yet. Calling Uint32 twice with the same name returns the
// same cell.
func (r *Registry) Uint32(name string) *uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.u32 == nil {
		r.u32 = make(map[string]*uint32)
	}
	c, ok := r.u32[name]
	if !ok {
		c = new(uint32)
		r.u32[name] = c
	}
	return c
}

// Snapshot returns the current value of every registered counter.
func (r *Registry) Snapshot() map[string]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint32, len(r.u32))
	for name, c := range r.u32 {
		out[name] = atomic.LoadUint32(c)
	}
	return out
}

// Names returns the registered counter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.u32))
	for name := range r.u32 {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
