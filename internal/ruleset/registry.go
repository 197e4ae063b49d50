package ruleset

import "sync/atomic"

// Registry holds the active table snapshot. Readers take one snapshot per
// call; a new version replaces the pointer and never edits a live table.
type Registry struct {
	current atomic.Pointer[Table]
}

// NewRegistry creates a registry serving t.
func NewRegistry(t *Table) *Registry {
	r := &Registry{}
	r.current.Store(t)
	return r
}

// Current returns the active snapshot.
func (r *Registry) Current() *Table {
	return r.current.Load()
}

// Swap activates t and returns the previous snapshot.
func (r *Registry) Swap(t *Table) *Table {
	return r.current.Swap(t)
}
