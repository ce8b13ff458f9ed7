package domain

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// VariableMap is the workflow-scope shared variable store. It is safe for
// concurrent reads and writes from many node bodies at once: each key is
// updated atomically, but there is no cross-key transaction. A node body
// that needs a compound, multi-key update must serialize itself (e.g. by
// storing a single struct value under one key).
type VariableMap struct {
	m *xsync.MapOf[string, any]
}

// NewVariableMap creates an empty VariableMap.
func NewVariableMap() *VariableMap {
	return &VariableMap{m: xsync.NewMapOf[string, any]()}
}

// NewVariableMapFrom seeds a VariableMap from an existing map, e.g. a
// workflow definition's default variables.
func NewVariableMapFrom(seed map[string]any) *VariableMap {
	vm := NewVariableMap()
	for k, v := range seed {
		vm.m.Store(k, v)
	}
	return vm
}

// Get returns the value stored at key, and whether it was present.
func (v *VariableMap) Get(key string) (any, bool) {
	return v.m.Load(key)
}

// Set stores value at key, replacing any prior value.
func (v *VariableMap) Set(key string, value any) {
	v.m.Store(key, value)
}

// Delete removes key, if present.
func (v *VariableMap) Delete(key string) {
	v.m.Delete(key)
}

// Snapshot returns a plain map copy of all entries, safe for external
// serialization or iteration without holding any internal locks.
func (v *VariableMap) Snapshot() map[string]any {
	out := make(map[string]any)
	v.m.Range(func(key string, value any) bool {
		out[key] = value
		return true
	})
	return out
}

// Merge copies every entry of other into v, overwriting on key collision.
func (v *VariableMap) Merge(other map[string]any) {
	for k, val := range other {
		v.m.Store(k, val)
	}
}

// Clone returns an independent VariableMap with the same entries.
func (v *VariableMap) Clone() *VariableMap {
	return NewVariableMapFrom(v.Snapshot())
}
