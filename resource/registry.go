package resource

import "sync/atomic"

// TypeID is a generative resource-type identity. Two structurally
// identical `resource` declarations in two different component instances
// produce distinct TypeIDs — equality is reflexive only within the
// issuance that minted the value, never structural.
type TypeID uint64

// ComponentInstanceID names the component instance that declared or owns
// a resource type / handle.
type ComponentInstanceID uint32

// Registry issues fresh TypeIDs for every resource-type declaration
// encountered during component instantiation, and records which component
// instance declared each one.
type Registry struct {
	counter atomic.Uint64
	owners  map[TypeID]ComponentInstanceID
}

// NewRegistry creates an empty generative type registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[TypeID]ComponentInstanceID)}
}

// Declare mints a fresh TypeID for a `resource` declaration in owner,
// unforgeable and distinct from every other Declare call on this
// registry, even for syntactically identical declarations in other
// instances.
func (r *Registry) Declare(owner ComponentInstanceID) TypeID {
	id := TypeID(r.counter.Add(1))
	r.owners[id] = owner
	return id
}

// Owner returns the component instance that declared typeID.
func (r *Registry) Owner(typeID TypeID) (ComponentInstanceID, bool) {
	owner, ok := r.owners[typeID]
	return owner, ok
}
