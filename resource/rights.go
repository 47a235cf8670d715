package resource

// Right is one capability a handle may be granted over its resource.
type Right uint8

const (
	RightRead Right = 1 << iota
	RightWrite
	RightDrop
	RightShare
	RightBorrow
)

// Rights is a set of Right flags.
type Rights uint8

// Has reports whether r is included in the set.
func (s Rights) Has(r Right) bool { return Rights(r)&s != 0 }

// With returns s with r added.
func (s Rights) With(r Right) Rights { return s | Rights(r) }

// AllRights grants every capability; used by resource constructors that
// own their resource outright.
const AllRights Rights = Rights(RightRead | RightWrite | RightDrop | RightShare | RightBorrow)

// ReadOnlyRights grants read and share only, the typical shape of a
// borrowed or shared-to-a-peer handle.
const ReadOnlyRights Rights = Rights(RightRead | RightShare)

// Ownership distinguishes an owning handle from a borrowed one.
type Ownership uint8

const (
	Owned Ownership = iota
	Borrowed
)

// Representation is the full per-handle record: identity, type, owning
// instance, granted rights, ownership flag, and a reference count shared
// across every handle pointing at the same underlying resource.
type Representation struct {
	Handle    Handle
	TypeID    TypeID
	Owner     ComponentInstanceID
	Rights    Rights
	Ownership Ownership
	// refcount is a pointer so that Share creates a second Representation
	// aliasing the same counter: shared handles are separate identifiers
	// pointing at the same underlying resource, with refcount incremented
	// on every share.
	refcount *uint32
}
