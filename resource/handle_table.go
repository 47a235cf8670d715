package resource

import "sync"

// HandleTable realizes the capability-checked handle operations
// (create/get/perform/share/drop) on top of the existing Table storage
// layer: Table owns the underlying values and refcounted lifecycle via
// Insert/Remove, HandleTable adds the Representation metadata (type-id,
// owner, rights, ownership, refcount) and routes every operation through
// an AccessChecker first.
type HandleTable struct {
	mu      sync.Mutex
	table   *UnifiedTable
	checker *AccessChecker
	reps    map[Handle]*Representation
}

// NewHandleTable creates a HandleTable backed by the given UnifiedTable and
// AccessChecker. A concrete *UnifiedTable (rather than the Table
// interface) is required because alias-slot removal during a non-final
// Drop must bypass the Dropper destructor call that Table.Remove always
// performs — only the backend's raw Drop does that, and only UnifiedTable
// exposes its Backend().
func NewHandleTable(table *UnifiedTable, checker *AccessChecker) *HandleTable {
	return &HandleTable{table: table, checker: checker, reps: make(map[Handle]*Representation)}
}

// Create stores value as a new owned resource of typeID belonging to
// owner, with the given rights, and returns its Representation.
func (ht *HandleTable) Create(owner ComponentInstanceID, typeID TypeID, rights Rights, value any) *Representation {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	h := ht.table.Insert(uint32(typeID), value)
	rc := uint32(1)
	rep := &Representation{
		Handle:    h,
		TypeID:    typeID,
		Owner:     owner,
		Rights:    rights,
		Ownership: Owned,
		refcount:  &rc,
	}
	ht.reps[h] = rep
	return rep
}

// Get retrieves the value and Representation for a handle, enforcing the
// read right via the access checker.
func (ht *HandleTable) Get(caller ComponentInstanceID, h Handle) (any, *Representation, error) {
	ht.mu.Lock()
	rep, ok := ht.reps[h]
	ht.mu.Unlock()
	if !ok {
		return nil, nil, handleNotFoundErr(h)
	}
	if err := ht.checker.Check(caller, rep, OpReadFields); err != nil {
		return nil, nil, err
	}
	v, ok := ht.table.GetTyped(h, uint32(rep.TypeID))
	if !ok {
		return nil, nil, handleNotFoundErr(h)
	}
	return v, rep, nil
}

// Perform runs the access-check algorithm for an arbitrary operation
// without itself implementing the operation's effect — callers (the
// canonical ABI, host bindings) apply op's semantics after Perform returns
// nil.
func (ht *HandleTable) Perform(caller ComponentInstanceID, h Handle, op AccessOp) (*Representation, error) {
	ht.mu.Lock()
	rep, ok := ht.reps[h]
	ht.mu.Unlock()
	if !ok {
		return nil, handleNotFoundErr(h)
	}
	if err := ht.checker.Check(caller, rep, op); err != nil {
		return nil, err
	}
	return rep, nil
}

// Share creates a second handle for dst bound to the same underlying
// resource as src, with newRights, bumping the shared refcount. The
// source handle remains valid — share-then-drop on the source is safe.
func (ht *HandleTable) Share(caller ComponentInstanceID, src Handle, dst ComponentInstanceID, newRights Rights) (*Representation, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	srcRep, ok := ht.reps[src]
	if !ok {
		return nil, handleNotFoundErr(src)
	}
	if srcRep.Owner != caller {
		return nil, capabilityDeniedErr("caller does not own the handle being shared")
	}
	if !srcRep.Rights.Has(RightShare) {
		return nil, capabilityDeniedErr("handle lacks share right")
	}

	v, ok := ht.table.Get(src)
	if !ok {
		return nil, handleNotFoundErr(src)
	}
	newHandle := ht.table.Insert(uint32(srcRep.TypeID), v)
	*srcRep.refcount++

	dstRep := &Representation{
		Handle:    newHandle,
		TypeID:    srcRep.TypeID,
		Owner:     dst,
		Rights:    newRights,
		Ownership: Borrowed,
		refcount:  srcRep.refcount,
	}
	ht.reps[newHandle] = dstRep
	return dstRep, nil
}

// Drop decrements the handle's shared refcount; at zero, the underlying
// resource's storage entry is actually removed. Drop is idempotent:
// dropping an already-dropped handle returns HandleNotFound with no state
// change.
func (ht *HandleTable) Drop(caller ComponentInstanceID, h Handle) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	rep, ok := ht.reps[h]
	if !ok {
		return handleNotFoundErr(h)
	}
	if err := ht.checker.Check(caller, rep, OpDrop); err != nil {
		return err
	}

	delete(ht.reps, h)
	*rep.refcount--
	if *rep.refcount == 0 {
		ht.table.Remove(h)
		return nil
	}
	// Recursive destruction during refcount decrement is forbidden: this
	// handle's own slot is released, but the underlying value stays alive
	// under whichever handle still aliases it.
	ht.removeAliasSlotOnly(h)
	return nil
}

// removeAliasSlotOnly drops this handle's own table entry without running
// the resource's destructor, since other Representations still alias the
// same logical resource through their own handle numbers. Goes straight to
// the backend so the Dropper callback UnifiedTable.Remove would otherwise
// invoke does not fire early.
func (ht *HandleTable) removeAliasSlotOnly(h Handle) {
	ht.table.Backend().Drop(h)
}

// Transfer moves ownership of a handle from caller to newOwner without
// minting a second identifier, the shape a canonical-ABI own<T> lift
// needs: handle lifts/lowers rewrite the handle identifier through the
// capability layer. The source instance loses its claim: caller must hold
// RightDrop, the right that gates giving up a resource.
func (ht *HandleTable) Transfer(caller ComponentInstanceID, h Handle, newOwner ComponentInstanceID) (*Representation, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	rep, ok := ht.reps[h]
	if !ok {
		return nil, handleNotFoundErr(h)
	}
	if rep.Owner != caller {
		return nil, capabilityDeniedErr("caller does not own the handle being transferred")
	}
	if !rep.Rights.Has(RightDrop) {
		return nil, capabilityDeniedErr("handle lacks drop right required to transfer ownership")
	}
	rep.Owner = newOwner
	return rep, nil
}

// Len reports the number of live handles (for diagnostics/tests).
func (ht *HandleTable) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.reps)
}
