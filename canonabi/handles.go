package canonabi

import (
	"github.com/wippyai/wasm-runtime/resource"
)

// ValueKind distinguishes the two handle-carrying component value types
// the canonical ABI defines: own<T> transfers ownership,
// borrow<T> grants temporary, non-owning access.
type ValueKind uint8

const (
	KindOwn ValueKind = iota
	KindBorrow
)

// HandleTranscoder lifts and lowers own<T>/borrow<T> wire values (raw
// 32-bit handle identifiers read from or written to linear memory by
// transcoder.Decoder/Encoder) through the capability-checked handle table,
// rewriting the identifier between the calling and callee instance's
// handle spaces.
type HandleTranscoder struct {
	table *resource.HandleTable
}

// NewHandleTranscoder wraps a resource.HandleTable for canonical-ABI use.
func NewHandleTranscoder(table *resource.HandleTable) *HandleTranscoder {
	return &HandleTranscoder{table: table}
}

// Lift consults the caller's handle table entry for wire (as read from
// linear memory by transcoder.Decoder) and produces the handle identifier
// valid in the callee's handle space: for KindOwn this transfers
// ownership outright; for KindBorrow it shares a read-only alias that
// remains valid only until returned ("return from borrow") or until the
// call returns.
//
// expectedType, if non-zero, is checked against the handle's generative
// type-id and surfaces a type-mismatch error on divergence, aborting the
// call without mutating the callee.
func (t *HandleTranscoder) Lift(kind ValueKind, caller, callee resource.ComponentInstanceID, wire uint32, expectedType resource.TypeID) (uint32, error) {
	h := resource.Handle(wire)

	_, rep, err := t.table.Get(caller, h)
	if err != nil {
		return 0, err
	}
	if expectedType != 0 && rep.TypeID != expectedType {
		return 0, handleTypeMismatch(expectedType, rep.TypeID)
	}

	switch kind {
	case KindOwn:
		newRep, err := t.table.Transfer(caller, h, callee)
		if err != nil {
			return 0, err
		}
		return uint32(newRep.Handle), nil
	case KindBorrow:
		newRep, err := t.table.Share(caller, h, callee, resource.ReadOnlyRights)
		if err != nil {
			return 0, err
		}
		return uint32(newRep.Handle), nil
	default:
		return 0, handleTypeMismatch(expectedType, rep.TypeID)
	}
}

// Lower is the inverse direction: a callee instance returns a handle
// value (e.g. a constructor's return value, or a borrowed handle being
// returned from borrow) back into the caller's handle space.
func (t *HandleTranscoder) Lower(kind ValueKind, callee, caller resource.ComponentInstanceID, wire uint32) (uint32, error) {
	h := resource.Handle(wire)

	switch kind {
	case KindOwn:
		rep, err := t.table.Transfer(callee, h, caller)
		if err != nil {
			return 0, err
		}
		return uint32(rep.Handle), nil
	case KindBorrow:
		if _, err := t.table.Perform(callee, h, resource.OpReturnFromBorrow); err != nil {
			return 0, err
		}
		rep, err := t.table.Share(callee, h, caller, resource.ReadOnlyRights)
		if err != nil {
			return 0, err
		}
		return uint32(rep.Handle), nil
	default:
		return 0, handleTypeMismatch(0, 0)
	}
}

func handleTypeMismatch(want, got resource.TypeID) error {
	return &typeMismatchError{want: want, got: got}
}

type typeMismatchError struct{ want, got resource.TypeID }

func (e *typeMismatchError) Error() string {
	return "canonical ABI: handle type mismatch"
}
