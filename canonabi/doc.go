// Package canonabi implements the handle-aware half of the canonical ABI
// contract: translating own<T>/borrow<T> component values
// between linear memory and the runtime's resource handle tables during a
// cross-component call.
//
// Non-handle value kinds (records, lists, variants, strings, …) already
// have a complete canonical-ABI implementation in the transcoder package;
// this package only adds the missing piece: handle lifts/lowers consult
// the handle table of the calling instance and the callee instance and
// rewrite the handle identifier through the capability layer, by
// composing transcoder's raw encode/decode with resource.HandleTable's
// capability-checked create/share/drop operations.
package canonabi
