package bounded

import (
	"unicode/utf8"

	"github.com/wippyai/wasm-runtime/errors"
)

// String is a fixed-capacity UTF-8 byte sequence. Invalid UTF-8 is a
// construction error, not a runtime one — once built, a String is always
// valid UTF-8.
type String struct {
	bytes []byte
	cap   int
}

// NewString validates s as UTF-8 and wraps it with capacity n. Fails if s
// is not valid UTF-8 or exceeds n bytes.
func NewString(s string, n int) (*String, error) {
	if !utf8.ValidString(s) {
		return nil, errors.InvalidUTF8(errors.PhaseRuntime, nil, []byte(s))
	}
	if len(s) > n {
		return nil, errors.CapacityExceeded(errors.PhaseRuntime, nil, n)
	}
	buf := make([]byte, len(s), n)
	copy(buf, s)
	return &String{bytes: buf, cap: n}, nil
}

// Len returns the current byte length.
func (s *String) Len() int { return len(s.bytes) }

// Cap returns the fixed byte capacity.
func (s *String) Cap() int { return s.cap }

// String returns the Go string value.
func (s *String) String() string { return string(s.bytes) }

// Append validates that appending suffix keeps the value valid UTF-8 and
// within capacity, failing with CapacityExceeded otherwise.
func (s *String) Append(suffix string) error {
	if !utf8.ValidString(suffix) {
		return errors.InvalidUTF8(errors.PhaseRuntime, nil, []byte(suffix))
	}
	if len(s.bytes)+len(suffix) > s.cap {
		return errors.CapacityExceeded(errors.PhaseRuntime, nil, s.cap)
	}
	s.bytes = append(s.bytes, suffix...)
	return nil
}

// Equal reports structural equality ("equality is element-wise").
func (s *String) Equal(other *String) bool {
	return string(s.bytes) == string(other.bytes)
}
