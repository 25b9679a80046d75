// Package fiterrs defines the error kinds the statistical core raises.
//
// Recoverable conditions (AddingToBuiltTree) are returned to the caller
// as wrapped sentinel errors, checkable with errors.Is. Contract breaches
// (BadParameters, InvariantViolation) indicate a construction-time bug
// that cannot be repaired at emission time, so they panic instead of
// being threaded through every return path. Allocation failure is the
// runtime's to report and needs no sentinel here.
package fiterrs

import (
	"errors"
	"fmt"
)

// ErrAddingToBuiltTree is returned when a PrefixTree is mutated after
// Prefixify has run.
var ErrAddingToBuiltTree = errors.New("fiterrs: adding to a prefixified tree")

// BadParameters panics with a formatted message describing a non-positive
// or otherwise out-of-domain construction parameter.
func BadParameters(format string, args ...any) {
	panic(fmt.Sprintf("fiterrs: bad parameters: "+format, args...))
}

// InvariantViolation panics with a formatted message describing a broken
// runtime invariant (missing address-map entry, burst capacity overflow,
// exhausted input packets mid burst-fill).
func InvariantViolation(format string, args ...any) {
	panic(fmt.Sprintf("fiterrs: invariant violation: "+format, args...))
}
