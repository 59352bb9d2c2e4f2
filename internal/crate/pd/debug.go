//go:build crate_debug

package pd

import "fmt"

// assertf panics with a formatted message when built with the crate_debug
// build tag. Release builds (the default) never compile this check in —
// precondition violations such as an out-of-range quotient are the
// caller's contract to uphold, not something the hot path pays to verify.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
