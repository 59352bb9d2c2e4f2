//go:build !crate_debug

package pd

// assertf is a no-op in release builds; see debug.go.
func assertf(cond bool, format string, args ...any) {}
