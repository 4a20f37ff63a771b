// Package interrupt holds the single process-wide flag that every
// blocking container-driver call samples, mirroring the original's
// signal-handler-sets-flag-and-returns design (spec.md §5): the
// handler itself never kills a child directly, so the flag is the only
// channel through which a signal reaches in-flight subprocess calls.
//
// It is its own package, rather than living on internal/orchestrator as
// named in the expanded design notes, because internal/container (which
// must sample it) is itself a dependency of internal/orchestrator;
// putting it there would create an import cycle. See DESIGN.md.
package interrupt

import "sync/atomic"

var flag atomic.Bool

// Set flips the global interrupt flag. Safe to call from a signal handler.
func Set() {
	flag.Store(true)
}

// IsSet reports whether the interrupt flag has been set.
func IsSet() bool {
	return flag.Load()
}

// Reset clears the flag.
func Reset() {
	flag.Store(false)
}
