// Package async spawns background goroutines with panic containment. A panic
// in a detached goroutine would otherwise take down the whole orchestrator
// process.
package async

import "runtime/debug"

// PanicLogger is the slice of a logger that panic reports need. A nil logger
// drops the report.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go starts fn on its own goroutine. The name tags the panic report so the
// log identifies which background worker died.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover is the deferred half of Go, exported so callers running untrusted
// callbacks on an existing goroutine can reuse the same containment.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		name = "unnamed"
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}
