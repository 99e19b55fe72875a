package agents

import (
	"fmt"
	"runtime/debug"
)

// panicError carries a recovered panic value.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// safeExecute runs fn, converting a panic into an error so a misbehaving
// reasoning service cannot take the run down with it.
func safeExecute[T any](logger Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("panic_recovered",
					"operation", operation,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
			err = &panicError{value: r}
		}
	}()
	return fn()
}
