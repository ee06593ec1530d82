package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack. Call it with defer.
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// PanicError converts a recovered value into an error, or nil when r is nil.
//
//	defer func() {
//	    if perr := observability.PanicError(recover()); perr != nil {
//	        err = perr
//	    }
//	}()
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func logPanic(logger *Logger, where string, r interface{}) {
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(r),
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("PANIC recovered")
}
