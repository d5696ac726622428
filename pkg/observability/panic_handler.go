package observability

import (
	"context"
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it at error level together
// with the stack trace. It must be deferred directly:
//
//	go func() {
//	    defer observability.RecoverPanic(ctx, tel, "notification worker")
//	    ...
//	}()
//
// The panic is not re-raised.
func RecoverPanic(ctx context.Context, tel *Telemetry, where string) {
	if r := recover(); r != nil {
		logPanic(ctx, tel, where, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by callback, which only
// runs when a panic was recovered. Use it to write an error response or
// release resources.
func RecoverPanicWithCallback(ctx context.Context, tel *Telemetry, where string, callback func(recovered interface{})) {
	if r := recover(); r != nil {
		logPanic(ctx, tel, where, r)
		if callback != nil {
			callback(r)
		}
	}
}

// MustRecover converts a recovered value into an error. Nil stays nil.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}

func logPanic(ctx context.Context, tel *Telemetry, where string, r interface{}) {
	tel.Error(ctx, "PANIC recovered", MustRecover(r), Fields{
		"context": where,
		"stack":   string(debug.Stack()),
	})
}
