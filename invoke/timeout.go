package invoke

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout returns a middleware that races proceed against d. If the
// deadline elapses first it returns an Error with KindMiddlewareControl and
// stops waiting; it does not cancel the still-running downstream work, so
// downstream side effects may complete after the caller has moved on. The
// Context's state is safe under that overlap.
//
// Cancellation of the surrounding context also stops the wait.
func WithTimeout(d time.Duration) Middleware {
	return func(ctx context.Context, ictx *Context, proceed func() error) error {
		done := make(chan error, 1)
		go func() {
			done <- proceed()
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case err := <-done:
			return err
		case <-timer.C:
			return &Error{
				Kind:     KindMiddlewareControl,
				Message:  fmt.Sprintf("tool %q timed out after %s", ictx.ToolName, d),
				Position: PositionUnknown,
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
