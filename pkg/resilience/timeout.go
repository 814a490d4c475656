package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// TimeoutError reports which operation ran past its limit. It matches
// ErrTimeout under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v after %v", e.Op, apperrors.ErrTimeout, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return apperrors.ErrTimeout }

// WithTimeout bounds fn by timeout. When the limit passes fn is abandoned,
// not stopped; it sees the cancellation through its context. If the parent
// ends first, its cause is returned instead of a TimeoutError.
func WithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeoutCause(ctx, timeout, &TimeoutError{Op: op, Limit: timeout})
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()
	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		return context.Cause(bounded)
	}
}
