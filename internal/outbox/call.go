package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opencode-ai/botkit/internal/telegram"
)

// ExecutionError wraps a failure raised by a result-producing action.
type ExecutionError struct {
	ActionID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("queued action %s failed: %v", e.ActionID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is makes every ExecutionError match ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

type result[T any] struct {
	value T
	err   error
}

// Call enqueues fn and blocks until the worker has run it or ctx is done.
// A failure of fn is returned to the caller as *ExecutionError. Only a rate
// limit reaches the worker, which then takes the long cooldown. Cancelling
// ctx stops the wait, not fn.
func Call[T any](ctx context.Context, q *Queue, fn func(ctx context.Context, api telegram.API) (T, error)) (T, error) {
	var zero T

	// Buffered so the worker never blocks on a caller that gave up.
	done := make(chan result[T], 1)
	id := uuid.NewString()

	it := &item{
		id: id,
		action: func(ctx context.Context, api telegram.API) error {
			var (
				value T
				err   error
			)
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errActionPanicked, r)
					}
				}()
				value, err = fn(ctx, api)
			}()
			done <- result[T]{value: value, err: err}
			if errors.Is(err, ErrRateLimited) {
				return err
			}
			return nil
		},
		abandon: func(err error) {
			done <- result[T]{err: err}
		},
	}
	q.push(it)

	select {
	case res := <-done:
		if res.err == ErrQueueStopped {
			return zero, res.err
		}
		if res.err != nil {
			return zero, &ExecutionError{ActionID: id, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
