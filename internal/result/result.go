package result

import (
	"context"
	"errors"
	"fmt"
)

// ErrPanic is wrapped by the error of a Result whose operation panicked.
var ErrPanic = errors.New("operation panicked")

// Op is an operation that produces a value or an error.
type Op[T any] func(ctx context.Context) (T, error)

// Result is the outcome of an Op.
// Exactly one of Value and Err is meaningful: when Err is non-nil, Value is
// always the zero value of T.
type Result[T any] struct {
	// Value is the operation's value. It is the zero value when Err is set.
	Value T

	// Err is the operation's failure, or nil on success.
	Err error
}

// Ok returns a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail returns a failed Result. A nil err is replaced by a generic error so
// that a failed Result never has both slots empty.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("operation failed without an error")
	}
	return Result[T]{Err: err}
}

// Unpack returns the Result as a conventional Go (value, error) pair.
func (r Result[T]) Unpack() (T, error) {
	return r.Value, r.Err
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Handle runs op and converts its outcome into a Result.
// Handle never panics: a panic inside op is recovered and reported as an
// error wrapping ErrPanic. A value returned together with a non-nil error is
// discarded.
func Handle[T any](ctx context.Context, op Op[T]) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail[T](fmt.Errorf("%w: %v", ErrPanic, p))
		}
	}()

	v, err := op(ctx)
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// Go starts op on a new goroutine and returns a channel that receives
// exactly one Result. The channel is buffered, so the goroutine never blocks
// if the caller stops listening.
func Go[T any](ctx context.Context, op Op[T]) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		ch <- Handle(ctx, op)
	}()
	return ch
}

// Wait receives the Result from a channel returned by Go.
// If ctx is done first, the returned Result carries ctx.Err().
func Wait[T any](ctx context.Context, ch <-chan Result[T]) Result[T] {
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return Fail[T](ctx.Err())
	}
}
