package dispatch

import "context"

// Future is the dispatcher boundary's own async handle: a single value or
// error, backed by a buffered channel so completing it never blocks the
// producer, and usable from any goroutine. Distinct from internal/store's
// Future because this one is what a kernel bridge holds — it must never
// need to know about object-store origins or tree/blob result types.
type Future[T any] struct {
	ch chan futureResult[T]
}

type futureResult[T any] struct {
	value T
	err   error
}

// NewFuture returns a Future and the completion function that resolves it.
// Complete must be called exactly once.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{ch: make(chan futureResult[T], 1)}
	return f, func(v T, err error) {
		f.ch <- futureResult[T]{value: v, err: err}
	}
}

// Ready returns a Future that is already complete with v, nil.
func Ready[T any](v T) *Future[T] {
	f, complete := NewFuture[T]()
	complete(v, nil)
	return f
}

// Failed returns a Future that is already complete with the given error.
func Failed[T any](err error) *Future[T] {
	f, complete := NewFuture[T]()
	var zero T
	complete(zero, err)
	return f
}

// Get blocks until the future completes, or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case r := <-f.ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WhenAll waits for every future in fs to complete and collects their
// values in order. If any failed, the first error encountered (in fs
// order) is returned — but only after every future has been waited on, so
// a caller can never observe WhenAll returning while a sibling future is
// still in flight (the same "wait for all" discipline the glob evaluator
// and object store prefetch use).
func WhenAll[T any](ctx context.Context, fs []*Future[T]) ([]T, error) {
	values := make([]T, len(fs))
	var firstErr error
	for i, f := range fs {
		v, err := f.Get(ctx)
		values[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return values, nil
}
