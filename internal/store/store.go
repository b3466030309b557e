// Package store defines the asynchronous, content-addressed backing store
// abstraction (spec.md §4.4): the interface itself, an always-empty
// realization, and a deterministic fake used by tests.
package store

import (
	"context"

	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

// Origin distinguishes where a value came from.
type Origin int

const (
	OriginMemory Origin = iota
	OriginLocalCache
	OriginRemoteFetch
)

// Future is a single-value, single-error asynchronous result. It is backed
// by a buffered channel so Get never blocks a producer that has already
// completed it, and may be waited on from any goroutine.
type Future[T any] struct {
	ch chan result[T]
}

type result[T any] struct {
	value T
	err   error
}

// NewFuture returns a Future and the completion function that resolves it.
// Complete must be called exactly once.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{ch: make(chan result[T], 1)}
	return f, func(v T, err error) {
		f.ch <- result[T]{value: v, err: err}
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

// TreeResult pairs a fetched Tree with where it came from.
type TreeResult struct {
	Tree   model.Tree
	Origin Origin
}

// BlobResult pairs a fetched Blob with where it came from.
type BlobResult struct {
	Blob   model.Blob
	Origin Origin
}

// BackingStore is the asynchronous, content-addressed fetcher every
// realization (empty, fake, and — out of scope here — a real
// source-control-backed one) implements, per spec.md §4.4.
type BackingStore interface {
	ParseRootId(s string) (hash.RootId, error)
	RenderRootId(root hash.RootId) string

	GetRootTree(ctx context.Context, root hash.RootId) *Future[model.Tree]
	GetTree(ctx context.Context, id hash.Hash) *Future[TreeResult]
	GetBlob(ctx context.Context, id hash.Hash) *Future[BlobResult]
}
