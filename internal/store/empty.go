package store

import (
	"context"

	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

// EmptyBackingStore answers every content lookup with CodeNotFound, already
// resolved by the time the caller receives the Future — a store that has
// fetched nothing and never will (spec.md §4.4).
type EmptyBackingStore struct{}

var _ BackingStore = (*EmptyBackingStore)(nil)

func (EmptyBackingStore) ParseRootId(s string) (hash.RootId, error) {
	return hash.NewRootId(s)
}

func (EmptyBackingStore) RenderRootId(root hash.RootId) string {
	return root.String()
}

func (EmptyBackingStore) GetRootTree(_ context.Context, root hash.RootId) *Future[model.Tree] {
	return Failed[model.Tree](notFound("empty-backing-store", "getRootTree").
		WithContext("root", root.String()))
}

func (EmptyBackingStore) GetTree(_ context.Context, id hash.Hash) *Future[TreeResult] {
	return Failed[TreeResult](notFound("empty-backing-store", "getTree").
		WithContext("hash", id.String()))
}

func (EmptyBackingStore) GetBlob(_ context.Context, id hash.Hash) *Future[BlobResult] {
	return Failed[BlobResult](notFound("empty-backing-store", "getBlob").
		WithContext("hash", id.String()))
}

func notFound(component, operation string) *errors.CoreError {
	return errors.New(errors.CodeNotFound, "empty backing store has no content").
		WithComponent(component).WithOperation(operation)
}
