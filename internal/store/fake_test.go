package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

func TestFakeStoreMissingBlobIsSynchronousNotFound(t *testing.T) {
	// Scenario S7: a miss on a fake store resolves synchronously with
	// CodeNotFound, and the access counter still advances.
	t.Parallel()

	s := NewFakeBackingStore()
	missing := fakeHash(t, "missing-blob")

	f := s.GetBlob(context.Background(), missing)
	_, err := f.Get(context.Background())
	require.Error(t, err)
	var coreErr *coreerrors.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coreerrors.CodeNotFound, coreErr.Code)

	assert.Equal(t, uint64(1), s.GetAccessCount(missing))
}

func TestFakeStoreAccessCounterMonotonic(t *testing.T) {
	// Testable property 8: repeated lookups of the same id only increase
	// the access counter, whether they hit or miss.
	t.Parallel()

	s := NewFakeBackingStore()
	id, err := s.PutBlob([]byte("hello"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.GetBlob(ctx, id).Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), s.GetAccessCount(id))
	}
}

func TestFakeStorePutBlobRejectsDuplicate(t *testing.T) {
	t.Parallel()

	s := NewFakeBackingStore()
	_, err := s.PutBlob([]byte("same contents"))
	require.NoError(t, err)

	_, err = s.PutBlob([]byte("same contents"))
	require.Error(t, err)
	var coreErr *coreerrors.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coreerrors.CodeAlreadyExists, coreErr.Code)
}

func TestFakeStorePendingTreeResolvesOnTrigger(t *testing.T) {
	t.Parallel()

	s := NewFakeBackingStore()
	id := fakeHash(t, "a-tree")
	entries := []model.TreeEntry{{Name: "file.txt", Hash: fakeHash(t, "file.txt"), Kind: model.KindRegular}}

	_, inserted := s.MaybePutTree(id, entries, false)
	require.True(t, inserted)

	ctx := context.Background()
	f := s.GetTree(ctx, id)

	done := make(chan struct{})
	var gotErr error
	var gotEntries []model.TreeEntry
	go func() {
		defer close(done)
		result, err := f.Get(ctx)
		gotErr = err
		gotEntries = result.Tree.Entries
	}()

	s.TriggerTree(id, entries)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("future never resolved")
	}

	require.NoError(t, gotErr)
	assert.Equal(t, entries, gotEntries)
}

func TestFakeStoreDiscardOutstandingResolvesBrokenPromise(t *testing.T) {
	// Scenario S8: discarding outstanding requests completes every
	// pending future with CodeBrokenPromise, never left hanging.
	t.Parallel()

	s := NewFakeBackingStore()
	id := fakeHash(t, "pending-blob")
	_, inserted := s.MaybePutBlob(id, nil, false)
	require.True(t, inserted)

	ctx := context.Background()
	f := s.GetBlob(ctx, id)

	done := make(chan error, 1)
	go func() {
		_, err := f.Get(ctx)
		done <- err
	}()

	s.DiscardOutstandingRequests()

	select {
	case err := <-done:
		require.Error(t, err)
		var coreErr *coreerrors.CoreError
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, coreerrors.CodeBrokenPromise, coreErr.Code)
	case <-time.After(time.Second):
		t.Fatal("pending future was never resolved by discard")
	}
}

func TestFakeStoreGetRootTreeFollowsCommitToTree(t *testing.T) {
	t.Parallel()

	s := NewFakeBackingStore()
	entries := []model.TreeEntry{{Name: "README", Hash: fakeHash(t, "README"), Kind: model.KindRegular}}
	treeHash, err := s.PutTreeAuto(entries)
	require.NoError(t, err)

	root, err := s.ParseRootId("deadbeef")
	require.NoError(t, err)
	require.NoError(t, s.PutCommit(root, treeHash))

	ctx := context.Background()
	tree, err := s.GetRootTree(ctx, root).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, tree.Entries)
	assert.Equal(t, uint64(1), s.GetCommitAccessCount(root))
}

func fakeHash(t *testing.T, seed string) hash.Hash {
	t.Helper()
	return hash.Compute([]byte(seed))
}
