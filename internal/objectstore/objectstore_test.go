package objectstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsmount/core/internal/store"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

func TestGetTreeCachesAfterFirstFetch(t *testing.T) {
	t.Parallel()

	backend := store.NewFakeBackingStore()
	entries := []model.TreeEntry{{Name: "a", Hash: hash.Compute([]byte("a")), Kind: model.KindRegular}}
	id, err := backend.PutTreeAuto(entries)
	require.NoError(t, err)

	os := New(backend)
	ctx := context.Background()

	tree, origin, err := os.GetTree(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.OriginRemoteFetch, origin)
	assert.Equal(t, entries, tree.Entries)
	assert.Equal(t, uint64(1), backend.GetAccessCount(id))

	tree2, origin2, err := os.GetTree(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.OriginMemory, origin2)
	assert.Equal(t, tree, tree2)
	// a cache hit must not touch the backend again
	assert.Equal(t, uint64(1), backend.GetAccessCount(id))
}

func TestGetBlobCoalescesConcurrentFetches(t *testing.T) {
	t.Parallel()

	backend := store.NewFakeBackingStore()
	id, inserted := backend.MaybePutBlob(hash.Compute([]byte("data")), []byte("data"), false)
	require.True(t, inserted)

	os := New(backend)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, _, err := os.GetBlob(ctx, id)
			errs[i] = err
		}()
	}

	backend.TriggerBlob(id, []byte("data"))
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// singleflight coalesces all n callers into exactly one backend fetch.
	assert.Equal(t, uint64(1), backend.GetAccessCount(id))
}

func TestGetRootTreePopulatesTreeCache(t *testing.T) {
	t.Parallel()

	backend := store.NewFakeBackingStore()
	entries := []model.TreeEntry{{Name: "README", Hash: hash.Compute([]byte("README")), Kind: model.KindRegular}}
	treeHash, err := backend.PutTreeAuto(entries)
	require.NoError(t, err)
	root, err := backend.ParseRootId("deadbeef")
	require.NoError(t, err)
	require.NoError(t, backend.PutCommit(root, treeHash))

	os := New(backend)
	ctx := context.Background()

	tree, err := os.GetRootTree(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, entries, tree.Entries)

	// a follow-up GetTree for the same hash must come from memory, not the
	// backend, because GetRootTree already populated the tree cache.
	_, origin, err := os.GetTree(ctx, treeHash)
	require.NoError(t, err)
	assert.Equal(t, store.OriginMemory, origin)
}

func TestPrefetchBlobsWarmsCacheAndReportsFailures(t *testing.T) {
	t.Parallel()

	backend := store.NewFakeBackingStore()
	okID, err := backend.PutBlob([]byte("ok"))
	require.NoError(t, err)
	missingID := hash.Compute([]byte("never stored"))

	os := New(backend)
	ctx := context.Background()

	err = os.PrefetchBlobs(ctx, []hash.Hash{okID, missingID})
	require.Error(t, err)

	// the failing id must not have prevented the successful one from
	// being fetched and cached.
	_, origin, getErr := os.GetBlob(ctx, okID)
	require.NoError(t, getErr)
	assert.Equal(t, store.OriginMemory, origin)
}
