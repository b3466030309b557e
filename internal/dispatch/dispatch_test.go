package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsmount/core/internal/objectstore"
	"github.com/vcsmount/core/internal/overlay"
	"github.com/vcsmount/core/internal/store"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

func newFixture(t *testing.T) (*Mount, hash.Hash, *store.FakeBackingStore) {
	t.Helper()

	backend := store.NewFakeBackingStore()
	fileHash, err := backend.PutBlob([]byte("contents"))
	require.NoError(t, err)

	entries := []model.TreeEntry{{Name: "a.txt", Hash: fileHash, Kind: model.KindRegular}}
	dir := overlay.NewDirContents(model.Tree{Hash: model.ComputeTreeHash(entries), Entries: entries})

	root, err := hash.NewRootId("deadbeef")
	require.NoError(t, err)

	objects := objectstore.New(backend)
	return NewMount(root, dir, objects), fileHash, backend
}

func TestOpendirReturnsFuseShapedEntries(t *testing.T) {
	t.Parallel()

	m, _, _ := newFixture(t)
	entries, err := m.Opendir(context.Background(), "").Get(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.NotZero(t, entries[0].Mode)
}

func TestLookupFoundAndMissing(t *testing.T) {
	t.Parallel()

	m, fileHash, _ := newFixture(t)

	found, err := m.Lookup(context.Background(), "a.txt").Get(context.Background())
	require.NoError(t, err)
	assert.True(t, found.Found)
	assert.True(t, found.Hash.Equal(fileHash))
	assert.Equal(t, int64(len("contents")), found.Size)

	missing, err := m.Lookup(context.Background(), "missing").Get(context.Background())
	require.NoError(t, err)
	assert.False(t, missing.Found)
}

func TestAccessReflectsPresence(t *testing.T) {
	t.Parallel()

	m, _, _ := newFixture(t)
	ok, err := m.Access(context.Background(), "a.txt").Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Access(context.Background(), "missing").Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadReturnsBlobDataOrNotFound(t *testing.T) {
	t.Parallel()

	m, _, _ := newFixture(t)
	data, err := m.Read(context.Background(), "a.txt").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("contents"), data)

	_, err = m.Read(context.Background(), "missing").Get(context.Background())
	assert.Error(t, err)
}

func TestFileCreatedModifiedDeletedRenamed(t *testing.T) {
	t.Parallel()

	m, _, backend := newFixture(t)
	newHash, err := backend.PutBlob([]byte("new"))
	require.NoError(t, err)

	_, err = m.FileCreated(context.Background(), "b.txt", newHash).Get(context.Background())
	require.NoError(t, err)
	ok, _ := m.Access(context.Background(), "b.txt").Get(context.Background())
	assert.True(t, ok)

	updated, err := backend.PutBlob([]byte("updated"))
	require.NoError(t, err)
	_, err = m.FileModified(context.Background(), "b.txt", updated).Get(context.Background())
	require.NoError(t, err)
	looked, _ := m.Lookup(context.Background(), "b.txt").Get(context.Background())
	assert.True(t, looked.Hash.Equal(updated))

	_, err = m.FileRenamed(context.Background(), "b.txt", "c.txt").Get(context.Background())
	require.NoError(t, err)
	ok, _ = m.Access(context.Background(), "b.txt").Get(context.Background())
	assert.False(t, ok)
	ok, _ = m.Access(context.Background(), "c.txt").Get(context.Background())
	assert.True(t, ok)

	_, err = m.FileDeleted(context.Background(), "c.txt").Get(context.Background())
	require.NoError(t, err)
	ok, _ = m.Access(context.Background(), "c.txt").Get(context.Background())
	assert.False(t, ok)
}

func TestFileRenamedMissingSourceFails(t *testing.T) {
	t.Parallel()

	m, _, _ := newFixture(t)
	_, err := m.FileRenamed(context.Background(), "missing", "dest").Get(context.Background())
	assert.Error(t, err)
}

func TestDirCreatedAndDeleted(t *testing.T) {
	t.Parallel()

	m, _, _ := newFixture(t)
	_, err := m.DirCreated(context.Background(), "sub").Get(context.Background())
	require.NoError(t, err)

	entry, ok := m.Dir.Lookup("sub")
	require.True(t, ok)
	assert.Equal(t, model.KindTree, entry.Kind)

	_, err = m.DirDeleted(context.Background(), "sub").Get(context.Background())
	require.NoError(t, err)
	_, ok = m.Dir.Lookup("sub")
	assert.False(t, ok)
}

func TestWhenAllCollectsValuesInOrder(t *testing.T) {
	t.Parallel()

	fs := []*Future[int]{Ready(1), Ready(2), Ready(3)}
	values, err := WhenAll(context.Background(), fs)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, values)
}

func TestWhenAllReturnsFirstErrorAfterWaitingOnAll(t *testing.T) {
	t.Parallel()

	boom := assert.AnError
	fs := []*Future[int]{Ready(1), Failed[int](boom), Ready(3)}
	_, err := WhenAll(context.Background(), fs)
	assert.ErrorIs(t, err, boom)
}
