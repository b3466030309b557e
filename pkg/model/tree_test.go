package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsmount/core/pkg/hash"
)

func entries() []TreeEntry {
	return []TreeEntry{
		{Name: "c", Hash: hash.Compute([]byte("c")), Kind: KindRegular},
		{Name: "a", Hash: hash.Compute([]byte("a")), Kind: KindRegular},
		{Name: "b", Hash: hash.Compute([]byte("b")), Kind: KindTree},
	}
}

// TestTreeHashDeterministic covers testable property 4: permuting the input
// entries never changes the computed tree hash.
func TestTreeHashDeterministic(t *testing.T) {
	t.Parallel()

	base := entries()
	want := ComputeTreeHash(base)

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		permuted := append([]TreeEntry(nil), base...)
		rnd.Shuffle(len(permuted), func(a, b int) { permuted[a], permuted[b] = permuted[b], permuted[a] })
		assert.Equal(t, want, ComputeTreeHash(permuted))
	}
}

func TestNewTreeSortsAndValidates(t *testing.T) {
	t.Parallel()

	tr, err := NewTree(entries())
	require.NoError(t, err)
	require.Len(t, tr.Entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{tr.Entries[0].Name, tr.Entries[1].Name, tr.Entries[2].Name})
}

func TestNewTreeRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	_, err := NewTree([]TreeEntry{
		{Name: "a", Hash: hash.Compute([]byte("1"))},
		{Name: "a", Hash: hash.Compute([]byte("2"))},
	})
	require.Error(t, err)
}

func TestNewTreeRejectsInvalidName(t *testing.T) {
	t.Parallel()

	_, err := NewTree([]TreeEntry{{Name: "a/b", Hash: hash.Compute([]byte("1"))}})
	require.Error(t, err)
}

func TestTreeLookup(t *testing.T) {
	t.Parallel()

	tr, err := NewTree(entries())
	require.NoError(t, err)

	e, ok := tr.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, KindTree, e.Kind)

	_, ok = tr.Lookup("missing")
	assert.False(t, ok)
}
