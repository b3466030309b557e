package glob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPatternBuildsLiteralChain(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("a/b/c", false))

	a, ok := root.Ordinary["a"]
	require.True(t, ok)
	assert.False(t, a.IsLeaf)
	assert.False(t, a.HasSpecials)

	b, ok := a.Ordinary["b"]
	require.True(t, ok)
	assert.False(t, b.IsLeaf)

	c, ok := b.Ordinary["c"]
	require.True(t, ok)
	assert.True(t, c.IsLeaf)
}

func TestAddPatternDedupesSharedPrefix(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("a/b", false))
	require.NoError(t, root.AddPattern("a/c", false))

	assert.Len(t, root.Ordinary, 1)
	a := root.Ordinary["a"]
	assert.Len(t, a.Ordinary, 2)
	assert.True(t, a.Ordinary["b"].IsLeaf)
	assert.True(t, a.Ordinary["c"].IsLeaf)
}

func TestAddPatternReusingNodeCanPromoteToLeaf(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("a/b/c", false))
	require.NoError(t, root.AddPattern("a/b", false))

	b := root.Ordinary["a"].Ordinary["b"]
	assert.True(t, b.IsLeaf, "a/b must become a leaf even though it already had a child")
	assert.True(t, b.Ordinary["c"].IsLeaf)
}

func TestAddPatternRecursiveMarker(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("a/**/c", false))

	a := root.Ordinary["a"]
	require.Len(t, a.Recursive, 1)
	rec := a.Recursive["**"]
	assert.False(t, rec.IsLeaf)
	require.Contains(t, rec.Ordinary, "c")
	assert.True(t, rec.Ordinary["c"].IsLeaf)
}

func TestAddPatternBareDoubleStarRewrittenWithoutDotfiles(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("**", false))

	rec, ok := root.Recursive["**"]
	require.True(t, ok)
	assert.False(t, rec.IsLeaf, "** alone rewrites to **/* so the bare node is not itself a leaf")
	star, ok := rec.Ordinary["*"]
	require.True(t, ok)
	assert.True(t, star.IsLeaf)
}

func TestAddPatternBareDoubleStarWithDotfilesStaysLeaf(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("**", true))

	rec, ok := root.Recursive["**"]
	require.True(t, ok)
	assert.True(t, rec.IsLeaf)
	assert.True(t, rec.AlwaysMatch)
}

func TestAddPatternRejectsEmptyComponent(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	err := root.AddPattern("a//b", false)
	require.Error(t, err)
}

func TestAddPatternRejectsBadSpecialsSyntax(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	err := root.AddPattern("a/[abc", false) // unterminated character class
	require.Error(t, err)
}

func TestMatchesLiteralExact(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("README", false))
	node := root.Ordinary["README"]
	assert.True(t, node.Matches("README"))
	assert.False(t, node.Matches("other"))
}

func TestMatchesSpecialsExcludesDotfilesByDefault(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("*.go", false))
	node := root.Ordinary["*.go"]
	assert.True(t, node.Matches("main.go"))
	assert.False(t, node.Matches(".hidden.go"))
}

func TestMatchesStarAlwaysMatchWithDotfilesEnabled(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("*", true))
	node := root.Ordinary["*"]
	assert.True(t, node.AlwaysMatch)
	assert.True(t, node.Matches(".hidden"))
	assert.True(t, node.Matches("visible"))
}

func TestDumpProducesYAML(t *testing.T) {
	t.Parallel()

	root := NewRoot()
	require.NoError(t, root.AddPattern("a/b", false))
	out, err := root.Ordinary["a"].Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "pattern: b")
	assert.Contains(t, out, "leaf: true")
}
