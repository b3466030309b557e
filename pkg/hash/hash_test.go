package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := New([]byte("short"))
	require.Error(t, err)
}

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	raw := make([]byte, Size)
	for i := range raw {
		raw[i] = byte(i)
	}
	h, err := New(raw)
	require.NoError(t, err)

	parsed, err := FromHex(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestFromHexRejectsBadAlphabet(t *testing.T) {
	t.Parallel()

	_, err := FromHex(strings.Repeat("zz", 20))
	require.Error(t, err)
}

func TestFromHexRejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := FromHex("abcd")
	require.Error(t, err)
}

func TestComputeIsDeterministic(t *testing.T) {
	t.Parallel()

	a := Compute([]byte("hello world"))
	b := Compute([]byte("hello world"))
	assert.Equal(t, a, b)

	c := Compute([]byte("hello world!"))
	assert.NotEqual(t, a, c)
}

func TestSortOrdersAscending(t *testing.T) {
	t.Parallel()

	a := Compute([]byte("a"))
	b := Compute([]byte("b"))
	c := Compute([]byte("c"))
	hs := []Hash{c, a, b}
	Sort(hs)

	require.Len(t, hs, 3)
	assert.True(t, hs[0].Compare(hs[1]) <= 0)
	assert.True(t, hs[1].Compare(hs[2]) <= 0)
}
