// Package model defines the content-addressed tree/blob data model shared
// by the backing store, the object store, and the glob engine.
package model

import (
	"sort"
	"strings"

	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
)

// EntryKind is the kind of object a TreeEntry points at.
type EntryKind uint8

const (
	KindRegular EntryKind = iota
	KindExecutable
	KindSymlink
	KindTree
)

// String renders the kind for logs and debug dumps.
func (k EntryKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindExecutable:
		return "executable"
	case KindSymlink:
		return "symlink"
	case KindTree:
		return "tree"
	default:
		return "unknown"
	}
}

// mode returns the fixed one-byte code (0 to 3, by kind) appended after each
// entry's hash when hashing a tree.
func (k EntryKind) mode() byte {
	switch k {
	case KindRegular:
		return 0
	case KindExecutable:
		return 1
	case KindSymlink:
		return 2
	case KindTree:
		return 3
	default:
		return 0xFF
	}
}

// TreeEntry is a single named child of a Tree: a name, the child's content
// Hash, and its kind.
type TreeEntry struct {
	Name string
	Hash hash.Hash
	Kind EntryKind
}

// ValidateName checks that name is a single, non-empty path component.
func ValidateName(name string) error {
	if name == "" {
		return errors.New(errors.CodeBadPattern, "path component must not be empty").
			WithComponent("model").WithOperation("ValidateName")
	}
	if strings.ContainsRune(name, '/') {
		return errors.New(errors.CodeBadPattern, "path component must not contain '/'").
			WithComponent("model").WithOperation("ValidateName").WithContext("name", name)
	}
	if strings.ContainsRune(name, 0) {
		return errors.New(errors.CodeBadPattern, "path component must not contain NUL").
			WithComponent("model").WithOperation("ValidateName")
	}
	return nil
}

// Tree is a sorted, name-unique list of TreeEntry, content-addressed by Hash.
type Tree struct {
	Hash    hash.Hash
	Entries []TreeEntry
}

// Blob is the immutable byte content of a file, content-addressed by Hash.
type Blob struct {
	Hash hash.Hash
	Data []byte
}

// ComputeTreeHash sorts entries by name and returns the SHA-1 over the
// concatenation of (name, child hash, mode) for each entry in sorted order,
// per spec.md §4.4. The input slice is not mutated; a sorted copy is hashed.
func ComputeTreeHash(entries []TreeEntry) hash.Hash {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf []byte
	for _, e := range sorted {
		buf = append(buf, []byte(e.Name)...)
		buf = append(buf, e.Hash.Bytes()...)
		buf = append(buf, e.Kind.mode())
	}
	return hash.Compute(buf)
}

// NewTree validates, sorts, and hashes entries into a Tree. It fails with
// CodeBadPattern if any name is invalid and with CodeAlreadyExists if names
// collide.
func NewTree(entries []TreeEntry) (Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	seen := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		if err := ValidateName(e.Name); err != nil {
			return Tree{}, err
		}
		if _, dup := seen[e.Name]; dup {
			return Tree{}, errors.New(errors.CodeAlreadyExists, "duplicate entry name in tree").
				WithComponent("model").WithOperation("NewTree").WithContext("name", e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	return Tree{
		Hash:    ComputeTreeHash(sorted),
		Entries: sorted,
	}, nil
}

// Lookup returns the entry named name, if present.
func (t Tree) Lookup(name string) (TreeEntry, bool) {
	// Entries are sorted; entry counts for a directory are small enough that
	// a linear scan is simpler and just as fast as a binary search here.
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}
