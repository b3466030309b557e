// Package overlay models the writable directory layer the glob evaluator
// walks alongside backing-store trees: a lockable name -> entry map that
// additionally remembers which entries have been materialized locally
// (spec.md §4.5).
package overlay

import (
	"sync"

	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

// DirEntry is a directory entry as seen by the overlay: a TreeEntry plus
// whether it has been materialized (written out locally) rather than
// existing only as a reference into the backing store.
type DirEntry struct {
	Name         string
	Hash         hash.Hash
	Kind         model.EntryKind
	Materialized bool
}

func fromTreeEntry(e model.TreeEntry) *DirEntry {
	return &DirEntry{Name: e.Name, Hash: e.Hash, Kind: e.Kind}
}

// DirContents is the overlay's per-directory state: a name -> DirEntry map
// guarded by an RWMutex, so readers (glob evaluation) and writers (checkout
// operations materializing an entry) can proceed without serializing on a
// single global lock.
type DirContents struct {
	mu      sync.RWMutex
	entries map[string]*DirEntry
}

// NewDirContents seeds a DirContents from the backing tree's entries, none
// materialized yet.
func NewDirContents(tree model.Tree) *DirContents {
	entries := make(map[string]*DirEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		entries[e.Name] = fromTreeEntry(e)
	}
	return &DirContents{entries: entries}
}

// Lookup returns the entry for name, if present.
func (d *DirContents) Lookup(name string) (DirEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[name]
	if !ok {
		return DirEntry{}, false
	}
	return *e, true
}

// Names returns every entry name currently in the directory, in no
// particular order.
func (d *DirContents) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	return names
}

// Entries returns a snapshot copy of every entry currently in the
// directory.
func (d *DirContents) Entries() []DirEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	return out
}

// WithReadLock holds the shared (reader) lock for the duration of fn. Used
// by the glob evaluator, which must take a single hold across a lookup-or-
// iterate pass so no mutation (including a child load) races the walk
// (spec.md §4.6.2, §5).
func (d *DirContents) WithReadLock(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}

// LookupLocked is Lookup without acquiring the lock itself; the caller must
// already hold it via WithReadLock.
func (d *DirContents) LookupLocked(name string) (DirEntry, bool) {
	e, ok := d.entries[name]
	if !ok {
		return DirEntry{}, false
	}
	return *e, true
}

// EntriesLocked is Entries without acquiring the lock itself; the caller
// must already hold it via WithReadLock.
func (d *DirContents) EntriesLocked() []DirEntry {
	out := make([]DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	return out
}

// MarkMaterialized flips the materialized flag for name, if present.
func (d *DirContents) MarkMaterialized(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[name]
	if !ok {
		return false
	}
	e.Materialized = true
	return true
}

// Put inserts or replaces the entry for name, as an already-materialized
// local entry (a write-through from a checkout operation, not a backing
// tree).
func (d *DirContents) Put(name string, id hash.Hash, kind model.EntryKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[name] = &DirEntry{Name: name, Hash: id, Kind: kind, Materialized: true}
}

// Remove deletes the entry for name, reporting whether it existed.
func (d *DirContents) Remove(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; !ok {
		return false
	}
	delete(d.entries, name)
	return true
}
