// Package dispatch is the contract between a kernel bridge (FUSE, NFS,
// prjfs — all out of scope here) and the core: every operation is
// asynchronous, returning a Future, and the bridge must not assume
// synchronous completion (spec.md §4.7).
package dispatch

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/vcsmount/core/internal/objectstore"
	"github.com/vcsmount/core/internal/overlay"
	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

func modeOf(k model.EntryKind) uint32 {
	switch k {
	case model.KindTree:
		return syscall.S_IFDIR
	case model.KindSymlink:
		return syscall.S_IFLNK
	case model.KindExecutable:
		return syscall.S_IFREG | 0111
	default:
		return syscall.S_IFREG
	}
}

// LookupResult is the optional (hash, kind, size) record Lookup resolves
// to; Found is false when the path does not exist.
type LookupResult struct {
	Found bool
	Hash  hash.Hash
	Kind  model.EntryKind
	Size  int64
}

// Dispatcher is the boundary surface spec.md §4.7 names: four queries plus
// six change notifications that complete once the overlay has recorded the
// change, never before. Opendir hands back fuse.DirEntry-shaped records
// directly so an (out-of-scope) FUSE bridge has a concrete wire type to
// relay without the core depending on an actual mount.
type Dispatcher interface {
	Opendir(ctx context.Context, path string) *Future[[]fuse.DirEntry]
	Lookup(ctx context.Context, path string) *Future[LookupResult]
	Access(ctx context.Context, path string) *Future[bool]
	Read(ctx context.Context, path string) *Future[[]byte]

	FileCreated(ctx context.Context, path string, id hash.Hash) *Future[struct{}]
	DirCreated(ctx context.Context, path string) *Future[struct{}]
	FileModified(ctx context.Context, path string, id hash.Hash) *Future[struct{}]
	FileRenamed(ctx context.Context, oldPath, newPath string) *Future[struct{}]
	FileDeleted(ctx context.Context, path string) *Future[struct{}]
	DirDeleted(ctx context.Context, path string) *Future[struct{}]
}

// Mount is the reference Dispatcher: a single directory's overlay plus the
// object store backing it. A real checkout would route path to the right
// DirContents across many directories; this dispatches against one.
type Mount struct {
	Root    hash.RootId
	Dir     *overlay.DirContents
	Objects *objectstore.ObjectStore
}

// NewMount wires dir and objects into a Dispatcher for root.
func NewMount(root hash.RootId, dir *overlay.DirContents, objects *objectstore.ObjectStore) *Mount {
	return &Mount{Root: root, Dir: dir, Objects: objects}
}

func (m *Mount) sizeOf(ctx context.Context, e overlay.DirEntry) int64 {
	if e.Kind == model.KindTree {
		return 0
	}
	blob, _, err := m.Objects.GetBlob(ctx, e.Hash)
	if err != nil {
		return 0
	}
	return int64(len(blob.Data))
}

func (m *Mount) Opendir(ctx context.Context, _ string) *Future[[]fuse.DirEntry] {
	var entries []overlay.DirEntry
	m.Dir.WithReadLock(func() {
		entries = m.Dir.EntriesLocked()
	})
	out := make([]fuse.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = fuse.DirEntry{Name: e.Name, Mode: modeOf(e.Kind)}
	}
	return Ready(out)
}

func (m *Mount) Lookup(ctx context.Context, path string) *Future[LookupResult] {
	entry, ok := m.Dir.Lookup(path)
	if !ok {
		return Ready(LookupResult{Found: false})
	}
	return Ready(LookupResult{Found: true, Hash: entry.Hash, Kind: entry.Kind, Size: m.sizeOf(ctx, entry)})
}

func (m *Mount) Access(_ context.Context, path string) *Future[bool] {
	_, ok := m.Dir.Lookup(path)
	return Ready(ok)
}

func (m *Mount) Read(ctx context.Context, path string) *Future[[]byte] {
	entry, ok := m.Dir.Lookup(path)
	if !ok {
		return Failed[[]byte](notFound(path))
	}
	blob, _, err := m.Objects.GetBlob(ctx, entry.Hash)
	if err != nil {
		return Failed[[]byte](err)
	}
	return Ready(blob.Data)
}

func (m *Mount) FileCreated(_ context.Context, path string, id hash.Hash) *Future[struct{}] {
	m.Dir.Put(path, id, model.KindRegular)
	return Ready(struct{}{})
}

func (m *Mount) DirCreated(_ context.Context, path string) *Future[struct{}] {
	m.Dir.Put(path, hash.Zero, model.KindTree)
	return Ready(struct{}{})
}

func (m *Mount) FileModified(_ context.Context, path string, id hash.Hash) *Future[struct{}] {
	m.Dir.Put(path, id, model.KindRegular)
	return Ready(struct{}{})
}

func (m *Mount) FileRenamed(_ context.Context, oldPath, newPath string) *Future[struct{}] {
	entry, ok := m.Dir.Lookup(oldPath)
	if !ok {
		return Failed[struct{}](notFound(oldPath))
	}
	m.Dir.Put(newPath, entry.Hash, entry.Kind)
	m.Dir.Remove(oldPath)
	return Ready(struct{}{})
}

func (m *Mount) FileDeleted(_ context.Context, path string) *Future[struct{}] {
	m.Dir.Remove(path)
	return Ready(struct{}{})
}

func (m *Mount) DirDeleted(_ context.Context, path string) *Future[struct{}] {
	m.Dir.Remove(path)
	return Ready(struct{}{})
}

var _ Dispatcher = (*Mount)(nil)

func notFound(path string) error {
	return errors.New(errors.CodeNotFound, "no such path: "+path).WithComponent("dispatch")
}
