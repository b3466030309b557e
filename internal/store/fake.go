package store

import (
	"context"
	"sync"

	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/model"
)

// storedObject holds a value that may not be ready yet: get() returns an
// already-complete Future if the value has been made ready, or a pending one
// that trigger/triggerError later resolves. Pending completions are queued
// FIFO and, on discardOutstanding, handed back to the caller to be completed
// outside this object's own lock — invoking a dropped completion can run
// arbitrary downstream code, so it must never happen while any lock is held.
type storedObject[T any] struct {
	mu      sync.Mutex
	ready   bool
	value   T
	err     error
	pending []func(T, error)
}

func newReadyObject[T any](value T) *storedObject[T] {
	return &storedObject[T]{ready: true, value: value}
}

func newPendingObject[T any]() *storedObject[T] {
	return &storedObject[T]{}
}

func (s *storedObject[T]) get() *Future[T] {
	s.mu.Lock()
	if s.ready {
		value, err := s.value, s.err
		s.mu.Unlock()
		if err != nil {
			return Failed[T](err)
		}
		return Ready(value)
	}
	f, complete := NewFuture[T]()
	s.pending = append(s.pending, complete)
	s.mu.Unlock()
	return f
}

func (s *storedObject[T]) trigger(value T) {
	s.mu.Lock()
	s.ready = true
	s.value = value
	s.err = nil
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, complete := range pending {
		complete(value, nil)
	}
}

func (s *storedObject[T]) triggerError(err error) {
	s.mu.Lock()
	s.ready = true
	s.err = err
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var zero T
	for _, complete := range pending {
		complete(zero, err)
	}
}

// discardOutstanding extracts pending completions without resolving them.
// The caller must invoke them (with a broken-promise error) after releasing
// every lock it holds.
func (s *storedObject[T]) discardOutstanding() []func(T, error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	return pending
}

// FakeBackingStore is a deterministic, in-memory BackingStore for the test
// harness (spec.md §4.4). Blobs, trees, and commits live in three disjoint
// maps; every value starts either "ready" (immediately resolvable) or
// pending (resolved later via Trigger*/TriggerError*), and every access is
// counted.
type FakeBackingStore struct {
	mu      sync.Mutex
	blobs   map[hash.Hash]*storedObject[BlobResult]
	trees   map[hash.Hash]*storedObject[TreeResult]
	commits map[string]*storedObject[hash.Hash] // commit -> root tree hash

	accessCounts       map[hash.Hash]uint64
	commitAccessCounts map[string]uint64

	accessMu sync.Mutex
}

var _ BackingStore = (*FakeBackingStore)(nil)

// NewFakeBackingStore returns an empty fake store.
func NewFakeBackingStore() *FakeBackingStore {
	return &FakeBackingStore{
		blobs:              make(map[hash.Hash]*storedObject[BlobResult]),
		trees:              make(map[hash.Hash]*storedObject[TreeResult]),
		commits:            make(map[string]*storedObject[hash.Hash]),
		accessCounts:       make(map[hash.Hash]uint64),
		commitAccessCounts: make(map[string]uint64),
	}
}

func (s *FakeBackingStore) ParseRootId(v string) (hash.RootId, error) {
	return hash.NewRootId(v)
}

func (s *FakeBackingStore) RenderRootId(root hash.RootId) string {
	return root.String()
}

func (s *FakeBackingStore) bumpAccess(id hash.Hash) {
	s.accessMu.Lock()
	s.accessCounts[id]++
	s.accessMu.Unlock()
}

func (s *FakeBackingStore) bumpCommitAccess(root hash.RootId) {
	s.accessMu.Lock()
	s.commitAccessCounts[root.String()]++
	s.accessMu.Unlock()
}

// GetAccessCount returns how many times id has been requested via GetTree or
// GetBlob (testable property 8).
func (s *FakeBackingStore) GetAccessCount(id hash.Hash) uint64 {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return s.accessCounts[id]
}

// GetCommitAccessCount returns how many times root has been requested via
// GetRootTree.
func (s *FakeBackingStore) GetCommitAccessCount(root hash.RootId) uint64 {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return s.commitAccessCounts[root.String()]
}

func (s *FakeBackingStore) GetTree(_ context.Context, id hash.Hash) *Future[TreeResult] {
	s.bumpAccess(id)

	s.mu.Lock()
	obj, ok := s.trees[id]
	s.mu.Unlock()
	if !ok {
		return Failed[TreeResult](treeNotFound(id))
	}
	return obj.get()
}

func (s *FakeBackingStore) GetBlob(_ context.Context, id hash.Hash) *Future[BlobResult] {
	s.bumpAccess(id)

	s.mu.Lock()
	obj, ok := s.blobs[id]
	s.mu.Unlock()
	if !ok {
		return Failed[BlobResult](blobNotFound(id))
	}
	return obj.get()
}

func (s *FakeBackingStore) GetRootTree(ctx context.Context, root hash.RootId) *Future[model.Tree] {
	s.bumpCommitAccess(root)

	s.mu.Lock()
	commitObj, ok := s.commits[root.String()]
	s.mu.Unlock()
	if !ok {
		return Failed[model.Tree](commitNotFound(root))
	}

	out, complete := NewFuture[model.Tree]()
	go func() {
		treeHash, err := commitObj.get().Get(ctx)
		if err != nil {
			complete(model.Tree{}, err)
			return
		}
		result, err := s.GetTree(ctx, treeHash).Get(ctx)
		if err != nil {
			complete(model.Tree{}, err)
			return
		}
		complete(result.Tree, nil)
	}()
	return out
}

// PutBlob inserts a ready blob, computing its hash over contents, and fails
// with CodeAlreadyExists if one is already stored under that hash.
func (s *FakeBackingStore) PutBlob(contents []byte) (hash.Hash, error) {
	id := hash.Compute(contents)
	if _, inserted := s.MaybePutBlob(id, contents, true); !inserted {
		return id, alreadyExists("blob", id)
	}
	return id, nil
}

// MaybePutBlob inserts a blob under the given hash, returning false without
// error if one was already present. ready controls whether the stored
// object starts resolvable or pending (for TriggerBlob/TriggerBlobError).
func (s *FakeBackingStore) MaybePutBlob(id hash.Hash, contents []byte, ready bool) (hash.Hash, bool) {
	result := BlobResult{Blob: model.Blob{Hash: id, Data: contents}, Origin: OriginRemoteFetch}

	var obj *storedObject[BlobResult]
	if ready {
		obj = newReadyObject(result)
	} else {
		obj = newPendingObject[BlobResult]()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[id]; exists {
		return id, false
	}
	s.blobs[id] = obj
	return id, true
}

// PutTree inserts a ready tree with the given hash and entries, failing with
// CodeAlreadyExists on collision.
func (s *FakeBackingStore) PutTree(id hash.Hash, entries []model.TreeEntry) error {
	if _, inserted := s.MaybePutTree(id, entries, true); !inserted {
		return alreadyExists("tree", id)
	}
	return nil
}

// PutTreeAuto computes the tree hash over entries and inserts it, ready.
func (s *FakeBackingStore) PutTreeAuto(entries []model.TreeEntry) (hash.Hash, error) {
	id := model.ComputeTreeHash(entries)
	return id, s.PutTree(id, entries)
}

// MaybePutTree inserts a tree under id, returning false without error if one
// was already present.
func (s *FakeBackingStore) MaybePutTree(id hash.Hash, entries []model.TreeEntry, ready bool) (hash.Hash, bool) {
	result := TreeResult{Tree: model.Tree{Hash: id, Entries: entries}, Origin: OriginRemoteFetch}

	var obj *storedObject[TreeResult]
	if ready {
		obj = newReadyObject(result)
	} else {
		obj = newPendingObject[TreeResult]()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trees[id]; exists {
		return id, false
	}
	s.trees[id] = obj
	return id, true
}

// PutCommit maps root to treeHash, failing with CodeAlreadyExists on
// collision.
func (s *FakeBackingStore) PutCommit(root hash.RootId, treeHash hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commits[root.String()]; exists {
		return errors.New(errors.CodeAlreadyExists, "commit already exists").
			WithComponent("fake-backing-store").WithOperation("PutCommit").
			WithContext("root", root.String())
	}
	s.commits[root.String()] = newReadyObject(treeHash)
	return nil
}

// TriggerTree resolves a pending tree with the given contents.
func (s *FakeBackingStore) TriggerTree(id hash.Hash, entries []model.TreeEntry) {
	s.mu.Lock()
	obj, ok := s.trees[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	obj.trigger(TreeResult{Tree: model.Tree{Hash: id, Entries: entries}, Origin: OriginRemoteFetch})
}

// TriggerTreeError resolves a pending tree fetch with an error.
func (s *FakeBackingStore) TriggerTreeError(id hash.Hash, err error) {
	s.mu.Lock()
	obj, ok := s.trees[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	obj.triggerError(err)
}

// TriggerBlob resolves a pending blob with the given contents.
func (s *FakeBackingStore) TriggerBlob(id hash.Hash, contents []byte) {
	s.mu.Lock()
	obj, ok := s.blobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	obj.trigger(BlobResult{Blob: model.Blob{Hash: id, Data: contents}, Origin: OriginRemoteFetch})
}

// TriggerBlobError resolves a pending blob fetch with an error.
func (s *FakeBackingStore) TriggerBlobError(id hash.Hash, err error) {
	s.mu.Lock()
	obj, ok := s.blobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	obj.triggerError(err)
}

// DiscardOutstandingRequests drops every pending promise across blobs,
// trees, and commits, completing each waiter with CodeBrokenPromise. Per the
// contract, extraction happens under each stored object's own lock but the
// completions themselves run after every lock (including the store-wide map
// lock) has been released, since a dropped promise can invoke arbitrary
// downstream callbacks.
func (s *FakeBackingStore) DiscardOutstandingRequests() {
	s.mu.Lock()
	trees := make([]*storedObject[TreeResult], 0, len(s.trees))
	for _, t := range s.trees {
		trees = append(trees, t)
	}
	blobs := make([]*storedObject[BlobResult], 0, len(s.blobs))
	for _, b := range s.blobs {
		blobs = append(blobs, b)
	}
	commits := make([]*storedObject[hash.Hash], 0, len(s.commits))
	for _, c := range s.commits {
		commits = append(commits, c)
	}
	s.mu.Unlock()

	var deferred []func()
	brokenTree := brokenPromise()
	for _, t := range trees {
		for _, complete := range t.discardOutstanding() {
			complete := complete
			deferred = append(deferred, func() { complete(TreeResult{}, brokenTree) })
		}
	}
	brokenBlob := brokenPromise()
	for _, b := range blobs {
		for _, complete := range b.discardOutstanding() {
			complete := complete
			deferred = append(deferred, func() { complete(BlobResult{}, brokenBlob) })
		}
	}
	brokenCommit := brokenPromise()
	for _, c := range commits {
		for _, complete := range c.discardOutstanding() {
			complete := complete
			deferred = append(deferred, func() { complete(hash.Zero, brokenCommit) })
		}
	}

	for _, complete := range deferred {
		complete()
	}
}

func brokenPromise() error {
	return errors.New(errors.CodeBrokenPromise, "promise dropped by discardOutstandingRequests").
		WithComponent("fake-backing-store")
}

func treeNotFound(id hash.Hash) error {
	return errors.New(errors.CodeNotFound, "tree not found").
		WithComponent("fake-backing-store").WithOperation("getTree").
		WithContext("hash", id.String())
}

func blobNotFound(id hash.Hash) error {
	return errors.New(errors.CodeNotFound, "blob not found").
		WithComponent("fake-backing-store").WithOperation("getBlob").
		WithContext("hash", id.String())
}

func commitNotFound(root hash.RootId) error {
	return errors.New(errors.CodeNotFound, "commit not found").
		WithComponent("fake-backing-store").WithOperation("getRootTree").
		WithContext("root", root.String())
}

func alreadyExists(kind string, id hash.Hash) error {
	return errors.New(errors.CodeAlreadyExists, kind+" already exists").
		WithComponent("fake-backing-store").WithOperation("put-"+kind).
		WithContext("hash", id.String())
}
