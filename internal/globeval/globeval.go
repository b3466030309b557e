// Package globeval walks a compiled glob.GlobNode trie against a directory
// container, asynchronously, producing matches and a deduplicated prefetch
// list (spec.md §4.6.2).
package globeval

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vcsmount/core/internal/glob"
	"github.com/vcsmount/core/internal/objectstore"
	"github.com/vcsmount/core/internal/overlay"
	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/metrics"
	"github.com/vcsmount/core/pkg/model"
	"github.com/vcsmount/core/pkg/utils"
)

// GlobResult is one matched path, the kind of object it names, and the root
// the walk was evaluated against.
type GlobResult struct {
	Path string
	Kind model.EntryKind
	Root hash.RootId
}

// PrefetchList accumulates blob hashes worth warming in the object store
// while a walk runs. Safe for concurrent use; entries are deduplicated.
type PrefetchList struct {
	mu   sync.Mutex
	seen map[hash.Hash]struct{}
	ids  []hash.Hash
}

// NewPrefetchList returns an empty list.
func NewPrefetchList() *PrefetchList {
	return &PrefetchList{seen: make(map[hash.Hash]struct{})}
}

// Add appends id if it has not already been recorded.
func (p *PrefetchList) Add(id hash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[id]; ok {
		return
	}
	p.seen[id] = struct{}{}
	p.ids = append(p.ids, id)
}

// Hashes returns a snapshot of the accumulated hashes.
func (p *PrefetchList) Hashes() []hash.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]hash.Hash, len(p.ids))
	copy(out, p.ids)
	return out
}

// Entry is a single directory member as seen by the evaluator, abstracting
// over an overlay entry and a plain tree entry.
type Entry interface {
	Name() string
	Hash() hash.Hash
	Kind() model.EntryKind
	// ShouldLoadChildTree reports whether descending into this entry's
	// subtree must go through the inode/overlay path rather than the
	// object store directly.
	ShouldLoadChildTree() bool
	// ShouldPrefetch reports whether this entry's content is worth
	// appending to a PrefetchList when it is matched as a leaf.
	ShouldPrefetch() bool
}

// Adapter abstracts over the inode/overlay container and the plain tree
// container the evaluator can walk (spec.md §4.6.2).
type Adapter interface {
	// LockContents holds the shared read lock for the duration of fn; no
	// mutation may happen while it runs.
	LockContents(fn func())
	// Lookup performs a single exact-name lookup under the held lock.
	Lookup(name string) (Entry, bool)
	// Iterate returns every entry under the held lock.
	Iterate() []Entry
	// GetOrLoadChildTree resolves name's subtree via this adapter's own
	// path (the overlay for an inode container), returning a child
	// Adapter. Called only outside the lock, for entries whose
	// ShouldLoadChildTree is true.
	GetOrLoadChildTree(ctx context.Context, name string) (Adapter, error)
}

// Evaluator walks a compiled pattern trie against an Adapter, resolving
// subtrees it does not already hold through objects.
type Evaluator struct {
	Objects *objectstore.ObjectStore
	Root    hash.RootId
	log     *utils.Logger
	metrics *metrics.Collector
}

// New returns an Evaluator that resolves subtrees via objects and stamps
// every GlobResult with root.
func New(objects *objectstore.ObjectStore, root hash.RootId) *Evaluator {
	return &Evaluator{Objects: objects, Root: root, log: utils.NewLogger(utils.WARN, io.Discard)}
}

// SetLogger replaces the evaluator's logger.
func (e *Evaluator) SetLogger(l *utils.Logger) {
	e.log = l
}

// SetMetrics attaches a metrics.Collector that Walk reports glob walk
// duration to.
func (e *Evaluator) SetMetrics(m *metrics.Collector) {
	e.metrics = m
}

// Walk is the entry point for a full pattern evaluation: it times the
// underlying Evaluate call and reports it to the attached metrics.Collector,
// if any.
func (e *Evaluator) Walk(ctx context.Context, node *glob.GlobNode, adapter Adapter, prefetch *PrefetchList) ([]GlobResult, error) {
	start := time.Now()
	results, err := e.Evaluate(ctx, node, adapter, "", prefetch)
	if e.metrics != nil {
		e.metrics.RecordGlobWalk(e.Root.String(), time.Since(start))
	}
	return results, err
}

// Evaluate walks node against adapter's current container, whose entries
// are reported relative to rootPath. prefetch may be nil to skip
// accumulating prefetch hints.
func (e *Evaluator) Evaluate(ctx context.Context, node *glob.GlobNode, adapter Adapter, rootPath string, prefetch *PrefetchList) ([]GlobResult, error) {
	var (
		mu       sync.Mutex
		results  []GlobResult
		g        errgroup.Group
		deferred []DeferredEntry
	)
	addResults := func(rs []GlobResult) {
		mu.Lock()
		results = append(results, rs...)
		mu.Unlock()
	}

	// Step 1: the recursive walker runs independently of the ordinary
	// children below, starting from the same container.
	if rec, ok := node.Recursive["**"]; ok {
		g.Go(func() error {
			rs, err := e.evaluateRecursive(ctx, rec, adapter, rootPath, "", prefetch)
			addResults(rs)
			return err
		})
	}

	// Steps 2-3: under the single shared hold, match ordinary children and
	// queue any descent they require.
	var localResults []GlobResult
	adapter.LockContents(func() {
		for _, child := range node.Ordinary {
			if !child.HasSpecials {
				entry, ok := adapter.Lookup(child.Pattern)
				if !ok {
					continue
				}
				e.matchEntry(ctx, adapter, child, entry, rootPath, prefetch, &localResults, &deferred, &g, addResults)
				continue
			}
			for _, entry := range adapter.Iterate() {
				if !child.Matches(entry.Name()) {
					continue
				}
				e.matchEntry(ctx, adapter, child, entry, rootPath, prefetch, &localResults, &deferred, &g, addResults)
			}
		}
	})

	// Step 4: drain descents queued while the lock was held.
	for _, d := range deferred {
		d.Launch()
	}

	// Step 5: wait for everything — successes and failures alike — before
	// returning, so a caller that drops us the instant we resolve never
	// races a descent that is still running.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	addResults(localResults)
	// The same path can match through both an ordinary child and a
	// recursive child of this node (testable property 6); results are a
	// set, so collapse duplicates before returning.
	return dedupeResults(results), nil
}

func dedupeResults(in []GlobResult) []GlobResult {
	seen := make(map[string]struct{}, len(in))
	out := make([]GlobResult, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		out = append(out, r)
	}
	return out
}

// matchEntry applies the leaf-emit / prefetch / descent-scheduling rule for
// one (child, entry) match to either the ordinary ("K has no specials") or
// specials branch of Evaluate's main loop.
func (e *Evaluator) matchEntry(
	ctx context.Context,
	adapter Adapter,
	child *glob.GlobNode,
	entry Entry,
	rootPath string,
	prefetch *PrefetchList,
	localResults *[]GlobResult,
	deferred *[]DeferredEntry,
	g *errgroup.Group,
	addResults func([]GlobResult),
) {
	fullPath := joinPath(rootPath, entry.Name())
	if child.IsLeaf {
		*localResults = append(*localResults, GlobResult{Path: fullPath, Kind: entry.Kind(), Root: e.Root})
		if prefetch != nil && entry.Kind() != model.KindTree && entry.ShouldPrefetch() {
			prefetch.Add(entry.Hash())
		}
	}
	if entry.Kind() == model.KindTree && (len(child.Ordinary) > 0 || len(child.Recursive) > 0) {
		e.scheduleDescent(ctx, adapter, entry, fullPath, deferred, g, addResults,
			func(ctx context.Context, next Adapter, path string) ([]GlobResult, error) {
				return e.Evaluate(ctx, child, next, path, prefetch)
			})
	}
}

// evaluateRecursive implements the "**" walker: at every level it tests
// whether rec's own structure matches directly against the current
// container (the zero-expansion case — exactly what Evaluate(rec, ...)
// already computes), and independently always keeps descending into every
// subtree entry, extending startOfRecursive, so deeper expansions of "**"
// are tried regardless of whether this level matched (spec.md §4.6.2).
func (e *Evaluator) evaluateRecursive(ctx context.Context, rec *glob.GlobNode, adapter Adapter, rootPath, startOfRecursive string, prefetch *PrefetchList) ([]GlobResult, error) {
	currentPath := joinPath(rootPath, startOfRecursive)

	var (
		mu      sync.Mutex
		results []GlobResult
		g       errgroup.Group
	)
	addResults := func(rs []GlobResult) {
		mu.Lock()
		results = append(results, rs...)
		mu.Unlock()
	}

	g.Go(func() error {
		rs, err := e.Evaluate(ctx, rec, adapter, currentPath, prefetch)
		addResults(rs)
		return err
	})

	var deferred []DeferredEntry
	adapter.LockContents(func() {
		for _, entry := range adapter.Iterate() {
			if entry.Kind() != model.KindTree {
				continue
			}
			nextStart := joinPath(startOfRecursive, entry.Name())
			e.scheduleDescent(ctx, adapter, entry, joinPath(rootPath, nextStart), &deferred, &g, addResults,
				func(ctx context.Context, next Adapter, _ string) ([]GlobResult, error) {
					return e.evaluateRecursive(ctx, rec, next, rootPath, nextStart, prefetch)
				})
		}
	})

	for _, d := range deferred {
		d.Launch()
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// continuation resumes evaluation on a resolved child Adapter at path.
type continuation func(ctx context.Context, child Adapter, path string) ([]GlobResult, error)

// DeferredEntry is one subtree descent whose dispatch is postponed past the
// end of a lock hold, named by the path it resumes at (mirrors
// eden/fs/inodes/DeferredDiffEntry.h's path-plus-work shape, narrowed to
// what the evaluator needs: no diff subsystem here, just a deferred walk).
type DeferredEntry struct {
	Path   string
	Launch func()
}

// scheduleDescent implements the "materialized → defer past the unlock,
// otherwise fetch the tree now" branch shared by Evaluate's ordinary-child
// loop and evaluateRecursive's always-deeper expansion.
func (e *Evaluator) scheduleDescent(
	ctx context.Context,
	adapter Adapter,
	entry Entry,
	path string,
	deferred *[]DeferredEntry,
	g *errgroup.Group,
	addResults func([]GlobResult),
	cont continuation,
) {
	if entry.ShouldLoadChildTree() {
		name := entry.Name()
		*deferred = append(*deferred, DeferredEntry{Path: path, Launch: func() {
			g.Go(func() error {
				child, err := adapter.GetOrLoadChildTree(ctx, name)
				if err != nil {
					return err
				}
				rs, err := cont(ctx, child, path)
				addResults(rs)
				return err
			})
		}})
		return
	}

	h := entry.Hash()
	g.Go(func() error {
		tree, _, err := e.Objects.GetTree(ctx, h)
		if err != nil {
			e.log.Warn("descent into %s (%s) failed: %v", path, h, err)
			return err
		}
		child := NewTreeAdapter(tree, e.Objects)
		rs, err := cont(ctx, child, path)
		addResults(rs)
		return err
	})
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	if name == "" {
		return base
	}
	return base + "/" + name
}

// overlayEntry adapts an overlay.DirEntry to Entry. A non-materialized file
// entry should be warmed in the object store; a materialized entry has
// already been written locally and does not need prefetching.
type overlayEntry struct {
	e overlay.DirEntry
}

func (o overlayEntry) Name() string             { return o.e.Name }
func (o overlayEntry) Hash() hash.Hash          { return o.e.Hash }
func (o overlayEntry) Kind() model.EntryKind    { return o.e.Kind }
func (o overlayEntry) ShouldLoadChildTree() bool { return o.e.Materialized }
func (o overlayEntry) ShouldPrefetch() bool     { return !o.e.Materialized }

// ChildLoader resolves the materialized overlay of name, a subdirectory of
// the directory an InodeAdapter wraps. The evaluator has no directory
// registry of its own; the dispatcher layer supplies this.
type ChildLoader func(ctx context.Context, name string) (*overlay.DirContents, error)

// InodeAdapter walks a live overlay.DirContents: the inode container of
// spec.md §4.6.2.
type InodeAdapter struct {
	dir       *overlay.DirContents
	loadChild ChildLoader
}

// NewInodeAdapter wraps dir, resolving materialized children through
// loadChild.
func NewInodeAdapter(dir *overlay.DirContents, loadChild ChildLoader) *InodeAdapter {
	return &InodeAdapter{dir: dir, loadChild: loadChild}
}

func (a *InodeAdapter) LockContents(fn func()) {
	a.dir.WithReadLock(fn)
}

func (a *InodeAdapter) Lookup(name string) (Entry, bool) {
	e, ok := a.dir.LookupLocked(name)
	if !ok {
		return nil, false
	}
	return overlayEntry{e: e}, true
}

func (a *InodeAdapter) Iterate() []Entry {
	entries := a.dir.EntriesLocked()
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = overlayEntry{e: e}
	}
	return out
}

func (a *InodeAdapter) GetOrLoadChildTree(ctx context.Context, name string) (Adapter, error) {
	child, err := a.loadChild(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewInodeAdapter(child, a.loadChild), nil
}

// treeEntry adapts a model.TreeEntry to Entry. A plain tree container has
// no overlay, so every child load goes through the object store and every
// file entry is worth prefetching (spec.md §4.6.2).
type treeEntry struct {
	e model.TreeEntry
}

func (t treeEntry) Name() string             { return t.e.Name }
func (t treeEntry) Hash() hash.Hash          { return t.e.Hash }
func (t treeEntry) Kind() model.EntryKind    { return t.e.Kind }
func (t treeEntry) ShouldLoadChildTree() bool { return false }
func (t treeEntry) ShouldPrefetch() bool      { return true }

// TreeAdapter walks a plain model.Tree: the tree container of spec.md
// §4.6.2. It needs no lock since the Tree it wraps is immutable once
// fetched.
type TreeAdapter struct {
	tree    model.Tree
	objects *objectstore.ObjectStore
}

// NewTreeAdapter wraps tree, resolving any subtree through objects.
func NewTreeAdapter(tree model.Tree, objects *objectstore.ObjectStore) *TreeAdapter {
	return &TreeAdapter{tree: tree, objects: objects}
}

func (a *TreeAdapter) LockContents(fn func()) { fn() }

func (a *TreeAdapter) Lookup(name string) (Entry, bool) {
	e, ok := a.tree.Lookup(name)
	if !ok {
		return nil, false
	}
	return treeEntry{e: e}, true
}

func (a *TreeAdapter) Iterate() []Entry {
	out := make([]Entry, len(a.tree.Entries))
	for i, e := range a.tree.Entries {
		out[i] = treeEntry{e: e}
	}
	return out
}

func (a *TreeAdapter) GetOrLoadChildTree(ctx context.Context, name string) (Adapter, error) {
	entry, ok := a.tree.Lookup(name)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "no such child entry").
			WithComponent("globeval").WithOperation("GetOrLoadChildTree").WithContext("name", name)
	}
	tree, _, err := a.objects.GetTree(ctx, entry.Hash)
	if err != nil {
		return nil, err
	}
	return NewTreeAdapter(tree, a.objects), nil
}
