// Package objectstore sits between the glob evaluator and a BackingStore: it
// remembers every tree and blob it has already fetched, and coalesces
// concurrent requests for the same object into a single backend call
// (spec.md §4.4, §4.5).
package objectstore

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vcsmount/core/internal/circuit"
	"github.com/vcsmount/core/internal/store"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/metrics"
	"github.com/vcsmount/core/pkg/model"
	"github.com/vcsmount/core/pkg/retry"
	"github.com/vcsmount/core/pkg/utils"
)

// ObjectStore caches Tree and Blob values fetched from a BackingStore and
// coalesces duplicate in-flight fetches for the same hash.
type ObjectStore struct {
	backend store.BackingStore
	log     *utils.Logger
	metrics *metrics.Collector
	breaker *circuit.CircuitBreaker
	retryer *retry.Retryer

	mu    sync.RWMutex
	trees map[hash.Hash]model.Tree
	blobs map[hash.Hash]model.Blob

	treeFlight singleflight.Group
	blobFlight singleflight.Group
}

// New wraps backend with a tree/blob cache. Every backend fetch runs
// through a circuit breaker (so a persistently failing backend stops being
// hammered) wrapping a retryer (so a transient failure gets a few backed-off
// attempts before it trips the breaker). Cache misses and prefetch failures
// are logged at DEBUG/WARN through utils.Logger; callers that want those
// messages surfaced should follow with SetLogger.
func New(backend store.BackingStore) *ObjectStore {
	return &ObjectStore{
		backend: backend,
		log:     utils.NewLogger(utils.WARN, io.Discard),
		breaker: circuit.NewCircuitBreaker("backing-store", circuit.Config{}),
		retryer: retry.New(retry.DefaultConfig()),
		trees:   make(map[hash.Hash]model.Tree),
		blobs:   make(map[hash.Hash]model.Blob),
	}
}

// fetch runs op through the retryer, then the circuit breaker: each call
// gets a few backed-off attempts, and repeated failures trip the breaker so
// later calls fail fast instead of piling up against a dead backend.
func (o *ObjectStore) fetch(ctx context.Context, op func(ctx context.Context) error) error {
	return o.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return o.retryer.DoWithContext(ctx, op)
	})
}

// SetLogger replaces the object store's logger.
func (o *ObjectStore) SetLogger(l *utils.Logger) {
	o.log = l
}

// SetMetrics attaches a metrics.Collector that GetTree/GetBlob/
// PrefetchBlobs report access counts and failures to.
func (o *ObjectStore) SetMetrics(m *metrics.Collector) {
	o.metrics = m
}

func (o *ObjectStore) recordAccess(kind string, origin store.Origin) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordStoreAccess(kind, originLabel(origin))
}

func originLabel(o store.Origin) string {
	switch o {
	case store.OriginMemory:
		return "memory"
	case store.OriginLocalCache:
		return "local-cache"
	case store.OriginRemoteFetch:
		return "remote-fetch"
	default:
		return "unknown"
	}
}

// GetTree returns the tree for id, fetching it from the backend on a cache
// miss. Concurrent callers requesting the same id share one backend fetch.
func (o *ObjectStore) GetTree(ctx context.Context, id hash.Hash) (model.Tree, store.Origin, error) {
	if tree, ok := o.lookupTree(id); ok {
		o.recordAccess("tree", store.OriginMemory)
		return tree, store.OriginMemory, nil
	}

	v, err, _ := o.treeFlight.Do(id.String(), func() (interface{}, error) {
		o.log.Debug("tree cache miss, fetching %s from backend", id)
		var result store.TreeResult
		err := o.fetch(ctx, func(ctx context.Context) error {
			r, err := o.backend.GetTree(ctx, id).Get(ctx)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return store.TreeResult{}, err
		}
		o.storeTree(result.Tree)
		return result, nil
	})
	if err != nil {
		return model.Tree{}, store.OriginMemory, err
	}
	result := v.(store.TreeResult)
	o.recordAccess("tree", result.Origin)
	return result.Tree, result.Origin, nil
}

// GetBlob returns the blob for id, fetching it from the backend on a cache
// miss, coalescing concurrent duplicate fetches the same way GetTree does.
func (o *ObjectStore) GetBlob(ctx context.Context, id hash.Hash) (model.Blob, store.Origin, error) {
	if blob, ok := o.lookupBlob(id); ok {
		o.recordAccess("blob", store.OriginMemory)
		return blob, store.OriginMemory, nil
	}

	v, err, _ := o.blobFlight.Do(id.String(), func() (interface{}, error) {
		o.log.Debug("blob cache miss, fetching %s from backend", id)
		var result store.BlobResult
		err := o.fetch(ctx, func(ctx context.Context) error {
			r, err := o.backend.GetBlob(ctx, id).Get(ctx)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return store.BlobResult{}, err
		}
		o.storeBlob(result.Blob)
		return result, nil
	})
	if err != nil {
		return model.Blob{}, store.OriginMemory, err
	}
	result := v.(store.BlobResult)
	o.recordAccess("blob", result.Origin)
	return result.Blob, result.Origin, nil
}

// GetRootTree resolves root to its tree, populating the tree cache as a
// side effect so a subsequent GetTree(tree.Hash) is a cache hit.
func (o *ObjectStore) GetRootTree(ctx context.Context, root hash.RootId) (model.Tree, error) {
	tree, err := o.backend.GetRootTree(ctx, root).Get(ctx)
	if err != nil {
		return model.Tree{}, err
	}
	o.storeTree(tree)
	return tree, nil
}

// PrefetchBlobs warms the blob cache for every hash in ids, fetching
// concurrently. It waits for every fetch to finish before returning,
// deliberately not using errgroup's context-cancellation: one failed
// prefetch must not abort the others, matching the evaluator's own
// "collect everything, surface errors at the end" rule. If any fetch
// failed, the first error encountered is returned.
func (o *ObjectStore) PrefetchBlobs(ctx context.Context, ids []hash.Hash) error {
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, _, err := o.GetBlob(ctx, id)
			if err != nil {
				o.log.Warn("prefetch failed for %s: %v", id, err)
				if o.metrics != nil {
					o.metrics.RecordPrefetchFailure()
				}
			}
			return err
		})
	}
	return g.Wait()
}

func (o *ObjectStore) lookupTree(id hash.Hash) (model.Tree, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	tree, ok := o.trees[id]
	return tree, ok
}

func (o *ObjectStore) lookupBlob(id hash.Hash) (model.Blob, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	blob, ok := o.blobs[id]
	return blob, ok
}

func (o *ObjectStore) storeTree(tree model.Tree) {
	o.mu.Lock()
	o.trees[tree.Hash] = tree
	o.mu.Unlock()
}

func (o *ObjectStore) storeBlob(blob model.Blob) {
	o.mu.Lock()
	o.blobs[blob.Hash] = blob
	o.mu.Unlock()
}
