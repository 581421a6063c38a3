// Package reconcile drives the full reconciliation workflow: discovery of
// per-service observations into canonical records, conflict resolution,
// visibility enforcement, and replication back out to services and the blob
// store. Work across photos runs in parallel; work on one photo is
// serialized by a per-photo lock, and every store write is optimistic with a
// reload-merge-retry loop. One photo's failure never aborts the run.
package reconcile

import (
	"sync"

	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/internal/transport"
	"github.com/photokeep/photosync/pkg/canonical"
	"github.com/photokeep/photosync/pkg/conflicts"
	"github.com/photokeep/photosync/pkg/replicate"
	"github.com/photokeep/photosync/pkg/services"
)

// Engine coordinates one reconciliation pipeline over a record store, a
// blob store, and a set of registered service adapters.
type Engine struct {
	cfg      *config.Config
	store    recordstore.Store
	blobs    blobstore.Store
	adapters *services.Registry

	canon    *canonical.Canonicalizer
	detector *conflicts.Detector
	resolver *conflicts.Resolver
	planner  *replicate.Planner
	executor *replicate.Executor

	checkpoints *Checkpoints

	gatesMu sync.Mutex
	gates   map[string]*transport.Gate

	locks keyedLocks
}

// NewEngine wires an engine from its collaborators. The configuration is
// treated as immutable for the engine's lifetime.
func NewEngine(cfg *config.Config, store recordstore.Store, blobs blobstore.Store, adapters *services.Registry) *Engine {
	e := &Engine{
		cfg:         cfg,
		store:       store,
		blobs:       blobs,
		adapters:    adapters,
		checkpoints: NewCheckpoints(cfg.RepoPath),
		gates:       make(map[string]*transport.Gate),
	}
	e.canon = canonical.New(cfg.DefaultVisibility)
	e.detector = conflicts.NewDetector(e.canon)
	e.resolver = conflicts.NewResolver()
	e.planner = replicate.NewPlanner(blobs)
	e.executor = replicate.NewExecutor(adapters, blobs, e.gateFor)
	return e
}

// gateFor returns the transport gate for a service, creating it from the
// service's configured rate budget on first use.
func (e *Engine) gateFor(service string) *transport.Gate {
	e.gatesMu.Lock()
	defer e.gatesMu.Unlock()
	if gate, ok := e.gates[service]; ok {
		return gate
	}

	var cfg transport.Config
	if svc, ok := e.cfg.Service(service); ok {
		cfg.RequestsPerSecond = svc.RequestsPerSecond
		cfg.Burst = svc.Burst
		cfg.MaxConcurrent = svc.MaxConcurrent
		cfg.MaxAttempts = svc.MaxAttempts
	}
	gate := transport.NewGate(service, cfg)
	e.gates[service] = gate
	return gate
}

// keyedLocks serializes work per photo id while leaving different photos
// free to proceed in parallel.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the given key and returns its unlock function.
func (k *keyedLocks) acquire(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
