// Package photosync preserves and unifies a personal photo collection
// scattered across independent external photo services. It reconciles
// per-service observations into canonical records, detects and resolves
// disagreements between services, enforces privacy-safe visibility, and
// replicates the canonical state back out, never losing data and never
// widening visibility without explicit approval.
package photosync

import (
	"context"
	"fmt"

	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/reconcile"
	"github.com/photokeep/photosync/pkg/services"
)

// PhotoSync is the reconciliation engine facade.
type PhotoSync interface {
	// Discover lists changed photos from the registered services and merges
	// them into canonical records.
	Discover(ctx context.Context, opts reconcile.DiscoverOptions) (*reconcile.Report, error)

	// Resolve applies automatic conflict rules and any supplied decisions,
	// advancing unblocked photos to resolved.
	Resolve(ctx context.Context, opts reconcile.ResolveOptions) (*reconcile.Report, error)

	// Replicate converges service copies and the blob store to canonical
	// state, advancing fully converged photos to replicated.
	Replicate(ctx context.Context, opts reconcile.ReplicateOptions) (*reconcile.Report, error)

	// Status summarizes the collection.
	Status(ctx context.Context) (*reconcile.Status, error)

	// Audit validates stored records and optionally re-checks visibility.
	Audit(ctx context.Context, opts reconcile.AuditOptions) ([]reconcile.AuditFinding, error)

	// Services returns the registered service identifiers.
	Services() []string
}

// photosync is the internal implementation of the PhotoSync interface.
type photosync struct {
	config   *options
	engine   *reconcile.Engine
	adapters *services.Registry
}

// New creates a PhotoSync instance with the given options. At minimum a
// configuration is required; stores default to the backends the
// configuration names.
func New(opts ...Option) (PhotoSync, error) {
	ps := &photosync{
		config:   defaultOptions(),
		adapters: services.NewRegistry(),
	}
	for _, opt := range opts {
		if err := opt(ps.config); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	cfg := ps.config.cfg
	if cfg == nil {
		loaded, err := config.Load(ps.config.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	store := ps.config.store
	if store == nil {
		var err error
		store, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	blobs := ps.config.blobs
	if blobs == nil {
		var err error
		blobs, err = blobstore.NewLocal(cfg.BlobDir)
		if err != nil {
			return nil, err
		}
	}

	for _, adapter := range ps.config.adapters {
		if err := ps.adapters.Register(adapter); err != nil {
			return nil, err
		}
	}

	ps.engine = reconcile.NewEngine(cfg, store, blobs, ps.adapters)
	return ps, nil
}

func openStore(cfg *config.Config) (recordstore.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return recordstore.NewSQLite(cfg.DatabasePath)
	default:
		return recordstore.NewFiles(cfg.RepoPath)
	}
}

func (ps *photosync) Discover(ctx context.Context, opts reconcile.DiscoverOptions) (*reconcile.Report, error) {
	return ps.engine.Discover(ctx, opts)
}

func (ps *photosync) Resolve(ctx context.Context, opts reconcile.ResolveOptions) (*reconcile.Report, error) {
	return ps.engine.Resolve(ctx, opts)
}

func (ps *photosync) Replicate(ctx context.Context, opts reconcile.ReplicateOptions) (*reconcile.Report, error) {
	return ps.engine.Replicate(ctx, opts)
}

func (ps *photosync) Status(ctx context.Context) (*reconcile.Status, error) {
	return ps.engine.Status(ctx)
}

func (ps *photosync) Audit(ctx context.Context, opts reconcile.AuditOptions) ([]reconcile.AuditFinding, error) {
	return ps.engine.Audit(ctx, opts)
}

func (ps *photosync) Services() []string {
	return ps.adapters.Services()
}
