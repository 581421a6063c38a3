// Package services defines the contract between the reconciliation engine
// and external photo services: the raw observation shape adapters produce,
// the adapter interface the engine consumes, and a registry of known
// services validated at configuration time.
package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Observation is one raw per-service photo sighting, as returned by an
// adapter's ListChanged. The canonicalizer turns observations into canonical
// photo records; observations themselves are never persisted.
type Observation struct {
	Service     string          // Registered service identifier
	ServiceID   string          // Service-specific photo id
	ContentHash string          // Optional sha256:<64 hex>; empty when the service withholds bytes
	Quality     photos.Quality  // Quality tier of this copy
	Visibility  photos.Level    // Currently observed visibility on the service
	Metadata    photos.Metadata // Whatever descriptive data the service reports
	URL         string          // Service URL for the copy
	ObservedAt  utc.Time        // When the adapter saw this state
}

// Validate checks an observation before it enters the engine.
func (o Observation) Validate() error {
	if !photos.ValidServiceKey(o.Service) {
		return errors.NewValidationError("service", o.Service, "must match [a-zA-Z0-9-]+")
	}
	if o.ServiceID == "" {
		return errors.NewValidationError("service_id", o.ServiceID, "required")
	}
	if o.ContentHash != "" && !photos.ValidContentHash(o.ContentHash) {
		return errors.NewValidationError("content_hash", o.ContentHash, "must match sha256:<64 hex>")
	}
	if !o.Quality.Valid() {
		return errors.NewValidationError("quality", string(o.Quality), "must be one of original, high, medium, low")
	}
	if !o.Visibility.Valid() {
		return errors.NewValidationError("visibility", string(o.Visibility), "must be one of private, friends, public")
	}
	return nil
}

// Ref returns the service:id reference for this observation.
func (o Observation) Ref() string {
	return photos.CanonicalRef(o.Service, o.ServiceID)
}

// Adapter is the per-service client contract. Implementations live outside
// the engine; the engine only ever calls these four operations, always
// through the per-service transport gate.
type Adapter interface {
	// Service returns the registered service identifier this adapter serves.
	Service() string

	// ListChanged returns observations for photos created or changed since
	// the given time. A zero time requests a full scan.
	ListChanged(ctx context.Context, since time.Time) ([]Observation, error)

	// FetchBytes downloads the full-resolution content of a photo.
	FetchBytes(ctx context.Context, serviceID string) ([]byte, error)

	// PushMetadata updates descriptive fields on the service copy.
	PushMetadata(ctx context.Context, serviceID string, meta photos.Metadata) error

	// SetVisibility updates the visibility level of the service copy.
	SetVisibility(ctx context.Context, serviceID string, level photos.Level) error
}

// Registry is a thread-safe set of adapters keyed by service identifier.
// Registration validates the identifier against the service-key pattern, so
// unchecked dynamic strings never become instance keys.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its service identifier.
func (r *Registry) Register(adapter Adapter) error {
	service := adapter.Service()
	if !photos.ValidServiceKey(service) {
		return errors.NewValidationError("service", service, "must match [a-zA-Z0-9-]+")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[service]; exists {
		return errors.NewConfigError("services", "duplicate adapter for "+service, errors.ErrAlreadyExists)
	}
	r.adapters[service] = adapter
	return nil
}

// Get returns the adapter for a service.
func (r *Registry) Get(service string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[service]
	return adapter, ok
}

// Services returns the registered service identifiers in lexical order.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	services := make([]string, 0, len(r.adapters))
	for service := range r.adapters {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
