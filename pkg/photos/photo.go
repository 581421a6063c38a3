// Package photos defines the canonical photo data model: the single logical
// record unifying all service-specific copies of one real photo, together
// with its instances, metadata, visibility, conflicts, and processing state.
package photos

import (
	"fmt"

	"github.com/agentstation/utc"
	"github.com/google/uuid"
)

// Photo is the canonical record for one real-world photo. It is the unit of
// concurrency and persistence: exactly one reconciliation pass may mutate a
// given PhotoID at a time, and the record store keys one record per PhotoID.
type Photo struct {
	// Core identity
	PhotoID     string `json:"photo_id"`               // Globally unique, immutable, assigned at creation
	ContentHash string `json:"content_hash,omitempty"` // sha256:<64 hex> of the full-resolution bytes

	// Authoritative copy
	CanonicalSource   string `json:"canonical_source,omitempty"`     // service:id of the instance treated as authoritative
	SourceOfTruthPath string `json:"source_of_truth_path,omitempty"` // Location of the authoritative bytes

	// Per-service copies, keyed by service identifier
	Instances map[string]*Instance `json:"instances,omitempty"`

	// Best-known descriptive data; every field independently nullable
	Metadata Metadata `json:"metadata"`

	// Privacy settings across services
	Visibility Visibility `json:"visibility"`

	// Workflow stage
	ProcessingState State `json:"processing_state"`

	// Ordered disagreement records
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// Superseded content hashes, retained when a reopen event records that
	// the bytes behind an existing identity changed
	ContentHistory []ContentRevision `json:"content_history,omitempty"`

	// Timestamps, monotonically non-decreasing
	CreatedAt utc.Time `json:"created_at"`
	UpdatedAt utc.Time `json:"updated_at"`
}

// Instance is a per-service representation of a canonical photo.
type Instance struct {
	ID       string    `json:"id"`                 // Service-specific identifier
	Quality  Quality   `json:"quality"`            // Quality tier of this copy
	LastSync *utc.Time `json:"last_sync,omitempty"` // When this instance last converged to canonical state
	URL      string    `json:"url,omitempty"`      // Service URL for the copy
}

// ContentRevision records a content hash that was superseded by a reopen
// event. The old canonical data is history, never discarded.
type ContentRevision struct {
	ContentHash string   `json:"content_hash"`
	Service     string   `json:"service,omitempty"` // Service whose observation triggered the reopen
	RecordedAt  utc.Time `json:"recorded_at"`
}

// New creates a photo in the discovered state with a fresh identity.
func New() *Photo {
	now := utc.Now()
	return &Photo{
		PhotoID:         uuid.NewString(),
		Instances:       make(map[string]*Instance),
		Visibility:      Visibility{Canonical: LevelPrivate},
		ProcessingState: StateDiscovered,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Touch bumps the updated timestamp. UpdatedAt never moves backwards.
func (p *Photo) Touch() {
	now := utc.Now()
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
}

// SetInstance adds or updates a service instance and stamps UpdatedAt.
func (p *Photo) SetInstance(service string, inst *Instance) {
	if p.Instances == nil {
		p.Instances = make(map[string]*Instance)
	}
	p.Instances[service] = inst
	p.Touch()
}

// Instance returns the instance for a service, if present.
func (p *Photo) Instance(service string) (*Instance, bool) {
	inst, ok := p.Instances[service]
	return inst, ok
}

// Services returns the service identifiers that carry an instance of this
// photo, in unspecified order.
func (p *Photo) Services() []string {
	services := make([]string, 0, len(p.Instances))
	for service := range p.Instances {
		services = append(services, service)
	}
	return services
}

// AddConflict appends a conflict record and stamps UpdatedAt.
func (p *Photo) AddConflict(c Conflict) {
	p.Conflicts = append(p.Conflicts, c)
	p.Touch()
}

// HasBlockingConflicts reports whether any conflict still requires manual
// resolution. While true, the discovered -> resolved transition is blocked.
func (p *Photo) HasBlockingConflicts() bool {
	for _, c := range p.Conflicts {
		if c.ResolutionRequired {
			return true
		}
	}
	return false
}

// SetContentHash records the content hash. Once set, the hash is immutable
// unless a reopen event is recorded via Supersede.
func (p *Photo) SetContentHash(hash string) error {
	if p.ContentHash != "" && p.ContentHash != hash {
		return fmt.Errorf("content hash already set for photo %s; record a reopen instead", p.PhotoID)
	}
	p.ContentHash = hash
	p.Touch()
	return nil
}

// Supersede moves the current content hash into history and installs the new
// one. Used only by the reopen transition.
func (p *Photo) Supersede(newHash, service string) {
	if p.ContentHash != "" {
		p.ContentHistory = append(p.ContentHistory, ContentRevision{
			ContentHash: p.ContentHash,
			Service:     service,
			RecordedAt:  utc.Now(),
		})
	}
	p.ContentHash = newHash
	p.Touch()
}

// CanonicalRef formats a canonical source reference as service:id.
func CanonicalRef(service, id string) string {
	return service + ":" + id
}
