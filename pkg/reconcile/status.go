package reconcile

import (
	"context"

	"github.com/photokeep/photosync/pkg/photos"
)

// Status summarizes the collection without mutating anything.
type Status struct {
	Total     int                         `json:"total"`
	ByState   map[photos.State]int        `json:"by_state"`
	ByService map[string]int              `json:"by_service"`
	Conflicts map[photos.ConflictType]int `json:"conflicts,omitempty"`

	Blocked       int `json:"blocked"`       // Photos with at least one blocking conflict
	Discrepancies int `json:"discrepancies"` // Per-service visibility divergences
	WithHash      int `json:"with_hash"`     // Photos whose content hash is known
	SecuredBlobs  int `json:"secured_blobs"` // Photos whose authoritative bytes are stored
}

// Status scans the collection and reports counts per state, service, and
// conflict type.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	stored, err := e.listAll(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		ByState:   make(map[photos.State]int),
		ByService: make(map[string]int),
		Conflicts: make(map[photos.ConflictType]int),
	}
	for _, s := range stored {
		p := s.Photo
		status.Total++
		status.ByState[p.ProcessingState]++
		for service := range p.Instances {
			status.ByService[service]++
		}
		for _, c := range p.Conflicts {
			if c.ResolutionRequired {
				status.Conflicts[c.Type]++
			}
		}
		if p.HasBlockingConflicts() {
			status.Blocked++
		}
		status.Discrepancies += len(p.Visibility.Discrepancies)
		if p.ContentHash != "" {
			status.WithHash++
			exists, err := e.blobs.Exists(ctx, p.ContentHash)
			if err == nil && exists {
				status.SecuredBlobs++
			}
		}
	}
	return status, nil
}
