// Package canonical turns raw per-service observations into canonical photo
// records. Matching runs content hash first, then service instance; merging
// is first-non-null-wins with a metadata_mismatch conflict whenever two
// non-null values genuinely disagree. Merging the same observation twice is
// a no-op, which is what makes discovery safe to re-run.
package canonical

import (
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/lifecycle"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// Canonicalizer merges observations into canonical photo records.
type Canonicalizer struct {
	defaultVisibility photos.Level
}

// New creates a canonicalizer. Brand-new photos start at the given
// visibility level, most deployments keep this at private.
func New(defaultVisibility photos.Level) *Canonicalizer {
	if !defaultVisibility.Valid() {
		defaultVisibility = photos.LevelPrivate
	}
	return &Canonicalizer{defaultVisibility: defaultVisibility}
}

// Outcome reports what a merge did to the record.
type Outcome struct {
	Created  bool // A new canonical photo was created
	Reopened bool // The content hash changed on a replicated photo
	Changed  bool // Any field of the record changed
}

// Create builds a new canonical photo from an unmatched observation.
func (c *Canonicalizer) Create(obs services.Observation) (*photos.Photo, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	p := photos.New()
	p.Visibility.Canonical = c.defaultVisibility
	if _, err := c.Merge(p, obs); err != nil {
		return nil, err
	}
	return p, nil
}

// Merge applies one observation to an already-matched photo. It never
// discards known information: instance fields are only upgraded, metadata
// merges first-non-null, and disagreements become conflicts instead of
// overwrites.
func (c *Canonicalizer) Merge(p *photos.Photo, obs services.Observation) (Outcome, error) {
	if err := obs.Validate(); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if obs.ContentHash != "" {
		reopened, err := c.applyContentHash(p, obs)
		if err != nil {
			return Outcome{}, err
		}
		out.Reopened = reopened
	}

	c.mergeInstance(p, obs)
	c.mergeMetadata(p, obs)
	p.Visibility.SetObserved(obs.Service, obs.Visibility)
	c.promoteCanonicalSource(p)

	out.Changed = true
	p.Touch()
	return out, nil
}

// applyContentHash installs or supersedes the content hash. A differing hash
// on a replicated photo is a reopen event: content changed behind an
// existing identity, so the photo goes back through the workflow while the
// old hash is kept as history.
func (c *Canonicalizer) applyContentHash(p *photos.Photo, obs services.Observation) (bool, error) {
	switch {
	case p.ContentHash == "":
		return false, p.SetContentHash(obs.ContentHash)
	case p.ContentHash == obs.ContentHash:
		return false, nil
	case p.ProcessingState == photos.StateReplicated:
		if err := lifecycle.Reopen(p, obs.ContentHash, obs.Service); err != nil {
			return false, err
		}
		return true, nil
	default:
		// Content is still converging before replication; supersede the
		// hash without a state change, keeping the old one as history.
		p.Supersede(obs.ContentHash, obs.Service)
		return false, nil
	}
}

// mergeInstance records or upgrades the per-service instance. A second
// distinct service id for the same content within one service is folded into
// the existing instance set as an informational duplicate; the earliest
// instance stays.
func (c *Canonicalizer) mergeInstance(p *photos.Photo, obs services.Observation) {
	existing, ok := p.Instance(obs.Service)
	if !ok {
		p.SetInstance(obs.Service, &photos.Instance{
			ID:      obs.ServiceID,
			Quality: obs.Quality,
			URL:     obs.URL,
		})
		return
	}

	if existing.ID != obs.ServiceID {
		c.recordConflict(p, photos.Conflict{
			Type:               photos.ConflictDuplicateDetected,
			Description:        "same content under a second id on " + obs.Service,
			Services:           []string{obs.Service},
			ResolutionRequired: false,
			Status:             photos.ConflictAutoResolved,
			Details: map[string]any{
				"field":        "instance",
				"kept_id":      existing.ID,
				"duplicate_id": obs.ServiceID,
			},
		})
		return
	}

	// Same instance seen again: upgrade fields, never downgrade.
	if obs.Quality != "" && obs.Quality.Better(existing.Quality) {
		existing.Quality = obs.Quality
	}
	if obs.URL != "" {
		existing.URL = obs.URL
	}
}

// promoteCanonicalSource points canonical_source at the highest-quality
// instance. Quality variants of the same content are not a conflict.
func (c *Canonicalizer) promoteCanonicalSource(p *photos.Photo) {
	bestService := ""
	var best *photos.Instance
	for _, service := range sortedServices(p) {
		inst := p.Instances[service]
		if best == nil || inst.Quality.Better(best.Quality) {
			best, bestService = inst, service
		}
	}
	if best == nil {
		return
	}
	ref := photos.CanonicalRef(bestService, best.ID)
	if p.CanonicalSource != ref {
		p.CanonicalSource = ref
	}
}

// recordConflict appends a conflict unless an identical one is already
// recorded, keeping re-runs from piling up duplicates.
func (c *Canonicalizer) recordConflict(p *photos.Photo, conflict photos.Conflict) {
	key := conflict.Key()
	for _, existing := range p.Conflicts {
		if existing.Key() == key && existing.Status != photos.ConflictResolved {
			return
		}
	}
	if conflict.Status == "" {
		conflict.Status = photos.ConflictOpen
	}
	p.AddConflict(conflict)
}

// EscalateCrossEntityDuplicate records that two distinct photo identities
// share one content hash. Merging identities is never automatic, so the
// conflict requires manual resolution.
func EscalateCrossEntityDuplicate(p *photos.Photo, otherPhotoID string, services []string) error {
	if otherPhotoID == p.PhotoID {
		return errors.NewValidationError("photo_id", otherPhotoID, "cannot duplicate itself")
	}
	conflict := photos.Conflict{
		Type:               photos.ConflictDuplicateDetected,
		Description:        "identical content under a second photo identity",
		Services:           services,
		ResolutionRequired: true,
		Status:             photos.ConflictPendingManual,
		Details: map[string]any{
			"field":          "identity",
			"other_photo_id": otherPhotoID,
		},
	}
	key := conflict.Key()
	for _, existing := range p.Conflicts {
		if existing.Key() == key && existing.Status != photos.ConflictResolved {
			return nil
		}
	}
	p.AddConflict(conflict)
	return nil
}
