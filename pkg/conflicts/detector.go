// Package conflicts detects disagreements between services and resolves
// them, automatically where safe and through a structured decision protocol
// otherwise. The resolver never assumes a terminal session: it emits
// decision requests and accepts decisions back, so any front end can drive
// manual resolution.
package conflicts

import (
	"github.com/photokeep/photosync/pkg/canonical"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
	"github.com/photokeep/photosync/pkg/visibility"
)

// Detector re-derives the conflict list for a photo. Detection is
// deterministic: the same record, observations, and index always produce the
// same conflicts in the same order.
type Detector struct {
	canonicalizer *canonical.Canonicalizer
}

// NewDetector creates a detector sharing the canonicalizer's merge rules.
func NewDetector(c *canonical.Canonicalizer) *Detector {
	return &Detector{canonicalizer: c}
}

// Detect runs a full detection pass over one photo: metadata disagreements
// from the contributing observations of this run, per-service visibility
// against canonical, and content hash collisions across photo identities.
// New conflicts are appended to the record; existing ones keep their status.
// The conflict list is left in stable order, sorted by type then service.
func (d *Detector) Detect(p *photos.Photo, observations []services.Observation, idx *canonical.Index) error {
	for _, obs := range observations {
		if obs.ContentHash != "" && p.ContentHash != "" && obs.ContentHash != p.ContentHash {
			// A differing hash is a reopen signal, not a metadata conflict;
			// the canonicalizer handles it during merge.
			continue
		}
		if _, err := d.canonicalizer.Merge(p, obs); err != nil {
			return err
		}
	}

	visibility.Enforce(p)

	if idx != nil && p.ContentHash != "" {
		for hash, ids := range idx.DuplicateIdentities() {
			if hash != p.ContentHash {
				continue
			}
			for _, other := range ids {
				if other == p.PhotoID {
					continue
				}
				if err := canonical.EscalateCrossEntityDuplicate(p, other, sortedServices(p)); err != nil {
					return err
				}
			}
		}
	}

	photos.SortConflicts(p.Conflicts)
	return nil
}
