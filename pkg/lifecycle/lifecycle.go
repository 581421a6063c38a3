// Package lifecycle guards the photo processing state machine. The only
// legal edges are discovered -> resolved -> replicated plus the reopen edge
// replicated -> discovered; anything else is a programming or integration
// error surfaced as a StateTransitionError, fatal to the operation but
// never to the process.
package lifecycle

import (
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// CanResolve reports whether a photo may advance discovered -> resolved:
// the edge must exist and no conflict may still require manual resolution.
func CanResolve(p *photos.Photo) bool {
	return p.ProcessingState.CanTransition(photos.StateResolved) && !p.HasBlockingConflicts()
}

// Advance moves a photo to the target state, enforcing the transition table
// and the resolution guard.
func Advance(p *photos.Photo, to photos.State) error {
	if !to.Valid() {
		return errors.NewValidationError("processing_state", string(to), "unknown state")
	}
	if !p.ProcessingState.CanTransition(to) {
		return errors.NewStateTransitionError(p.PhotoID, string(p.ProcessingState), string(to))
	}
	if to == photos.StateResolved && p.HasBlockingConflicts() {
		return errors.NewStateTransitionError(p.PhotoID, string(p.ProcessingState), string(to))
	}
	p.ProcessingState = to
	p.Touch()
	return nil
}

// Reopen sends a replicated photo back to discovered because a later
// observation carried a different content hash for the same identity. The
// superseded hash is kept as history, never discarded.
func Reopen(p *photos.Photo, newHash, service string) error {
	if p.ProcessingState != photos.StateReplicated {
		return errors.NewStateTransitionError(p.PhotoID, string(p.ProcessingState), string(photos.StateDiscovered))
	}
	if !photos.ValidContentHash(newHash) {
		return errors.NewValidationError("content_hash", newHash, "must match sha256:<64 hex>")
	}
	p.Supersede(newHash, service)
	p.ProcessingState = photos.StateDiscovered
	p.Touch()
	return nil
}
