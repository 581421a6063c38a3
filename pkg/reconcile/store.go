package reconcile

import (
	"context"

	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// writeRetries bounds the reload-merge-retry loop for optimistic writes.
const writeRetries = 3

// update applies a mutation to a stored photo under its per-photo lock,
// writing optimistically and reloading on a version conflict.
func (e *Engine) update(ctx context.Context, photoID string, mutate func(*photos.Photo) error) (*photos.Photo, error) {
	unlock := e.locks.acquire(photoID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		p, version, err := e.store.Read(ctx, photoID)
		if err != nil {
			return nil, err
		}
		if err := mutate(p); err != nil {
			return nil, err
		}
		if _, err := e.store.Write(ctx, p, version); err != nil {
			if errors.IsVersionConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return p, nil
	}
	return nil, lastErr
}

// create persists a brand-new photo. The fresh uuid makes collisions a
// version conflict, never an overwrite.
func (e *Engine) create(ctx context.Context, p *photos.Photo) error {
	unlock := e.locks.acquire(p.PhotoID)
	defer unlock()
	_, err := e.store.Write(ctx, p, recordstore.VersionNone)
	return err
}

// listAll returns every stored photo.
func (e *Engine) listAll(ctx context.Context) ([]recordstore.Stored, error) {
	return e.store.List(ctx, recordstore.Filter{})
}
