package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/photokeep/photosync/pkg/canonical"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/logging"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// DiscoverOptions narrows a discovery run.
type DiscoverOptions struct {
	Since    time.Time // Override the per-service checkpoint
	Services []string  // Only these services; empty means all registered
	FullScan bool      // Ignore checkpoints and list everything
}

// Discover lists changed photos from every registered service, merges the
// observations into canonical records, detects conflicts, and advances the
// discovery checkpoints. Re-running discovery over the same observations is
// a no-op: no duplicate photos, no duplicate conflicts.
func (e *Engine) Discover(ctx context.Context, opts DiscoverOptions) (*Report, error) {
	log := logging.FromContext(ctx)
	report := newReport("discover")
	batchID := uuid.NewString()

	if err := e.checkpoints.Load(); err != nil {
		return report.finish(), err
	}

	stored, err := e.listAll(ctx)
	if err != nil {
		return report.finish(), err
	}
	records := make([]*photos.Photo, 0, len(stored))
	for _, s := range stored {
		records = append(records, s.Photo)
	}
	idx := canonical.NewIndex(records)

	observations, listedAt, listErrs := e.listObservations(ctx, opts)
	for service, err := range listErrs {
		report.addError("service:"+service, err)
	}

	// Matching is sequential so the index stays consistent; merging runs in
	// parallel across photos afterwards.
	groups, created, err := e.matchObservations(ctx, report, idx, observations)
	if err != nil {
		return report.finish(), err
	}
	report.Created = created

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)
	for photoID, obs := range groups {
		photoID, obs := photoID, obs
		group.Go(func() error {
			e.mergeGroup(groupCtx, report, photoID, obs)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report.finish(), err
	}

	// Rebuild the index after merging: hashes learned this run may have
	// revealed cross-entity duplicates.
	stored, err = e.listAll(ctx)
	if err != nil {
		return report.finish(), err
	}
	records = records[:0]
	for _, s := range stored {
		records = append(records, s.Photo)
	}
	e.escalateDuplicates(ctx, report, canonical.NewIndex(records))

	for _, service := range e.discoverServices(opts) {
		if _, failed := listErrs[service]; failed {
			continue // keep the old watermark so the window is retried
		}
		// The watermark is the instant listing began, not when the run
		// finished: anything changing mid-run lands after it and is picked up
		// next time. Idempotent merging makes the overlap safe.
		if err := e.checkpoints.MarkDiscovered(service, listedAt[service], batchID); err != nil {
			return report.finish(), err
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("created", report.Created).
		Int("conflicts", report.ConflictsFound).
		Msg("discovery complete")
	return report.finish(), nil
}

// discoverServices resolves which services this run covers.
func (e *Engine) discoverServices(opts DiscoverOptions) []string {
	if len(opts.Services) > 0 {
		out := append([]string(nil), opts.Services...)
		sort.Strings(out)
		return out
	}
	return e.adapters.Services()
}

// listObservations queries each service through its gate. A failing service
// is reported and skipped; the others proceed. The returned times record
// when each successful listing began, to serve as the next watermark.
func (e *Engine) listObservations(ctx context.Context, opts DiscoverOptions) ([]services.Observation, map[string]time.Time, map[string]error) {
	var all []services.Observation
	listedAt := make(map[string]time.Time)
	failed := make(map[string]error)

	for _, service := range e.discoverServices(opts) {
		adapter, ok := e.adapters.Get(service)
		if !ok {
			failed[service] = errors.NewNotFoundError("adapter", service)
			continue
		}

		since := opts.Since
		if since.IsZero() && !opts.FullScan {
			since = e.checkpoints.LastDiscovery(service)
		}
		if opts.FullScan {
			since = time.Time{}
		}

		started := time.Now()
		var obs []services.Observation
		err := e.gateFor(service).Do(ctx, "list_changed", func(ctx context.Context) error {
			var listErr error
			obs, listErr = adapter.ListChanged(ctx, since)
			return listErr
		})
		if err != nil {
			failed[service] = err
			continue
		}
		listedAt[service] = started
		all = append(all, obs...)
	}
	return all, listedAt, failed
}

// matchObservations resolves every observation to a photo identity, creating
// new photos for unmatched ones, and groups the rest for parallel merging.
func (e *Engine) matchObservations(ctx context.Context, report *Report, idx *canonical.Index, observations []services.Observation) (map[string][]services.Observation, int, error) {
	groups := make(map[string][]services.Observation)
	created := 0

	for _, obs := range observations {
		if err := obs.Validate(); err != nil {
			report.addError(obs.Ref(), err)
			continue
		}
		if photoID, ok := idx.Match(obs); ok {
			groups[photoID] = append(groups[photoID], obs)
			continue
		}

		p, err := e.canon.Create(obs)
		if err != nil {
			report.addError(obs.Ref(), err)
			continue
		}
		if err := e.create(ctx, p); err != nil {
			if errors.Is(err, errors.ErrStoreUnreachable) {
				return nil, created, err
			}
			report.addError(p.PhotoID, err)
			continue
		}
		idx.Add(p)
		created++
		report.add(func(r *Report) { r.Processed++ })
	}
	return groups, created, nil
}

// mergeGroup merges one photo's observations under its lock, with the
// optimistic write loop handling store-side races.
func (e *Engine) mergeGroup(ctx context.Context, report *Report, photoID string, observations []services.Observation) {
	reopened := false
	newConflicts := 0
	_, err := e.update(ctx, photoID, func(p *photos.Photo) error {
		reopened = false
		before := len(p.Conflicts)
		for _, obs := range observations {
			out, err := e.canon.Merge(p, obs)
			if err != nil {
				return err
			}
			if out.Reopened {
				reopened = true
			}
		}
		if err := e.detector.Detect(p, nil, nil); err != nil {
			return err
		}
		newConflicts = len(p.Conflicts) - before
		return nil
	})
	if err != nil {
		report.addError(photoID, err)
		return
	}
	report.add(func(r *Report) {
		r.Processed++
		r.Merged++
		r.ConflictsFound += newConflicts
		if reopened {
			r.Reopened++
		}
	})
}

// escalateDuplicates records cross-entity duplicate conflicts for every
// content hash shared by two or more photo identities.
func (e *Engine) escalateDuplicates(ctx context.Context, report *Report, idx *canonical.Index) {
	for _, ids := range idx.DuplicateIdentities() {
		for _, photoID := range ids {
			others := make([]string, 0, len(ids)-1)
			for _, other := range ids {
				if other != photoID {
					others = append(others, other)
				}
			}
			_, err := e.update(ctx, photoID, func(p *photos.Photo) error {
				for _, other := range others {
					if err := canonical.EscalateCrossEntityDuplicate(p, other, p.Services()); err != nil {
						return err
					}
				}
				photos.SortConflicts(p.Conflicts)
				return nil
			})
			if err != nil {
				report.addError(photoID, err)
			}
		}
	}
}
