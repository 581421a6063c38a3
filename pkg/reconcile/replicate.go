package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/logging"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/replicate"
)

// ReplicateOptions tunes a replication run.
type ReplicateOptions struct {
	// DryRun plans every photo and reports the intended actions without
	// invoking a single adapter.
	DryRun bool
}

// Replicate converges every resolved photo: secures the authoritative bytes
// in the blob store and pushes canonical metadata and visibility to each
// diverged service copy. Photos advance to replicated only when all their
// actions succeed; the rest stay resolved and their unmet actions are
// retried on the next invocation.
func (e *Engine) Replicate(ctx context.Context, opts ReplicateOptions) (*Report, error) {
	log := logging.FromContext(ctx)
	report := newReport("replicate")

	stored, err := e.store.List(ctx, recordstore.Filter{States: []photos.State{photos.StateResolved}})
	if err != nil {
		return report.finish(), err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)
	for _, s := range stored {
		photoID := s.Photo.PhotoID
		group.Go(func() error {
			e.replicateOne(groupCtx, report, photoID, opts.DryRun)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report.finish(), err
	}

	log.Info().
		Int("processed", report.Processed).
		Int("replicated", report.Replicated).
		Bool("dry_run", opts.DryRun).
		Msg("replication complete")
	return report.finish(), nil
}

func (e *Engine) replicateOne(ctx context.Context, report *Report, photoID string, dryRun bool) {
	log := logging.FromContext(ctx).With().Str("photo_id", photoID).Logger()

	unlock := e.locks.acquire(photoID)
	defer unlock()

	p, version, err := e.store.Read(ctx, photoID)
	if err != nil {
		report.addError(photoID, err)
		return
	}

	plan, err := e.planner.Plan(ctx, p)
	if err != nil {
		report.addError(photoID, err)
		return
	}

	if dryRun {
		for _, action := range plan {
			log.Info().
				Str("action", string(action.Type)).
				Str("service", action.Service).
				Msg("would execute")
		}
		report.add(func(r *Report) {
			r.Processed++
			if r.PlannedActions == nil {
				r.PlannedActions = make(map[string][]replicate.Action)
			}
			r.PlannedActions[photoID] = plan
		})
		return
	}

	save := func() error {
		next, err := e.store.Write(ctx, p, version)
		if err != nil {
			return err
		}
		version = next
		return nil
	}

	res, err := e.executor.Execute(ctx, p, plan, save)
	if err != nil {
		report.addError(photoID, err)
		return
	}
	for _, failure := range res.Failures {
		log.Warn().
			Str("action", string(failure.Action.Type)).
			Str("service", failure.Action.Service).
			Err(failure.Err).
			Msg("replication action pending retry")
	}

	report.add(func(r *Report) {
		r.Processed++
		if res.Advanced {
			r.Replicated++
		}
	})
}
