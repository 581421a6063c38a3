package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/conflicts"
	"github.com/photokeep/photosync/pkg/lifecycle"
	"github.com/photokeep/photosync/pkg/logging"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/visibility"
)

// ResolveOptions tunes a resolution run.
type ResolveOptions struct {
	// Decisions settles specific conflicts. Each is matched to its photo and
	// conflict key; unknown keys are reported as per-photo errors.
	Decisions []conflicts.Decision

	// AutoOnly applies the automatic rules and collects decision requests
	// but leaves every photo in discovered, even when nothing blocks it.
	AutoOnly bool
}

// Resolve runs the resolution pass over every discovered photo: automatic
// rules first, then any supplied decisions, then the advance to resolved for
// photos with no blocking conflicts left. Requests for the conflicts still
// pending come back on the report.
func (e *Engine) Resolve(ctx context.Context, opts ResolveOptions) (*Report, error) {
	log := logging.FromContext(ctx)
	report := newReport("resolve")

	stored, err := e.store.List(ctx, recordstore.Filter{States: []photos.State{photos.StateDiscovered}})
	if err != nil {
		return report.finish(), err
	}

	decisionsByPhoto := make(map[string][]conflicts.Decision)
	for _, d := range opts.Decisions {
		decisionsByPhoto[d.PhotoID] = append(decisionsByPhoto[d.PhotoID], d)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)
	for _, s := range stored {
		photoID := s.Photo.PhotoID
		group.Go(func() error {
			e.resolveOne(groupCtx, report, photoID, decisionsByPhoto[photoID], opts.AutoOnly)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report.finish(), err
	}

	log.Info().
		Int("processed", report.Processed).
		Int("resolved", report.Resolved).
		Int("pending", len(report.Pending)).
		Msg("resolution complete")
	return report.finish(), nil
}

func (e *Engine) resolveOne(ctx context.Context, report *Report, photoID string, decisions []conflicts.Decision, autoOnly bool) {
	settled := 0
	advanced := false
	var pending []conflicts.DecisionRequest

	_, err := e.update(ctx, photoID, func(p *photos.Photo) error {
		settled = 0
		advanced = false

		visibility.Enforce(p)
		settled += e.resolver.AutoResolve(p)

		for _, d := range decisions {
			if err := e.resolver.Apply(p, d); err != nil {
				return err
			}
			if d.Choice != conflicts.ChoiceSkip {
				settled++
			}
		}

		if !autoOnly && lifecycle.CanResolve(p) {
			if err := lifecycle.Advance(p, photos.StateResolved); err != nil {
				return err
			}
			advanced = true
		}
		pending = e.resolver.PendingRequests(p)
		return nil
	})
	if err != nil {
		report.addError(photoID, err)
		return
	}

	report.add(func(r *Report) {
		r.Processed++
		r.ConflictsResolved += settled
		if advanced {
			r.Resolved++
		}
		r.Pending = append(r.Pending, pending...)
	})
}
