package replicate

import (
	"context"
	"fmt"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/internal/transport"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/lifecycle"
	"github.com/photokeep/photosync/pkg/logging"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// Failure records one action that did not succeed.
type Failure struct {
	Action    Action
	Err       error
	Permanent bool // Permanent failures become conflicts; transient ones are retried next run
}

// Result summarizes one execution pass over a plan.
type Result struct {
	Succeeded []Action
	Failures  []Failure
	Advanced  bool // The photo reached replicated this pass
}

// Executor runs replication plans through the per-service transport gates.
type Executor struct {
	adapters *services.Registry
	blobs    blobstore.Store
	gate     func(service string) *transport.Gate
}

// NewExecutor creates an executor. The gate function supplies the transport
// gate for a service; every adapter call goes through it.
func NewExecutor(adapters *services.Registry, blobs blobstore.Store, gate func(service string) *transport.Gate) *Executor {
	return &Executor{adapters: adapters, blobs: blobs, gate: gate}
}

// Execute runs a plan against one resolved photo. After every successful
// action the photo's bookkeeping is updated and save is called, so an
// interrupted run resumes without re-executing persisted successes. The
// photo advances to replicated only when every action succeeded; permanent
// failures are converted into blocking replication_failed conflicts instead
// of being retried.
func (e *Executor) Execute(ctx context.Context, p *photos.Photo, plan []Action, save func() error) (*Result, error) {
	log := logging.FromContext(ctx).With().Str("photo_id", p.PhotoID).Logger()
	res := &Result{}

	var fetched []byte
	for _, action := range plan {
		err := e.run(ctx, p, action, &fetched)
		if err == nil {
			res.Succeeded = append(res.Succeeded, action)
			if save != nil {
				if saveErr := save(); saveErr != nil {
					return res, saveErr
				}
			}
			continue
		}

		permanent := errors.IsPermanent(err) || errors.IsValidation(err)
		res.Failures = append(res.Failures, Failure{Action: action, Err: err, Permanent: permanent})
		log.Warn().
			Str("action", string(action.Type)).
			Str("service", action.Service).
			Bool("permanent", permanent).
			Err(err).
			Msg("replication action failed")

		if permanent {
			recordPermanentFailure(p, action, err)
			if save != nil {
				if saveErr := save(); saveErr != nil {
					return res, saveErr
				}
			}
		}
	}

	if len(res.Failures) == 0 && p.ProcessingState == photos.StateResolved {
		if err := lifecycle.Advance(p, photos.StateReplicated); err != nil {
			return res, err
		}
		stampConverged(p)
		res.Advanced = true
		if save != nil {
			if err := save(); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// run executes one action. Fetched bytes are carried between the download
// and upload steps of the same pass.
func (e *Executor) run(ctx context.Context, p *photos.Photo, action Action, fetched *[]byte) error {
	switch action.Type {
	case ActionDownloadOriginal:
		adapter, ok := e.adapters.Get(action.Service)
		if !ok {
			return errors.NewNotFoundError("adapter", action.Service)
		}
		var content []byte
		err := e.gate(action.Service).Do(ctx, "fetch_bytes", func(ctx context.Context) error {
			var fetchErr error
			content, fetchErr = adapter.FetchBytes(ctx, action.ServiceID)
			return fetchErr
		})
		if err != nil {
			return err
		}
		if got := blobstore.HashBytes(content); got != action.Hash {
			return errors.NewPermanentServiceError(action.Service, "fetch_bytes",
				fmt.Sprintf("content hash changed: expected %s, got %s", action.Hash, got), nil)
		}
		*fetched = content
		return nil

	case ActionUploadBlob:
		if *fetched == nil {
			// Download did not run this pass; nothing to upload yet.
			return errors.NewTransientServiceError(action.Service, "upload_blob", 0,
				errors.New("authoritative bytes not fetched"))
		}
		if err := e.blobs.Put(ctx, action.Hash, *fetched); err != nil {
			return err
		}
		p.SourceOfTruthPath = "blob://" + action.Hash
		p.Touch()
		return nil

	case ActionPushMetadata:
		adapter, ok := e.adapters.Get(action.Service)
		if !ok {
			return errors.NewNotFoundError("adapter", action.Service)
		}
		err := e.gate(action.Service).Do(ctx, "push_metadata", func(ctx context.Context) error {
			return adapter.PushMetadata(ctx, action.ServiceID, p.Metadata)
		})
		if err != nil {
			return err
		}
		// Stamp the sync time without touching UpdatedAt, so a resumed run
		// sees this push as already done.
		if inst, ok := p.Instance(action.Service); ok {
			ts := utc.Now()
			inst.LastSync = &ts
		}
		return nil

	case ActionPushVisibility:
		adapter, ok := e.adapters.Get(action.Service)
		if !ok {
			return errors.NewNotFoundError("adapter", action.Service)
		}
		err := e.gate(action.Service).Do(ctx, "set_visibility", func(ctx context.Context) error {
			return adapter.SetVisibility(ctx, action.ServiceID, action.Level)
		})
		if err != nil {
			return err
		}
		p.Visibility.SetObserved(action.Service, action.Level)
		dropDiscrepancy(p, action.Service)
		return nil

	default:
		return errors.NewValidationError("action", string(action.Type), "unknown action type")
	}
}

// stampConverged marks every instance as synced at the record's final
// UpdatedAt. Runs after the advance to replicated, which is what makes
// replanning a converged photo yield an empty list.
func stampConverged(p *photos.Photo) {
	now := p.UpdatedAt
	for _, inst := range p.Instances {
		ts := now
		inst.LastSync = &ts
	}
}

func recordPermanentFailure(p *photos.Photo, action Action, err error) {
	conflict := photos.Conflict{
		Type:               photos.ConflictReplicationFailed,
		Description:        fmt.Sprintf("%s on %s failed permanently", action.Type, action.Service),
		Services:           []string{action.Service},
		ResolutionRequired: true,
		Status:             photos.ConflictPendingManual,
		Details: map[string]any{
			"field":  string(action.Type),
			"error":  err.Error(),
			"action": string(action.Type),
		},
	}
	key := conflict.Key()
	for _, existing := range p.Conflicts {
		if existing.Key() == key && existing.Status != photos.ConflictResolved {
			return
		}
	}
	p.AddConflict(conflict)
}

func dropDiscrepancy(p *photos.Photo, service string) {
	kept := p.Visibility.Discrepancies[:0]
	for _, d := range p.Visibility.Discrepancies {
		if d.Service != service {
			kept = append(kept, d)
		}
	}
	p.Visibility.Discrepancies = kept
}
