package reconcile

import (
	"context"

	"github.com/photokeep/photosync/pkg/logging"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/visibility"
)

// AuditOptions tunes an audit run.
type AuditOptions struct {
	// VisibilityCheck re-runs visibility enforcement over every photo,
	// raising conflicts for any service exposing a photo wider than
	// canonical.
	VisibilityCheck bool
}

// AuditFinding is one problem the audit surfaced.
type AuditFinding struct {
	PhotoID string `json:"photo_id"`
	Kind    string `json:"kind"` // invalid_record, visibility_exposure, missing_blob
	Detail  string `json:"detail"`
}

// Audit validates every stored record against the canonical schema, checks
// that replicated photos have their authoritative bytes secured, and
// optionally re-enforces visibility. Findings are reported; only the
// visibility check mutates records.
func (e *Engine) Audit(ctx context.Context, opts AuditOptions) ([]AuditFinding, error) {
	log := logging.FromContext(ctx)

	stored, err := e.listAll(ctx)
	if err != nil {
		return nil, err
	}

	var findings []AuditFinding
	for _, s := range stored {
		p := s.Photo

		if err := p.Validate(); err != nil {
			findings = append(findings, AuditFinding{
				PhotoID: p.PhotoID,
				Kind:    "invalid_record",
				Detail:  err.Error(),
			})
			continue
		}

		if p.ProcessingState == photos.StateReplicated && p.ContentHash != "" {
			exists, err := e.blobs.Exists(ctx, p.ContentHash)
			if err == nil && !exists {
				findings = append(findings, AuditFinding{
					PhotoID: p.PhotoID,
					Kind:    "missing_blob",
					Detail:  "replicated photo has no stored bytes for " + p.ContentHash,
				})
			}
		}

		if opts.VisibilityCheck {
			exposed := false
			_, err := e.update(ctx, p.PhotoID, func(rec *photos.Photo) error {
				out := visibility.Enforce(rec)
				exposed = out.NewConflicts > 0
				return nil
			})
			if err != nil {
				findings = append(findings, AuditFinding{
					PhotoID: p.PhotoID,
					Kind:    "invalid_record",
					Detail:  err.Error(),
				})
				continue
			}
			if exposed {
				findings = append(findings, AuditFinding{
					PhotoID: p.PhotoID,
					Kind:    "visibility_exposure",
					Detail:  "a service exposes this photo wider than canonical",
				})
			}
		}
	}

	log.Info().
		Int("photos", len(stored)).
		Int("findings", len(findings)).
		Msg("audit complete")
	return findings, nil
}
