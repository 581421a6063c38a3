// Package replicate converges service instances and the blob store to the
// canonical record. The planner computes the minimal ordered action list for
// one photo; planning never invokes an adapter, so a dry run is just a plan
// that gets printed instead of executed. The executor runs a plan through
// the per-service transport gates, partitioning failures into retryable and
// permanent.
package replicate

import (
	"context"
	"sort"

	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/pkg/photos"
)

// ActionType classifies one replication action.
type ActionType string

// Replication action types, in execution order.
const (
	// ActionDownloadOriginal fetches the authoritative bytes from the
	// canonical source service.
	ActionDownloadOriginal ActionType = "download_original"

	// ActionUploadBlob stores the fetched bytes in the blob store under
	// their content hash.
	ActionUploadBlob ActionType = "upload_blob"

	// ActionPushMetadata pushes canonical metadata to a diverged service copy.
	ActionPushMetadata ActionType = "push_metadata"

	// ActionPushVisibility pushes the canonical visibility level to a
	// diverged service copy.
	ActionPushVisibility ActionType = "push_visibility"
)

// Action is one planned replication step for one photo.
type Action struct {
	Type      ActionType   `json:"type"`
	Service   string       `json:"service"`
	ServiceID string       `json:"service_id"`
	Hash      string       `json:"hash,omitempty"`  // Content hash for blob actions
	Level     photos.Level `json:"level,omitempty"` // Target level for visibility pushes
}

// Planner computes replication plans. Planning is pure apart from blob
// existence checks and idempotent: replanning a converged photo yields an
// empty list.
type Planner struct {
	blobs blobstore.Store
}

// NewPlanner creates a planner over the given blob store.
func NewPlanner(blobs blobstore.Store) *Planner {
	return &Planner{blobs: blobs}
}

// Plan computes the ordered action list for one photo. Photos that are not
// yet resolved plan nothing; fully converged photos plan an empty list.
func (pl *Planner) Plan(ctx context.Context, p *photos.Photo) ([]Action, error) {
	if p.ProcessingState == photos.StateDiscovered {
		return nil, nil
	}

	var plan []Action

	// Secure the authoritative bytes first.
	if p.ContentHash != "" {
		exists, err := pl.blobs.Exists(ctx, p.ContentHash)
		if err != nil {
			return nil, err
		}
		if !exists || p.SourceOfTruthPath == "" {
			service, serviceID := splitRef(p.CanonicalSource)
			if service != "" {
				plan = append(plan,
					Action{Type: ActionDownloadOriginal, Service: service, ServiceID: serviceID, Hash: p.ContentHash},
					Action{Type: ActionUploadBlob, Service: service, ServiceID: serviceID, Hash: p.ContentHash},
				)
			}
		}
	}

	// Then converge each service copy, in lexical service order.
	services := make([]string, 0, len(p.Instances))
	for service := range p.Instances {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		inst := p.Instances[service]
		if inst.LastSync == nil || inst.LastSync.Before(p.UpdatedAt) {
			plan = append(plan, Action{
				Type:      ActionPushMetadata,
				Service:   service,
				ServiceID: inst.ID,
			})
		}
	}
	for _, disc := range p.Visibility.Discrepancies {
		inst, ok := p.Instances[disc.Service]
		if !ok {
			continue
		}
		plan = append(plan, Action{
			Type:      ActionPushVisibility,
			Service:   disc.Service,
			ServiceID: inst.ID,
			Level:     p.Visibility.Canonical,
		})
	}
	return plan, nil
}

func splitRef(ref string) (service, id string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ""
}
