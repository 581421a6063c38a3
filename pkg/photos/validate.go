package photos

import (
	"fmt"
	"regexp"

	"github.com/photokeep/photosync/pkg/errors"
)

var (
	contentHashPattern  = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
	serviceKeyPattern   = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	canonicalSrcPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+:.+$`)
)

// ValidServiceKey reports whether s is a legal service identifier.
func ValidServiceKey(s string) bool {
	return serviceKeyPattern.MatchString(s)
}

// ValidContentHash reports whether s is a legal sha256:<64 hex> content hash.
func ValidContentHash(s string) bool {
	return contentHashPattern.MatchString(s)
}

// Validate checks the record against the canonical photo schema. It is called
// on every store write; a failure rejects the write and leaves the stored
// entity unchanged.
func (p *Photo) Validate() error {
	if p.PhotoID == "" {
		return errors.NewValidationError("photo_id", p.PhotoID, "required")
	}
	if !p.ProcessingState.Valid() {
		return errors.NewValidationError("processing_state", string(p.ProcessingState), "must be one of discovered, resolved, replicated")
	}
	if p.CreatedAt.IsZero() {
		return errors.NewValidationError("created_at", nil, "required")
	}
	if p.UpdatedAt.IsZero() {
		return errors.NewValidationError("updated_at", nil, "required")
	}
	if p.UpdatedAt.Before(p.CreatedAt) {
		return errors.NewValidationError("updated_at", p.UpdatedAt, "must not precede created_at")
	}

	if p.ContentHash != "" && !ValidContentHash(p.ContentHash) {
		return errors.NewValidationError("content_hash", p.ContentHash, "must match sha256:<64 hex>")
	}
	if p.CanonicalSource != "" && !canonicalSrcPattern.MatchString(p.CanonicalSource) {
		return errors.NewValidationError("canonical_source", p.CanonicalSource, "must have the form service:id")
	}

	for service, inst := range p.Instances {
		if !ValidServiceKey(service) {
			return errors.NewValidationError("instances", service, "service key must match [a-zA-Z0-9-]+")
		}
		if inst == nil || inst.ID == "" {
			return errors.NewValidationError("instances", service, "instance id required")
		}
		if !inst.Quality.Valid() {
			return errors.NewValidationError("instances", string(inst.Quality), "quality must be one of original, high, medium, low")
		}
	}

	if err := p.Metadata.validate(); err != nil {
		return err
	}
	if err := p.Visibility.validate(); err != nil {
		return err
	}

	for i, c := range p.Conflicts {
		if len(c.Services) == 0 {
			return errors.NewValidationError("conflicts", i, fmt.Sprintf("conflict %d must name at least one service", i))
		}
		switch c.Type {
		case ConflictMetadataMismatch, ConflictVisibility, ConflictDuplicateDetected, ConflictReplicationFailed:
		default:
			return errors.NewValidationError("conflicts", string(c.Type), "unknown conflict type")
		}
	}

	for _, rev := range p.ContentHistory {
		if !ValidContentHash(rev.ContentHash) {
			return errors.NewValidationError("content_history", rev.ContentHash, "must match sha256:<64 hex>")
		}
	}

	return nil
}

func (m *Metadata) validate() error {
	if m.Location != nil {
		if m.Location.Lat < -90 || m.Location.Lat > 90 {
			return errors.NewValidationError("metadata.location.lat", m.Location.Lat, "must be within [-90, 90]")
		}
		if m.Location.Lng < -180 || m.Location.Lng > 180 {
			return errors.NewValidationError("metadata.location.lng", m.Location.Lng, "must be within [-180, 180]")
		}
	}
	if m.Dimensions != nil {
		if m.Dimensions.Width < 1 || m.Dimensions.Height < 1 {
			return errors.NewValidationError("metadata.dimensions", m.Dimensions, "width and height must be at least 1")
		}
	}
	if m.FileSize < 0 {
		return errors.NewValidationError("metadata.file_size", m.FileSize, "must not be negative")
	}
	seen := make(map[string]bool, len(m.Tags))
	for _, tag := range m.Tags {
		if seen[tag] {
			return errors.NewValidationError("metadata.tags", tag, "tags must be unique")
		}
		seen[tag] = true
	}
	return nil
}

func (v *Visibility) validate() error {
	if !v.Canonical.Valid() {
		return errors.NewValidationError("visibility.canonical", string(v.Canonical), "must be one of private, friends, public")
	}
	for service, level := range v.PerService {
		if !ValidServiceKey(service) {
			return errors.NewValidationError("visibility.per_service", service, "service key must match [a-zA-Z0-9-]+")
		}
		if !level.Valid() {
			return errors.NewValidationError("visibility.per_service", string(level), "must be one of private, friends, public")
		}
	}
	if v.ApprovedLevel != "" && !v.ApprovedLevel.Valid() {
		return errors.NewValidationError("visibility.approved_level", string(v.ApprovedLevel), "must be one of private, friends, public")
	}
	for service, level := range v.ApprovedPending {
		if !ValidServiceKey(service) {
			return errors.NewValidationError("visibility.approved_pending", service, "service key must match [a-zA-Z0-9-]+")
		}
		if !level.Valid() {
			return errors.NewValidationError("visibility.approved_pending", string(level), "must be one of private, friends, public")
		}
	}
	for _, d := range v.Discrepancies {
		if d.Service == "" || !d.Current.Valid() || !d.Canonical.Valid() {
			return errors.NewValidationError("visibility.discrepancies", d, "service and both levels required")
		}
	}
	return nil
}
