// Package visibility computes the canonical privacy level for a photo and
// blocks automatic expansion. Narrowing happens on its own; any input that
// would widen canonical visibility is recorded as a discrepancy plus a
// blocking conflict and waits for explicit approval.
package visibility

import (
	"fmt"
	"sort"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Outcome reports what an enforcement pass changed.
type Outcome struct {
	Narrowed     bool // Canonical moved to a more restrictive level
	NewConflicts int  // Blocking visibility conflicts added this pass
}

// Enforce recomputes the canonical level as the most restrictive value
// across the stored canonical and every observed per-service level, rebuilds
// the discrepancy list, and raises a blocking visibility_conflict for each
// service currently exposing the photo wider than canonical.
func Enforce(p *photos.Photo) Outcome {
	var out Outcome

	levels := []photos.Level{p.Visibility.Canonical}
	for service, level := range p.Visibility.Observed() {
		if pendingPush(p, service, level) {
			continue
		}
		levels = append(levels, level)
	}
	next := photos.MostRestrictive(levels...)
	if next != p.Visibility.Canonical {
		p.Visibility.Canonical = next
		out.Narrowed = true
		p.Touch()
	}
	// Canonical moved off the approved level: the approval is spent.
	if p.Visibility.ApprovedLevel != "" && p.Visibility.Canonical != p.Visibility.ApprovedLevel {
		p.Visibility.ApprovedLevel = ""
		p.Visibility.ApprovedPending = nil
	}

	canonical := p.Visibility.Canonical
	observedServices := make([]string, 0, len(p.Visibility.Observed()))
	for service := range p.Visibility.Observed() {
		observedServices = append(observedServices, service)
	}
	sort.Strings(observedServices)

	p.Visibility.Discrepancies = nil
	for _, service := range observedServices {
		observed := p.Visibility.Observed()[service]
		if observed == canonical {
			// The service caught up; a pending approved push is done.
			delete(p.Visibility.ApprovedPending, service)
			continue
		}
		p.Visibility.Discrepancies = append(p.Visibility.Discrepancies, photos.Discrepancy{
			Service:   service,
			Current:   observed,
			Canonical: canonical,
		})
		if canonical.MoreRestrictive(observed) {
			if addWideningConflict(p, service, observed, canonical) {
				out.NewConflicts++
			}
		}
	}

	settleMatchedConflicts(p)
	return out
}

// pendingPush reports whether a narrower observed level is the residue of an
// approved widening that replication has not pushed out yet. Such a level is
// a push target, not a narrowing signal. A level that moved since the
// approval is a real service-side change and is honored.
func pendingPush(p *photos.Photo, service string, observed photos.Level) bool {
	v := &p.Visibility
	if v.ApprovedLevel == "" || v.ApprovedLevel != v.Canonical {
		return false
	}
	return v.ApprovedPending[service] == observed
}

// addWideningConflict records that a service exposes the photo wider than
// canonical allows. Returns false when the same conflict is already open.
func addWideningConflict(p *photos.Photo, service string, observed, canonical photos.Level) bool {
	conflict := photos.Conflict{
		Type:               photos.ConflictVisibility,
		Description:        fmt.Sprintf("%s exposes the photo as %s, canonical is %s", service, observed, canonical),
		Services:           []string{service},
		ResolutionRequired: true,
		Status:             photos.ConflictPendingManual,
		Details: map[string]any{
			"field":     "visibility",
			"observed":  string(observed),
			"canonical": string(canonical),
		},
	}
	key := conflict.Key()
	for _, existing := range p.Conflicts {
		if existing.Key() == key && existing.Status != photos.ConflictResolved {
			return false
		}
	}
	p.AddConflict(conflict)
	return true
}

// settleMatchedConflicts releases visibility conflicts for services that no
// longer diverge from canonical, for instance after the service itself was
// narrowed. Conflicts are never deleted, only marked auto_resolved.
func settleMatchedConflicts(p *photos.Photo) {
	canonical := p.Visibility.Canonical
	for i := range p.Conflicts {
		c := &p.Conflicts[i]
		if c.Type != photos.ConflictVisibility || !c.ResolutionRequired {
			continue
		}
		matched := true
		for _, service := range c.Services {
			if level, ok := p.Visibility.Observed()[service]; !ok || level != canonical {
				matched = false
				break
			}
		}
		if matched {
			c.ResolutionRequired = false
			c.Status = photos.ConflictAutoResolved
			p.Touch()
		}
	}
}

// Approve applies an explicitly approved widening: canonical moves to the
// given level, pending visibility conflicts at or below that level are
// resolved, and the discrepancy list is rebuilt so the replication planner
// pushes the new level outward. The approval is recorded on the record so
// that enforcement passes before the push do not re-narrow canonical from
// the levels still awaiting it.
func Approve(p *photos.Photo, level photos.Level) error {
	if !level.Valid() {
		return errors.NewValidationError("visibility", string(level), "must be one of private, friends, public")
	}
	if level.MoreRestrictive(p.Visibility.Canonical) || level == p.Visibility.Canonical {
		return errors.NewValidationError("visibility", string(level),
			"approval only applies to widening; narrowing is automatic")
	}

	p.Visibility.Canonical = level
	p.Visibility.ApprovedLevel = level
	p.Visibility.ApprovedPending = nil
	for service, observed := range p.Visibility.Observed() {
		if observed.MoreRestrictive(level) {
			if p.Visibility.ApprovedPending == nil {
				p.Visibility.ApprovedPending = make(map[string]photos.Level)
			}
			p.Visibility.ApprovedPending[service] = observed
		}
	}
	for i := range p.Conflicts {
		c := &p.Conflicts[i]
		if c.Type != photos.ConflictVisibility || !c.ResolutionRequired {
			continue
		}
		observed := photos.Level(stringDetail(c.Details, "observed"))
		if observed == "" || !level.MoreRestrictive(observed) {
			c.ResolutionRequired = false
			c.Status = photos.ConflictResolved
		}
	}
	rebuildDiscrepancies(p)
	p.Touch()
	return nil
}

// rebuildDiscrepancies recomputes the discrepancy list against the current
// canonical level without touching canonical itself. Used after an approved
// widening, where the stale narrower observations are push targets for the
// replication planner, not narrowing signals.
func rebuildDiscrepancies(p *photos.Photo) {
	canonical := p.Visibility.Canonical
	services := make([]string, 0, len(p.Visibility.Observed()))
	for service := range p.Visibility.Observed() {
		services = append(services, service)
	}
	sort.Strings(services)

	p.Visibility.Discrepancies = nil
	for _, service := range services {
		observed := p.Visibility.Observed()[service]
		if observed == canonical {
			continue
		}
		p.Visibility.Discrepancies = append(p.Visibility.Discrepancies, photos.Discrepancy{
			Service:   service,
			Current:   observed,
			Canonical: canonical,
		})
	}
}

func stringDetail(details map[string]any, key string) string {
	if details == nil {
		return ""
	}
	s, _ := details[key].(string)
	return s
}
