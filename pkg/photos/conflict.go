package photos

import (
	"sort"
	"strings"
)

// ConflictType classifies a disagreement between services.
type ConflictType string

// Conflict types.
const (
	// ConflictMetadataMismatch records two non-null, disagreeing values for
	// the same metadata field from different services.
	ConflictMetadataMismatch ConflictType = "metadata_mismatch"

	// ConflictVisibility records a service reporting a less restrictive
	// visibility than canonical; widening requires explicit approval.
	ConflictVisibility ConflictType = "visibility_conflict"

	// ConflictDuplicateDetected records identical content found under a
	// second service id (informational) or under a second photo identity
	// (requires manual resolution).
	ConflictDuplicateDetected ConflictType = "duplicate_detected"

	// ConflictReplicationFailed records a permanent service failure during
	// replication, converted into a manual conflict instead of being retried.
	ConflictReplicationFailed ConflictType = "replication_failed"
)

// ConflictStatus is the resolution lifecycle of a single conflict.
type ConflictStatus string

// Conflict statuses.
const (
	ConflictOpen          ConflictStatus = "open"
	ConflictAutoResolved  ConflictStatus = "auto_resolved"
	ConflictPendingManual ConflictStatus = "pending_manual"
	ConflictResolved      ConflictStatus = "resolved"
)

// Conflict is a structured record of a disagreement requiring automatic or
// manual resolution. Conflicts are never deleted; resolving one clears
// ResolutionRequired and moves Status forward.
type Conflict struct {
	Type               ConflictType   `json:"type"`
	Description        string         `json:"description"`
	Services           []string       `json:"services"` // At least one contributing service
	ResolutionRequired bool           `json:"resolution_required"`
	Status             ConflictStatus `json:"status,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
}

// Key identifies a conflict within a photo for the decision protocol:
// type plus field (for metadata mismatches) plus the sorted service set.
func (c Conflict) Key() string {
	parts := []string{string(c.Type)}
	if field, ok := c.Details["field"].(string); ok && field != "" {
		parts = append(parts, field)
	}
	services := append([]string(nil), c.Services...)
	sort.Strings(services)
	parts = append(parts, services...)
	return strings.Join(parts, "|")
}

// Blocking reports whether this conflict blocks the discovered -> resolved
// transition.
func (c Conflict) Blocking() bool {
	return c.ResolutionRequired
}

// SortConflicts orders conflicts stably by type, then by lexical service
// name, then by field. Required for reproducible resolution order.
func SortConflicts(conflicts []Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Type != conflicts[j].Type {
			return conflicts[i].Type < conflicts[j].Type
		}
		si := strings.Join(sortedCopy(conflicts[i].Services), ",")
		sj := strings.Join(sortedCopy(conflicts[j].Services), ",")
		if si != sj {
			return si < sj
		}
		return conflicts[i].Key() < conflicts[j].Key()
	})
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
