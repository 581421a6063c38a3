package reconcile

import (
	"sync"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/pkg/conflicts"
	"github.com/photokeep/photosync/pkg/replicate"
)

// Report aggregates per-photo outcomes of one engine operation. Failures
// are isolated per photo: the run finishes and the report names what went
// wrong where.
type Report struct {
	Operation  string   `json:"operation"`
	StartedAt  utc.Time `json:"started_at"`
	FinishedAt utc.Time `json:"finished_at"`

	Processed  int `json:"processed"`            // Photos touched by this run
	Created    int `json:"created,omitempty"`    // New canonical photos
	Merged     int `json:"merged,omitempty"`     // Observations merged into existing photos
	Reopened   int `json:"reopened,omitempty"`   // Replicated photos sent back to discovered
	Resolved   int `json:"resolved,omitempty"`   // Photos advanced to resolved
	Replicated int `json:"replicated,omitempty"` // Photos advanced to replicated

	ConflictsFound    int `json:"conflicts_found,omitempty"`
	ConflictsResolved int `json:"conflicts_resolved,omitempty"`

	// Decision requests still awaiting a manual decision after this run.
	Pending []conflicts.DecisionRequest `json:"pending,omitempty"`

	// Planned actions, populated by dry runs instead of executing them.
	PlannedActions map[string][]replicate.Action `json:"planned_actions,omitempty"`

	// Per-photo failures, photo id to error text.
	Errors map[string]string `json:"errors,omitempty"`

	mu sync.Mutex
}

func newReport(operation string) *Report {
	return &Report{
		Operation: operation,
		StartedAt: utc.Now(),
	}
}

func (r *Report) finish() *Report {
	r.FinishedAt = utc.Now()
	return r
}

// Failed reports whether any photo failed during the run.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

func (r *Report) addError(photoID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[photoID] = err.Error()
}

func (r *Report) add(fn func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
