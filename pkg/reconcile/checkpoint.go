package reconcile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/pkg/errors"
)

// checkpointFile is the progress file inside the metadata repository.
const checkpointFile = "sync-state.json"

// Checkpoints records per-service discovery progress so a crashed or
// interrupted run restarts where it left off instead of reprocessing the
// whole collection. Idempotent merging makes the at-least-once window safe.
type Checkpoints struct {
	path string

	mu    sync.Mutex
	state checkpointState
}

type checkpointState struct {
	LastDiscovery map[string]utc.Time `json:"last_discovery,omitempty"` // Per-service listing watermark
	LastBatchID   string              `json:"last_batch_id,omitempty"`  // Most recent committed run
}

// NewCheckpoints creates a checkpoint tracker stored in the repository root.
func NewCheckpoints(repoPath string) *Checkpoints {
	return &Checkpoints{path: filepath.Join(repoPath, checkpointFile)}
}

// Load reads the checkpoint file. A missing file is a fresh start, not an
// error.
func (c *Checkpoints) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.state = checkpointState{}
		return nil
	}
	if err != nil {
		return errors.WrapIO("read", c.path, err)
	}
	if err := json.Unmarshal(raw, &c.state); err != nil {
		return errors.WrapValidation(checkpointFile, err)
	}
	return nil
}

// LastDiscovery returns the listing watermark for a service, zero when the
// service has never been scanned.
func (c *Checkpoints) LastDiscovery(service string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.state.LastDiscovery[service]; ok {
		return ts.Time
	}
	return time.Time{}
}

// MarkDiscovered advances a service's watermark and persists the file.
func (c *Checkpoints) MarkDiscovered(service string, at time.Time, batchID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LastDiscovery == nil {
		c.state.LastDiscovery = make(map[string]utc.Time)
	}
	c.state.LastDiscovery[service] = utc.Time{Time: at.UTC()}
	c.state.LastBatchID = batchID
	return c.saveLocked()
}

func (c *Checkpoints) saveLocked() error {
	raw, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return errors.WrapValidation(checkpointFile, err)
	}
	raw = append(raw, '\n')
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errors.WrapIO("write", c.path, err)
	}
	return nil
}
