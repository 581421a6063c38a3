package recordstore

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Memory is an in-memory record store for tests. Versions are monotonically
// increasing integers per record.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	version map[string]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string][]byte),
		version: make(map[string]int64),
	}
}

// Read implements Store.
func (m *Memory) Read(_ context.Context, photoID string) (*photos.Photo, Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.records[photoID]
	if !ok {
		return nil, VersionNone, errors.NewNotFoundError("photo", photoID)
	}
	p, err := decode(raw)
	if err != nil {
		return nil, VersionNone, err
	}
	return p, Version(strconv.FormatInt(m.version[photoID], 10)), nil
}

// Write implements Store.
func (m *Memory) Write(_ context.Context, p *photos.Photo, expected Version) (Version, error) {
	if err := p.Validate(); err != nil {
		return VersionNone, err
	}
	raw, err := encode(p)
	if err != nil {
		return VersionNone, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(p.PhotoID, raw, expected)
}

func (m *Memory) writeLocked(photoID string, raw []byte, expected Version) (Version, error) {
	current := VersionNone
	if v, ok := m.version[photoID]; ok {
		current = Version(strconv.FormatInt(v, 10))
	}
	if current != expected {
		return VersionNone, errors.NewConcurrentModificationError(photoID, string(expected), string(current))
	}
	m.records[photoID] = raw
	m.version[photoID]++
	return Version(strconv.FormatInt(m.version[photoID], 10)), nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, filter Filter) ([]Stored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Stored
	for id, raw := range m.records {
		p, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if filter.Matches(p) {
			out = append(out, Stored{Photo: p, Version: Version(strconv.FormatInt(m.version[id], 10))})
		}
	}
	return out, nil
}

// AtomicCommit implements Store.
func (m *Memory) AtomicCommit(_ context.Context, batch []Change) error {
	encoded := make([][]byte, len(batch))
	for i, c := range batch {
		if err := c.Photo.Validate(); err != nil {
			return err
		}
		raw, err := encode(c.Photo)
		if err != nil {
			return err
		}
		encoded[i] = raw
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Verify every expected version before applying any change.
	for _, c := range batch {
		current := VersionNone
		if v, ok := m.version[c.Photo.PhotoID]; ok {
			current = Version(strconv.FormatInt(v, 10))
		}
		if current != c.Expected {
			return errors.NewConcurrentModificationError(c.Photo.PhotoID, string(c.Expected), string(current))
		}
	}
	for i, c := range batch {
		m.records[c.Photo.PhotoID] = encoded[i]
		m.version[c.Photo.PhotoID]++
	}
	return nil
}

func encode(p *photos.Photo) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapValidation("record", err)
	}
	return raw, nil
}

func decode(raw []byte) (*photos.Photo, error) {
	var p photos.Photo
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.WrapValidation("record", err)
	}
	return &p, nil
}
