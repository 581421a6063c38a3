package blobstore

import (
	"context"
	"sync"

	"github.com/photokeep/photosync/pkg/errors"
)

// Memory is an in-memory blob store for tests.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, hash string, content []byte) error {
	if err := verify(hash, content); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[hash]; !ok {
		m.blobs[hash] = append([]byte(nil), content...)
	}
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.blobs[hash]
	if !ok {
		return nil, errors.NewNotFoundError("blob", hash)
	}
	return append([]byte(nil), content...), nil
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[hash]
	return ok, nil
}
