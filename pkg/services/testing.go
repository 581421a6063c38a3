package services

import (
	"context"
	"sync"
	"time"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Fake is a scripted in-memory adapter for tests. Observations are queued
// with Observe; pushes are recorded for assertions; errors can be injected
// per operation to exercise the retry and conflict paths.
type Fake struct {
	mu           sync.Mutex
	service      string
	observations []Observation
	bytes        map[string][]byte

	// Recorded outbound calls
	PushedMetadata   map[string]photos.Metadata
	PushedVisibility map[string]photos.Level

	// Injected failures, consumed once per call until cleared
	ListErr error
	PushErr error
	// FailPushes makes the next n metadata/visibility pushes fail with PushErr.
	FailPushes int

	// ListDelay stretches ListChanged after its snapshot is taken,
	// simulating a slow listing. Observations added during the delay are not
	// part of the returned snapshot.
	ListDelay time.Duration
}

// NewFake creates a scripted adapter for the given service identifier.
func NewFake(service string) *Fake {
	return &Fake{
		service:          service,
		bytes:            make(map[string][]byte),
		PushedMetadata:   make(map[string]photos.Metadata),
		PushedVisibility: make(map[string]photos.Level),
	}
}

// Service implements Adapter.
func (f *Fake) Service() string { return f.service }

// Observe queues observations for the next ListChanged call.
func (f *Fake) Observe(obs ...Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, obs...)
}

// SetBytes sets the content returned by FetchBytes for a service id.
func (f *Fake) SetBytes(serviceID string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bytes[serviceID] = content
}

// ListChanged implements Adapter.
func (f *Fake) ListChanged(_ context.Context, since time.Time) ([]Observation, error) {
	f.mu.Lock()
	if f.ListErr != nil {
		err := f.ListErr
		f.ListErr = nil
		f.mu.Unlock()
		return nil, err
	}
	var out []Observation
	for _, o := range f.observations {
		if since.IsZero() || o.ObservedAt.Time.After(since) {
			out = append(out, o)
		}
	}
	delay := f.ListDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return out, nil
}

// FetchBytes implements Adapter.
func (f *Fake) FetchBytes(_ context.Context, serviceID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.bytes[serviceID]
	if !ok {
		return nil, errors.NewNotFoundError("photo bytes", serviceID)
	}
	return content, nil
}

// PushMetadata implements Adapter.
func (f *Fake) PushMetadata(_ context.Context, serviceID string, meta photos.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumePushErr(); err != nil {
		return err
	}
	f.PushedMetadata[serviceID] = meta
	return nil
}

// SetVisibility implements Adapter.
func (f *Fake) SetVisibility(_ context.Context, serviceID string, level photos.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumePushErr(); err != nil {
		return err
	}
	f.PushedVisibility[serviceID] = level
	return nil
}

func (f *Fake) consumePushErr() error {
	if f.FailPushes > 0 && f.PushErr != nil {
		f.FailPushes--
		return f.PushErr
	}
	return nil
}
