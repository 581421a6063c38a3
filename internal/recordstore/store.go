// Package recordstore provides the versioned, conflict-detecting record
// store for canonical photo records: one record per photo_id, optimistic
// writes carrying the version last read, and append-only history semantics.
// The storage engine is an implementation choice; backends include a JSON
// file tree, SQLite, and an in-memory store for tests.
package recordstore

import (
	"context"

	"github.com/photokeep/photosync/pkg/photos"
)

// Version is an opaque record version token. A write must carry the version
// returned by the read it is based on; VersionNone asserts the record does
// not exist yet.
type Version string

// VersionNone is the expected version for creating a new record.
const VersionNone Version = ""

// Stored pairs a record with the version it was read at.
type Stored struct {
	Photo   *photos.Photo
	Version Version
}

// Change is one optimistic write in a batch commit.
type Change struct {
	Photo    *photos.Photo
	Expected Version
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	States        []photos.State // Match any of these states; empty matches all
	Service       string         // Only photos with an instance on this service
	ContentHash   string         // Only photos with this content hash
	WithConflicts bool           // Only photos with unresolved conflicts
}

// Matches reports whether a photo passes the filter.
func (f Filter) Matches(p *photos.Photo) bool {
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if p.ProcessingState == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Service != "" {
		if _, ok := p.Instances[f.Service]; !ok {
			return false
		}
	}
	if f.ContentHash != "" && p.ContentHash != f.ContentHash {
		return false
	}
	if f.WithConflicts && !p.HasBlockingConflicts() {
		return false
	}
	return true
}

// Store is the versioned record store contract consumed by the engine.
// Implementations must validate every record before writing, reject writes
// whose expected version no longer matches (ConcurrentModificationError),
// and never delete records.
type Store interface {
	// Read returns the record and its current version.
	Read(ctx context.Context, photoID string) (*photos.Photo, Version, error)

	// Write persists the record if the stored version still matches
	// expected, returning the new version. Pass VersionNone to create.
	Write(ctx context.Context, p *photos.Photo, expected Version) (Version, error)

	// List returns all records matching the filter, with their versions.
	List(ctx context.Context, filter Filter) ([]Stored, error)

	// AtomicCommit applies a batch of optimistic writes; either every
	// change lands or none do.
	AtomicCommit(ctx context.Context, batch []Change) error
}
