package recordstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Files is a record store backed by one JSON file per photo, laid out as
// photos/YYYY/MM/<photo_id>.json under the metadata repository root. The
// layout groups records by taken date (falling back to creation date), which
// keeps directories small and makes the repository browsable by year.
//
// Versions are content digests of the stored bytes: a write carrying a stale
// digest means someone else committed first and surfaces as a
// ConcurrentModificationError. Files are written via temp file plus rename
// and never deleted.
type Files struct {
	root string

	mu    sync.Mutex
	paths map[string]string // photo_id -> absolute record path
}

// NewFiles creates a file-tree record store rooted at the metadata
// repository path. Returns ErrStoreUnreachable when the root is missing,
// which callers treat as fatal for the whole run.
func NewFiles(root string) (*Files, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errors.ErrStoreUnreachable, root)
	}
	return &Files{
		root:  root,
		paths: make(map[string]string),
	}, nil
}

// recordPath computes where a record belongs in the year/month layout.
func (f *Files) recordPath(p *photos.Photo) string {
	date := p.CreatedAt
	if p.Metadata.TakenDate != nil && !p.Metadata.TakenDate.IsZero() {
		date = *p.Metadata.TakenDate
	}
	return filepath.Join(f.root, "photos",
		fmt.Sprintf("%04d", date.Year()),
		fmt.Sprintf("%02d", int(date.Month())),
		p.PhotoID+".json")
}

// locate finds the existing file for a photo id, scanning the tree once and
// caching paths afterwards.
func (f *Files) locate(photoID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := f.paths[photoID]; ok {
		return path, true, nil
	}

	found := ""
	err := filepath.WalkDir(filepath.Join(f.root, "photos"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		f.paths[id] = path
		if id == photoID {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", false, errors.WrapIO("scan", f.root, err)
	}
	return found, found != "", nil
}

func digest(raw []byte) Version {
	sum := sha256.Sum256(raw)
	return Version(hex.EncodeToString(sum[:]))
}

// Read implements Store.
func (f *Files) Read(_ context.Context, photoID string) (*photos.Photo, Version, error) {
	path, ok, err := f.locate(photoID)
	if err != nil {
		return nil, VersionNone, err
	}
	if !ok {
		return nil, VersionNone, errors.NewNotFoundError("photo", photoID)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, VersionNone, errors.WrapIO("read", path, err)
	}
	p, err := decode(raw)
	if err != nil {
		return nil, VersionNone, err
	}
	return p, digest(raw), nil
}

// Write implements Store.
func (f *Files) Write(ctx context.Context, p *photos.Photo, expected Version) (Version, error) {
	if err := p.Validate(); err != nil {
		return VersionNone, err
	}
	return f.write(p, expected)
}

func (f *Files) write(p *photos.Photo, expected Version) (Version, error) {
	path, exists, err := f.locate(p.PhotoID)
	if err != nil {
		return VersionNone, err
	}

	current := VersionNone
	if exists {
		raw, err := os.ReadFile(path)
		if err != nil {
			return VersionNone, errors.WrapIO("read", path, err)
		}
		current = digest(raw)
	} else {
		path = f.recordPath(p)
	}
	if current != expected {
		return VersionNone, errors.NewConcurrentModificationError(p.PhotoID, string(expected), string(current))
	}

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return VersionNone, errors.WrapValidation("record", err)
	}
	raw = append(raw, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return VersionNone, errors.WrapIO("create", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return VersionNone, errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return VersionNone, errors.WrapIO("write", path, err)
	}

	f.mu.Lock()
	f.paths[p.PhotoID] = path
	f.mu.Unlock()

	return digest(raw), nil
}

// List implements Store.
func (f *Files) List(_ context.Context, filter Filter) ([]Stored, error) {
	var out []Stored
	root := filepath.Join(f.root, "photos")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return errors.WrapIO("read", path, err)
		}
		p, err := decode(raw)
		if err != nil {
			return errors.WrapValidation(path, err)
		}
		f.mu.Lock()
		f.paths[p.PhotoID] = path
		f.mu.Unlock()
		if filter.Matches(p) {
			out = append(out, Stored{Photo: p, Version: digest(raw)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AtomicCommit implements Store. The file tree cannot offer a true
// multi-file transaction; it verifies every expected version up front, then
// applies the writes in order, stopping at the first failure. Idempotent
// merge logic upstream makes the partial-failure window safe to replay.
func (f *Files) AtomicCommit(ctx context.Context, batch []Change) error {
	for _, c := range batch {
		if err := c.Photo.Validate(); err != nil {
			return err
		}
	}
	for _, c := range batch {
		path, exists, err := f.locate(c.Photo.PhotoID)
		if err != nil {
			return err
		}
		current := VersionNone
		if exists {
			raw, err := os.ReadFile(path)
			if err != nil {
				return errors.WrapIO("read", path, err)
			}
			current = digest(raw)
		}
		if current != c.Expected {
			return errors.NewConcurrentModificationError(c.Photo.PhotoID, string(c.Expected), string(current))
		}
	}
	for _, c := range batch {
		if _, err := f.write(c.Photo, c.Expected); err != nil {
			return err
		}
	}
	return nil
}
