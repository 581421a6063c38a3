package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/photokeep/photosync/pkg/errors"
)

// Local stores blobs on disk under root as <shard>/<hex>, where shard is the
// first two hex digits of the hash. The fan-out keeps directories small for
// collections in the hundreds of thousands.
type Local struct {
	root string
}

// NewLocal creates a local blob store rooted at the given directory, creating
// it if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapIO("create", root, err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(hash string) (string, error) {
	dir, err := shard(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, dir, strings.TrimPrefix(hash, "sha256:")), nil
}

// Put implements Store. The write goes through a temp file plus rename so a
// crash never leaves a truncated blob under a valid hash.
func (l *Local) Put(_ context.Context, hash string, content []byte) error {
	if err := verify(hash, content); err != nil {
		return err
	}
	path, err := l.path(hash)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil // already stored, content-addressing makes this a no-op
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// Get implements Store.
func (l *Local) Get(_ context.Context, hash string) ([]byte, error) {
	path, err := l.path(hash)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("blob", hash)
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	return content, nil
}

// Exists implements Store.
func (l *Local) Exists(_ context.Context, hash string) (bool, error) {
	path, err := l.path(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapIO("stat", path, err)
	}
	return true, nil
}
