// Package blobstore stores original photo bytes addressed by content hash.
// Blobs are immutable: a hash maps to exactly one byte sequence, so Put is
// idempotent and nothing is ever overwritten or deleted.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/photokeep/photosync/pkg/errors"
)

// Store is the content-addressed blob store contract.
type Store interface {
	// Put stores content under its hash. The hash must match the bytes;
	// storing the same content twice is a no-op.
	Put(ctx context.Context, hash string, content []byte) error

	// Get returns the bytes for a hash, or a not-found error.
	Get(ctx context.Context, hash string) ([]byte, error)

	// Exists reports whether a blob is already stored.
	Exists(ctx context.Context, hash string) (bool, error)
}

// HashBytes computes the canonical content hash of a byte sequence.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// verify checks that a hash is well formed and matches the content.
func verify(hash string, content []byte) error {
	if !strings.HasPrefix(hash, "sha256:") || len(hash) != len("sha256:")+64 {
		return errors.NewValidationError("hash", hash, "must be sha256:<64 hex digits>")
	}
	if got := HashBytes(content); got != hash {
		return errors.NewValidationError("hash", hash, fmt.Sprintf("content hashes to %s", got))
	}
	return nil
}

// shard returns the two-character fan-out directory for a hash.
func shard(hash string) (string, error) {
	hexPart := strings.TrimPrefix(hash, "sha256:")
	if len(hexPart) != 64 || hexPart == hash {
		return "", errors.NewValidationError("hash", hash, "must be sha256:<64 hex digits>")
	}
	return hexPart[:2], nil
}
