// Package localdir adapts a local directory of image files to the service
// adapter contract. Each image file is one photo; descriptive metadata and
// visibility live in an optional JSON sidecar next to the file. The adapter
// is the reference implementation for services that expose full-resolution
// bytes, and doubles as a way to reconcile an on-disk archive against the
// hosted services.
package localdir

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
	"github.com/photokeep/photosync/pkg/services"
)

// sidecarSuffix is appended to the image filename to locate its sidecar.
const sidecarSuffix = ".meta.json"

// imageExtensions are the file extensions treated as photos.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".heic": true,
	".tiff": true,
	".webp": true,
}

// sidecar is the on-disk shape of a photo's descriptive metadata.
type sidecar struct {
	Caption    string       `json:"caption,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	Visibility photos.Level `json:"visibility,omitempty"`
}

// Adapter serves a directory tree of image files as a photo service.
type Adapter struct {
	service string
	root    string
}

// New creates a localdir adapter rooted at the given directory.
func New(service, root string) (*Adapter, error) {
	if !photos.ValidServiceKey(service) {
		return nil, errors.NewValidationError("service", service, "must match [a-zA-Z0-9-]+")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.WrapIO("stat", root, err)
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError("localdir", root+" is not a directory", nil)
	}
	return &Adapter{service: service, root: root}, nil
}

// Service returns the registered service identifier.
func (a *Adapter) Service() string {
	return a.service
}

// ListChanged walks the directory tree and returns one observation per image
// file modified since the given time. A zero time lists everything. The
// service id is the slash-separated path relative to the root.
func (a *Adapter) ListChanged(ctx context.Context, since time.Time) ([]services.Observation, error) {
	var out []services.Observation

	err := filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != a.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}

		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		obs, err := a.observe(filepath.ToSlash(rel), p, info)
		if err != nil {
			return err
		}
		out = append(out, obs)
		return nil
	})
	if err != nil {
		return nil, errors.NewTransientServiceError(a.service, "list_changed", 0, err)
	}
	return out, nil
}

// observe builds the observation for one image file.
func (a *Adapter) observe(serviceID, fullPath string, info fs.FileInfo) (services.Observation, error) {
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return services.Observation{}, errors.WrapIO("read", fullPath, err)
	}
	sum := sha256.Sum256(raw)

	taken := utc.Time{Time: info.ModTime().UTC()}
	meta := photos.Metadata{
		TakenDate: &taken,
		Filename:  path.Base(serviceID),
		FileSize:  info.Size(),
	}

	side, err := a.readSidecar(fullPath)
	if err != nil {
		return services.Observation{}, err
	}
	visibility := photos.LevelPrivate
	if side != nil {
		meta.Caption = side.Caption
		meta.AddTags(side.Tags...)
		if side.Visibility.Valid() {
			visibility = side.Visibility
		}
	}

	return services.Observation{
		Service:     a.service,
		ServiceID:   serviceID,
		ContentHash: "sha256:" + hex.EncodeToString(sum[:]),
		Quality:     photos.QualityOriginal,
		Visibility:  visibility,
		Metadata:    meta,
		URL:         "file://" + fullPath,
		ObservedAt:  utc.Now(),
	}, nil
}

// FetchBytes reads the full-resolution content of a photo.
func (a *Adapter) FetchBytes(_ context.Context, serviceID string) ([]byte, error) {
	full, err := a.resolve(serviceID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errors.NewPermanentServiceError(a.service, "fetch_bytes", "photo "+serviceID+" no longer exists", err)
	}
	if err != nil {
		return nil, errors.NewTransientServiceError(a.service, "fetch_bytes", 0, err)
	}
	return raw, nil
}

// PushMetadata writes the descriptive fields into the photo's sidecar,
// preserving its recorded visibility.
func (a *Adapter) PushMetadata(_ context.Context, serviceID string, meta photos.Metadata) error {
	full, err := a.resolve(serviceID)
	if err != nil {
		return err
	}
	side, err := a.readSidecar(full)
	if err != nil {
		return err
	}
	if side == nil {
		side = &sidecar{}
	}
	side.Caption = meta.Caption
	side.Tags = meta.Tags
	return a.writeSidecar(full, side)
}

// SetVisibility records the visibility level in the photo's sidecar.
func (a *Adapter) SetVisibility(_ context.Context, serviceID string, level photos.Level) error {
	full, err := a.resolve(serviceID)
	if err != nil {
		return err
	}
	side, err := a.readSidecar(full)
	if err != nil {
		return err
	}
	if side == nil {
		side = &sidecar{}
	}
	side.Visibility = level
	return a.writeSidecar(full, side)
}

// resolve maps a service id back to a file path inside the root, rejecting
// ids that escape it.
func (a *Adapter) resolve(serviceID string) (string, error) {
	cleaned := path.Clean(serviceID)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", errors.NewValidationError("service_id", serviceID, "escapes the adapter root")
	}
	full := filepath.Join(a.root, filepath.FromSlash(cleaned))
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return "", errors.NewPermanentServiceError(a.service, "resolve", "photo "+serviceID+" no longer exists", err)
	} else if err != nil {
		return "", errors.WrapIO("stat", full, err)
	}
	return full, nil
}

func (a *Adapter) readSidecar(imagePath string) (*sidecar, error) {
	raw, err := os.ReadFile(imagePath + sidecarSuffix)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", imagePath+sidecarSuffix, err)
	}
	var side sidecar
	if err := json.Unmarshal(raw, &side); err != nil {
		return nil, errors.WrapIO("decode", imagePath+sidecarSuffix, err)
	}
	return &side, nil
}

func (a *Adapter) writeSidecar(imagePath string, side *sidecar) error {
	raw, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return errors.WrapIO("encode", imagePath+sidecarSuffix, err)
	}
	if err := os.WriteFile(imagePath+sidecarSuffix, append(raw, '\n'), 0o644); err != nil {
		return errors.WrapIO("write", imagePath+sidecarSuffix, err)
	}
	return nil
}
