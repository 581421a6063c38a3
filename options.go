package photosync

import (
	"github.com/photokeep/photosync/internal/blobstore"
	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/internal/recordstore"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/services"
)

// Option configures a PhotoSync instance.
type Option func(*options) error

// options holds the assembled configuration for New.
type options struct {
	cfg        *config.Config
	configPath string
	store      recordstore.Store
	blobs      blobstore.Store
	adapters   []services.Adapter
}

func defaultOptions() *options {
	return &options{}
}

// WithConfig supplies a fully built configuration, skipping file and
// environment loading.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		o.cfg = cfg
		return nil
	}
}

// WithConfigPath loads configuration from the given file instead of the
// default search locations.
func WithConfigPath(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithRecordStore overrides the record store the configuration would open.
func WithRecordStore(store recordstore.Store) Option {
	return func(o *options) error {
		if store == nil {
			return errors.New("record store cannot be nil")
		}
		o.store = store
		return nil
	}
}

// WithBlobStore overrides the blob store the configuration would open.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) error {
		if store == nil {
			return errors.New("blob store cannot be nil")
		}
		o.blobs = store
		return nil
	}
}

// WithAdapter registers a service adapter. May be given multiple times.
func WithAdapter(adapter services.Adapter) Option {
	return func(o *options) error {
		if adapter == nil {
			return errors.New("adapter cannot be nil")
		}
		o.adapters = append(o.adapters, adapter)
		return nil
	}
}
