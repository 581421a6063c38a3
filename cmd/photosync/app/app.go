// Package app provides the application context for the photosync CLI:
// configuration loading, logger setup, adapter construction, and the lazily
// created engine instance shared by all commands.
package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/photokeep/photosync"
	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/internal/sources/localdir"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/services"
)

// App holds the CLI's dependencies. Commands reach the engine through it so
// configuration and logging are wired exactly once.
type App struct {
	version string
	commit  string
	date    string

	config *Config
	logger *zerolog.Logger

	// Engine instance, created lazily by the first command that needs it.
	mu sync.Mutex
	ps photosync.PhotoSync
}

// New creates an App with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	a := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	a.config = cfg

	logger := NewLogger(cfg)
	a.logger = &logger

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Config returns the CLI configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// PhotoSync returns the engine instance, creating it on first use. The
// engine config is loaded from the configured file, and one adapter is
// built per enabled service in the repository's services.yaml.
func (a *App) PhotoSync() (photosync.PhotoSync, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ps != nil {
		return a.ps, nil
	}

	cfg, err := config.Load(a.config.ConfigFile)
	if err != nil {
		return nil, err
	}

	opts := []photosync.Option{photosync.WithConfig(cfg)}
	for _, svc := range cfg.Services {
		if !svc.Enabled {
			continue
		}
		adapter, err := buildAdapter(svc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, photosync.WithAdapter(adapter))
	}

	ps, err := photosync.New(opts...)
	if err != nil {
		return nil, err
	}
	a.ps = ps
	return ps, nil
}

// buildAdapter constructs the adapter for one configured service.
func buildAdapter(svc config.Service) (services.Adapter, error) {
	switch svc.Kind {
	case "localdir":
		return localdir.New(svc.Key, svc.Path)
	case "":
		return nil, errors.NewConfigError("services.yaml", "service "+svc.Key+" has no adapter kind", nil)
	default:
		return nil, errors.NewConfigError("services.yaml", "service "+svc.Key+" has unsupported kind "+svc.Kind, nil)
	}
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom CLI configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithPhotoSync sets a custom engine instance, useful for testing.
func WithPhotoSync(ps photosync.PhotoSync) Option {
	return func(a *App) error {
		a.ps = ps
		return nil
	}
}
