// Package config loads engine configuration. Settings come from three
// layers, later layers winning: built-in defaults, an optional
// photosync.yaml read by viper, and PHOTOSYNC_* environment variables. The
// per-service registry lives in a separate services.yaml inside the metadata
// repository so that credentials and tuning stay next to the data they
// describe.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/photos"
)

// Backend selects the record store implementation.
type Backend string

// Supported record store backends.
const (
	BackendFiles  Backend = "files"
	BackendSQLite Backend = "sqlite"
)

// Service configures one external photo service connection.
type Service struct {
	Key               string            `yaml:"key" json:"key"`                                                   // Registry key, e.g. "flickr"
	Kind              string            `yaml:"kind,omitempty" json:"kind,omitempty"`                             // Adapter kind, e.g. "localdir"
	Path              string            `yaml:"path,omitempty" json:"path,omitempty"`                             // Root directory for localdir adapters
	Enabled           bool              `yaml:"enabled" json:"enabled"`                                           // Disabled services are skipped entirely
	RequestsPerSecond float64           `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"` // Rate limit, 0 = default
	Burst             int               `yaml:"burst,omitempty" json:"burst,omitempty"`                           // Token bucket capacity
	MaxConcurrent     int               `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`         // In-flight call cap
	MaxAttempts       int               `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`             // Retry budget per call
	Credentials       map[string]string `yaml:"credentials,omitempty" json:"credentials,omitempty"`               // Opaque adapter credentials
}

// Registry is the parsed services.yaml file.
type Registry struct {
	Services []Service `yaml:"services" json:"services"`
}

// Enabled returns the enabled services in file order.
func (r *Registry) Enabled() []Service {
	var out []Service
	for _, s := range r.Services {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Config is the full engine configuration. It is immutable after Load.
type Config struct {
	RepoPath          string        `mapstructure:"repo_path"`          // Metadata repository root
	BlobDir           string        `mapstructure:"blob_dir"`           // Original bytes, defaults to <repo>/blobs
	Backend           Backend       `mapstructure:"backend"`            // Record store backend
	DatabasePath      string        `mapstructure:"database_path"`      // SQLite file, defaults to <repo>/photos.db
	Workers           int           `mapstructure:"workers"`            // Reconciliation worker count
	DefaultVisibility photos.Level  `mapstructure:"default_visibility"` // Visibility for brand-new photos
	DiscoveryWindow   time.Duration `mapstructure:"discovery_window"`   // Fallback lookback for a full scan

	Services []Service `mapstructure:"-"` // Loaded from services.yaml
}

// servicesFile is the registry filename inside the metadata repository.
const servicesFile = "services.yaml"

func defaults(v *viper.Viper) {
	v.SetDefault("repo_path", ".")
	v.SetDefault("backend", string(BackendFiles))
	v.SetDefault("workers", 4)
	v.SetDefault("default_visibility", string(photos.LevelPrivate))
	v.SetDefault("discovery_window", "8760h") // one year
}

// Load reads configuration from the optional config file at path (empty
// means search the working directory), the environment, and the repository's
// services.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("PHOTOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "reading "+path, err)
		}
	} else {
		v.SetConfigName("photosync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "reading photosync.yaml", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError("config", "decoding", err)
	}
	cfg.applyDefaults()

	reg, err := LoadRegistry(filepath.Join(cfg.RepoPath, servicesFile))
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if reg != nil {
		cfg.Services = reg.Services
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(c.RepoPath, "blobs")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.RepoPath, "photos.db")
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return errors.NewConfigError("config", "repo_path is required", nil)
	}
	switch c.Backend {
	case BackendFiles, BackendSQLite:
	default:
		return errors.NewConfigError("config", "backend must be files or sqlite, got "+string(c.Backend), nil)
	}
	if !c.DefaultVisibility.Valid() {
		return errors.NewConfigError("config", "default_visibility must be private, friends, or public", nil)
	}
	seen := make(map[string]bool, len(c.Services))
	for _, s := range c.Services {
		if !photos.ValidServiceKey(s.Key) {
			return errors.NewConfigError(servicesFile, "invalid service key "+s.Key, nil)
		}
		if seen[s.Key] {
			return errors.NewConfigError(servicesFile, "duplicate service key "+s.Key, nil)
		}
		seen[s.Key] = true
	}
	return nil
}

// Service returns the configuration for one service key.
func (c *Config) Service(key string) (Service, bool) {
	for _, s := range c.Services {
		if s.Key == key {
			return s, true
		}
	}
	return Service{}, false
}

// LoadRegistry parses a services.yaml file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("service registry", path)
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, errors.NewConfigError(servicesFile, "parsing", err)
	}
	return &reg, nil
}

// WriteRegistry writes a services.yaml file, used by repository scaffolding.
func WriteRegistry(path string, reg *Registry) error {
	raw, err := yaml.Marshal(reg)
	if err != nil {
		return errors.NewConfigError(servicesFile, "encoding", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
