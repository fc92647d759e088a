package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/switchboard/xtime"
)

// Config represents the application configuration, backed by a filesystem for
// persistence.
type Config struct {
	Server Server
	Routes Routes
	Cache  Cache

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}

	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	// Ensure that unmarshalling JSON doesn't fail if the file doesn't exist or is empty.
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Save writes the current configuration to the filesystem as JSON.
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed serializing configuration data: %w", err)
	}
	if err = vfs.WriteFile(c.fs, c.path, configJSON, 0o644); err != nil {
		return fmt.Errorf("failed writing configuration file: %w", err)
	}

	return nil
}

// Server defines configuration options specific to the HTTP server.
type Server struct {
	// Address is the network address in [host]:port format the server will listen on.
	Address sql.Null[string] `json:"address"`
	// BasePath is the path prefix stripped from request paths before routing.
	BasePath sql.Null[string] `json:"base_path"`
	// EntryPoint is the value of the eID query parameter that selects query
	// based routing, where the route is read from the route parameter.
	EntryPoint sql.Null[string] `json:"entry_point"`
	// DefaultMaxAge is the Cache-Control max-age of responses to requests made
	// without credentials. It serializes from/to xtime.Duration string values.
	DefaultMaxAge sql.Null[time.Duration] `json:"default_max_age"`
	// AuthHeader is the request header that carries the credential.
	AuthHeader sql.Null[string] `json:"auth_header"`
	// TrustedProxies are IP addresses, CIDR prefixes or ranges of reverse
	// proxies whose X-Forwarded-For header is honored.
	TrustedProxies []string `json:"trusted_proxies"`
	// Metrics enables the Prometheus metrics endpoint.
	Metrics sql.Null[bool] `json:"metrics"`
}

// Routes defines where the route table is loaded from.
type Routes struct {
	// File is the path to the YAML route file.
	File sql.Null[string] `json:"file"`
}

// CacheBackend is the storage used for cached handler output.
type CacheBackend string

// Supported cache backends.
const (
	CacheBackendDB     CacheBackend = "db"
	CacheBackendMemory CacheBackend = "memory"
)

// CacheBackendFromString parses a cache backend name.
func CacheBackendFromString(s string) (CacheBackend, error) {
	switch cb := CacheBackend(s); cb {
	case CacheBackendDB, CacheBackendMemory:
		return cb, nil
	default:
		return "", fmt.Errorf("invalid cache backend '%s'", s)
	}
}

// Cache defines configuration options of the handler output cache and its
// invalidation queue.
type Cache struct {
	// Backend is the cache storage.
	Backend sql.Null[CacheBackend] `json:"backend"`
	// MemorySize is the maximum number of entries kept by the memory backend.
	MemorySize sql.Null[int] `json:"memory_size"`
	// TTL is the lifetime of cached entries. Zero means entries only expire
	// when they're invalidated.
	TTL sql.Null[time.Duration] `json:"ttl"`
	// GracePeriod is the time a queued tag waits before it's flushed by a sweep.
	GracePeriod sql.Null[time.Duration] `json:"grace_period"`
	// SweepInterval is the time between two sweeps of the invalidation queue.
	// Zero disables the in-process sweeper.
	SweepInterval sql.Null[time.Duration] `json:"sweep_interval"`
}

type cfgWrapper struct {
	Server srvCfgWrapper    `json:"server"`
	Routes routesCfgWrapper `json:"routes"`
	Cache  cacheCfgWrapper  `json:"cache"`
}
type srvCfgWrapper struct {
	Address        string   `json:"address,omitempty"`
	BasePath       string   `json:"base_path,omitempty"`
	EntryPoint     string   `json:"entry_point,omitempty"`
	DefaultMaxAge  string   `json:"default_max_age,omitempty"`
	AuthHeader     string   `json:"auth_header,omitempty"`
	TrustedProxies []string `json:"trusted_proxies,omitempty"`
	Metrics        *bool    `json:"metrics,omitempty"`
}
type routesCfgWrapper struct {
	File string `json:"file,omitempty"`
}
type cacheCfgWrapper struct {
	Backend       string `json:"backend,omitempty"`
	MemorySize    int    `json:"memory_size,omitempty"`
	TTL           string `json:"ttl,omitempty"`
	GracePeriod   string `json:"grace_period,omitempty"`
	SweepInterval string `json:"sweep_interval,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{}

	if c.Server.Address.Valid {
		w.Server.Address = c.Server.Address.V
	}
	if c.Server.BasePath.Valid {
		w.Server.BasePath = c.Server.BasePath.V
	}
	if c.Server.EntryPoint.Valid {
		w.Server.EntryPoint = c.Server.EntryPoint.V
	}
	if c.Server.DefaultMaxAge.Valid {
		w.Server.DefaultMaxAge = xtime.FormatDuration(c.Server.DefaultMaxAge.V, time.Second)
	}
	if c.Server.AuthHeader.Valid {
		w.Server.AuthHeader = c.Server.AuthHeader.V
	}
	w.Server.TrustedProxies = c.Server.TrustedProxies
	if c.Server.Metrics.Valid {
		w.Server.Metrics = &c.Server.Metrics.V
	}

	if c.Routes.File.Valid {
		w.Routes.File = c.Routes.File.V
	}

	if c.Cache.Backend.Valid {
		w.Cache.Backend = string(c.Cache.Backend.V)
	}
	if c.Cache.MemorySize.Valid {
		w.Cache.MemorySize = c.Cache.MemorySize.V
	}
	if c.Cache.TTL.Valid {
		w.Cache.TTL = xtime.FormatDuration(c.Cache.TTL.V, time.Second)
	}
	if c.Cache.GracePeriod.Valid {
		w.Cache.GracePeriod = xtime.FormatDuration(c.Cache.GracePeriod.V, time.Second)
	}
	if c.Cache.SweepInterval.Valid {
		w.Cache.SweepInterval = xtime.FormatDuration(c.Cache.SweepInterval.V, time.Second)
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types and parse duration strings into time.Duration values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	if w.Server.Address != "" {
		c.Server.Address = sql.Null[string]{V: w.Server.Address, Valid: true}
	}
	if w.Server.BasePath != "" {
		c.Server.BasePath = sql.Null[string]{V: w.Server.BasePath, Valid: true}
	}
	if w.Server.EntryPoint != "" {
		c.Server.EntryPoint = sql.Null[string]{V: w.Server.EntryPoint, Valid: true}
	}
	if w.Server.DefaultMaxAge != "" {
		dur, err := xtime.ParseDuration(w.Server.DefaultMaxAge)
		if err != nil {
			return fmt.Errorf("failed parsing server's default max age: %w", err)
		}
		c.Server.DefaultMaxAge = sql.Null[time.Duration]{V: dur, Valid: true}
	}
	if w.Server.AuthHeader != "" {
		c.Server.AuthHeader = sql.Null[string]{V: w.Server.AuthHeader, Valid: true}
	}
	c.Server.TrustedProxies = w.Server.TrustedProxies
	if w.Server.Metrics != nil {
		c.Server.Metrics = sql.Null[bool]{V: *w.Server.Metrics, Valid: true}
	}

	if w.Routes.File != "" {
		c.Routes.File = sql.Null[string]{V: w.Routes.File, Valid: true}
	}

	if w.Cache.Backend != "" {
		cb, err := CacheBackendFromString(w.Cache.Backend)
		if err != nil {
			return err
		}
		c.Cache.Backend = sql.Null[CacheBackend]{V: cb, Valid: true}
	}
	if w.Cache.MemorySize > 0 {
		c.Cache.MemorySize = sql.Null[int]{V: w.Cache.MemorySize, Valid: true}
	}
	durations := []struct {
		name   string
		value  string
		target *sql.Null[time.Duration]
	}{
		{"cache TTL", w.Cache.TTL, &c.Cache.TTL},
		{"cache grace period", w.Cache.GracePeriod, &c.Cache.GracePeriod},
		{"cache sweep interval", w.Cache.SweepInterval, &c.Cache.SweepInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		dur, err := xtime.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("failed parsing %s: %w", d.name, err)
		}
		*d.target = sql.Null[time.Duration]{V: dur, Valid: true}
	}

	return nil
}

// SetDefaults sets default configuration values if they weren't set already.
func (c *Config) SetDefaults() {
	if !c.Server.Address.Valid {
		c.Server.Address = sql.Null[string]{V: ":8080", Valid: true}
	}
	if !c.Server.BasePath.Valid {
		c.Server.BasePath = sql.Null[string]{V: "/", Valid: true}
	}
	if !c.Server.DefaultMaxAge.Valid {
		c.Server.DefaultMaxAge = sql.Null[time.Duration]{V: 24 * time.Hour, Valid: true}
	}
	if !c.Server.AuthHeader.Valid {
		c.Server.AuthHeader = sql.Null[string]{V: "X-Authorization", Valid: true}
	}
	if !c.Cache.Backend.Valid {
		c.Cache.Backend = sql.Null[CacheBackend]{V: CacheBackendDB, Valid: true}
	}
	if !c.Cache.MemorySize.Valid {
		c.Cache.MemorySize = sql.Null[int]{V: 10000, Valid: true}
	}
	if !c.Cache.TTL.Valid {
		c.Cache.TTL = sql.Null[time.Duration]{V: 24 * time.Hour, Valid: true}
	}
	if !c.Cache.GracePeriod.Valid {
		c.Cache.GracePeriod = sql.Null[time.Duration]{V: 10 * time.Minute, Valid: true}
	}
	if !c.Cache.SweepInterval.Valid {
		c.Cache.SweepInterval = sql.Null[time.Duration]{V: time.Minute, Valid: true}
	}
}
