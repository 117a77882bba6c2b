package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigFile is read from the working directory when --config is
// not given.
const DefaultConfigFile = "sensorq.toml"

// Config holds the defaults for the global flags. Flags given on the
// command line override it.
type Config struct {
	// Catalog is a CUE file or directory, or "sample" for the built-in
	// catalog. A relative path is resolved against the config file.
	Catalog string `toml:"catalog"`

	// Type is the element type queried.
	Type string `toml:"type"`

	// Source names the queried collection.
	Source string `toml:"source"`

	// Strict selects strict translation.
	Strict bool `toml:"strict"`

	// Format is the output format: text or json.
	Format string `toml:"format"`

	// Concurrent is the number of requests fetched in parallel.
	Concurrent int `toml:"concurrent"`

	// MaxRequests bounds OR splits. Zero keeps the translator default.
	MaxRequests int `toml:"max_requests"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Catalog:    "sample",
		Type:       "Sensor",
		Source:     "Sensors",
		Format:     "text",
		Concurrent: 4,
	}
}

// LoadConfig reads a TOML config file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if cfg.Catalog != "sample" && cfg.Catalog != "" && !filepath.IsAbs(cfg.Catalog) {
		cfg.Catalog = filepath.Join(filepath.Dir(path), cfg.Catalog)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if !isValidFormat(c.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", c.Format, ValidFormats)
	}
	if c.Concurrent < 1 {
		return fmt.Errorf("concurrent must be at least 1, got %d", c.Concurrent)
	}
	if c.MaxRequests < 0 {
		return fmt.Errorf("max_requests must be non-negative, got %d", c.MaxRequests)
	}
	return nil
}

// findConfig returns the config file to read: the explicit path, or
// DefaultConfigFile when it exists, or "".
func findConfig(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}
