package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorq.toml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sample", cfg.Catalog)
	assert.Equal(t, "Sensor", cfg.Type)
	assert.Equal(t, "Sensors", cfg.Source)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, 4, cfg.Concurrent)
	assert.False(t, cfg.Strict)
	assert.Zero(t, cfg.MaxRequests)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "sensorq.toml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "..", "..", "harness", "testdata", "catalog", "probes.cue"), cfg.Catalog)
	assert.Equal(t, "Probe", cfg.Type)
	assert.Equal(t, "Probes", cfg.Source)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, 2, cfg.Concurrent)
	assert.Equal(t, 8, cfg.MaxRequests)
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `strict = true`))
	require.NoError(t, err)

	assert.True(t, cfg.Strict)
	assert.Equal(t, "sample", cfg.Catalog)
	assert.Equal(t, "Sensor", cfg.Type)
	assert.Equal(t, 4, cfg.Concurrent)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unknown key", "strict = true\ncolour = \"red\"\n", "unknown keys: colour"},
		{"bad format", `format = "yaml"`, `invalid format "yaml"`},
		{"bad concurrency", `concurrent = 0`, "concurrent must be at least 1"},
		{"negative max requests", `max_requests = -1`, "max_requests must be non-negative"},
		{"syntax", `strict = `, "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
