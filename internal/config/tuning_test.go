package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sortline.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	cfg := EmptyTuningConfig()
	assert.Equal(t, 30*time.Second, cfg.GetSessionTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetSweepInterval())
	assert.Equal(t, 5, cfg.GetMaxSessionsPerCamera())
	assert.Equal(t, time.Second, cfg.GetOverlapCacheTTL())
	assert.Equal(t, 4096, cfg.GetOverlapCacheSize())
	assert.Equal(t, 100, cfg.GetOverlapHistoryLength())
	assert.Equal(t, 256, cfg.GetCompletedCacheSize())
	assert.Equal(t, 50, cfg.GetErrorLedgerSize())
	assert.InDelta(t, 0.3, cfg.GetDefaultOverlapThreshold(), 1e-9)
	assert.InDelta(t, 115.0, cfg.GetBoardWidthMM(), 1e-9)
	assert.Equal(t, "config/roi_registry.json", cfg.GetRegistryPath())
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"session_timeout": "45s",
		"max_sessions_per_camera": 8,
		"camera_pixel_to_mm": {"side_camera": 0.25}
	}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.GetSessionTimeout())
	assert.Equal(t, 8, cfg.GetMaxSessionsPerCamera())
	// Omitted fields keep defaults.
	assert.Equal(t, 5*time.Second, cfg.GetSweepInterval())
	assert.InDelta(t, 0.25, cfg.GetCameraPixelToMM("side_camera"), 1e-9)
	assert.InDelta(t, 0.4, cfg.GetCameraPixelToMM("top_camera"), 1e-9)
	assert.InDelta(t, 0.3, cfg.GetCameraPixelToMM("bottom_camera"), 1e-9)
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sortline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadTuningConfig(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"bad duration", `{"sweep_interval": "not-a-duration"}`, true},
		{"threshold above one", `{"default_overlap_threshold": 1.5}`, true},
		{"negative limit", `{"max_sessions_per_camera": -1}`, true},
		{"zero cache", `{"overlap_cache_size": 0}`, true},
		{"bad calibration", `{"camera_pixel_to_mm": {"top_camera": 0}}`, true},
		{"all good", `{"session_timeout": "1m", "default_overlap_threshold": 0.5}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.json)
			_, err := LoadTuningConfig(path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	assert.Equal(t, DefaultConfigPath, ResolveConfigPath())

	t.Setenv(ConfigPathEnv, "/etc/sortline/tuning.json")
	assert.Equal(t, "/etc/sortline/tuning.json", ResolveConfigPath())
}
