// Package config loads the sortline tuning file. All fields are optional
// pointers so a partial JSON file is safe: the Get* accessors supply the
// canonical defaults for anything omitted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConfigPath is the canonical location of the tuning file relative to
// the working directory.
const DefaultConfigPath = "config/sortline.json"

// ConfigPathEnv names the environment variable that overrides the tuning
// file location. A .env file in the working directory is honoured.
const ConfigPathEnv = "SORTLINE_CONFIG"

// TuningConfig is the root tuning document for the session core.
type TuningConfig struct {
	// Session workflow params
	SessionTimeout       *string `json:"session_timeout,omitempty"` // duration string like "30s"
	SweepInterval        *string `json:"sweep_interval,omitempty"`  // duration string like "5s"
	MaxSessionsPerCamera *int    `json:"max_sessions_per_camera,omitempty"`
	CompletedCacheSize   *int    `json:"completed_cache_size,omitempty"`
	ErrorLedgerSize      *int    `json:"error_ledger_size,omitempty"`
	PerfSampleLimit      *int    `json:"perf_sample_limit,omitempty"`

	// Overlap engine params
	DefaultOverlapThreshold *float64 `json:"default_overlap_threshold,omitempty"`
	OverlapCacheTTL         *string  `json:"overlap_cache_ttl,omitempty"` // duration string like "1s"
	OverlapCacheSize        *int     `json:"overlap_cache_size,omitempty"`
	OverlapHistoryLength    *int     `json:"overlap_history_length,omitempty"`

	// ROI registry persistence
	RegistryPath *string `json:"registry_path,omitempty"`

	// Defect size calibration
	BoardWidthMM    *float64           `json:"board_width_mm,omitempty"`
	CameraPixelToMM map[string]float64 `json:"camera_pixel_to_mm,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// ResolveConfigPath returns the tuning file path, applying the .env file and
// the SORTLINE_CONFIG environment variable before falling back to
// DefaultConfigPath.
func ResolveConfigPath() string {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadTuningConfig loads and validates a TuningConfig from a JSON file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set fields carry usable values.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"session_timeout":   c.SessionTimeout,
		"sweep_interval":    c.SweepInterval,
		"overlap_cache_ttl": c.OverlapCacheTTL,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}

	if c.DefaultOverlapThreshold != nil {
		if *c.DefaultOverlapThreshold < 0 || *c.DefaultOverlapThreshold > 1 {
			return fmt.Errorf("default_overlap_threshold must be between 0 and 1, got %f", *c.DefaultOverlapThreshold)
		}
	}

	positives := map[string]*int{
		"max_sessions_per_camera": c.MaxSessionsPerCamera,
		"completed_cache_size":    c.CompletedCacheSize,
		"error_ledger_size":       c.ErrorLedgerSize,
		"perf_sample_limit":       c.PerfSampleLimit,
		"overlap_cache_size":      c.OverlapCacheSize,
		"overlap_history_length":  c.OverlapHistoryLength,
	}
	for name, v := range positives {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.BoardWidthMM != nil && *c.BoardWidthMM <= 0 {
		return fmt.Errorf("board_width_mm must be positive, got %f", *c.BoardWidthMM)
	}
	for camera, factor := range c.CameraPixelToMM {
		if factor <= 0 {
			return fmt.Errorf("camera_pixel_to_mm[%s] must be positive, got %f", camera, factor)
		}
	}

	return nil
}

// GetSessionTimeout returns the session_timeout value or the default.
func (c *TuningConfig) GetSessionTimeout() time.Duration {
	return c.getDuration(c.SessionTimeout, 30*time.Second)
}

// GetSweepInterval returns the sweep_interval value or the default.
func (c *TuningConfig) GetSweepInterval() time.Duration {
	return c.getDuration(c.SweepInterval, 5*time.Second)
}

// GetOverlapCacheTTL returns the overlap_cache_ttl value or the default.
func (c *TuningConfig) GetOverlapCacheTTL() time.Duration {
	return c.getDuration(c.OverlapCacheTTL, time.Second)
}

func (c *TuningConfig) getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetMaxSessionsPerCamera returns the max_sessions_per_camera value or the default.
func (c *TuningConfig) GetMaxSessionsPerCamera() int {
	if c.MaxSessionsPerCamera == nil {
		return 5
	}
	return *c.MaxSessionsPerCamera
}

// GetCompletedCacheSize returns the completed_cache_size value or the default.
func (c *TuningConfig) GetCompletedCacheSize() int {
	if c.CompletedCacheSize == nil {
		return 256
	}
	return *c.CompletedCacheSize
}

// GetErrorLedgerSize returns the error_ledger_size value or the default.
func (c *TuningConfig) GetErrorLedgerSize() int {
	if c.ErrorLedgerSize == nil {
		return 50
	}
	return *c.ErrorLedgerSize
}

// GetPerfSampleLimit returns the perf_sample_limit value or the default.
func (c *TuningConfig) GetPerfSampleLimit() int {
	if c.PerfSampleLimit == nil {
		return 512
	}
	return *c.PerfSampleLimit
}

// GetDefaultOverlapThreshold returns the default_overlap_threshold value or the default.
func (c *TuningConfig) GetDefaultOverlapThreshold() float64 {
	if c.DefaultOverlapThreshold == nil {
		return 0.3
	}
	return *c.DefaultOverlapThreshold
}

// GetOverlapCacheSize returns the overlap_cache_size value or the default.
func (c *TuningConfig) GetOverlapCacheSize() int {
	if c.OverlapCacheSize == nil {
		return 4096
	}
	return *c.OverlapCacheSize
}

// GetOverlapHistoryLength returns the overlap_history_length value or the default.
func (c *TuningConfig) GetOverlapHistoryLength() int {
	if c.OverlapHistoryLength == nil {
		return 100
	}
	return *c.OverlapHistoryLength
}

// GetRegistryPath returns the registry_path value or the default.
func (c *TuningConfig) GetRegistryPath() string {
	if c.RegistryPath == nil || *c.RegistryPath == "" {
		return "config/roi_registry.json"
	}
	return *c.RegistryPath
}

// GetBoardWidthMM returns the board_width_mm value or the default reference
// board width used for percentage-of-width defect measurements.
func (c *TuningConfig) GetBoardWidthMM() float64 {
	if c.BoardWidthMM == nil {
		return 115
	}
	return *c.BoardWidthMM
}

// GetCameraPixelToMM returns the calibration factor for a camera, falling
// back to the stock factors for the top and bottom cameras.
func (c *TuningConfig) GetCameraPixelToMM(camera string) float64 {
	if f, ok := c.CameraPixelToMM[camera]; ok {
		return f
	}
	switch camera {
	case "bottom_camera":
		return 0.3
	default:
		return 0.4
	}
}
