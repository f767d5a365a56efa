package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Assignment policy names accepted by assignment_policy.
const (
	PolicyGreedy   = "greedy"
	PolicyOneToOne = "one_to_one"
)

// TuningConfig is the JSON configuration of an inference pipeline. Every
// field is optional; the Get* accessors supply defaults for omitted keys.
type TuningConfig struct {
	// Scheduling
	Enabled      *bool `json:"enabled,omitempty"`
	Capacity     *int  `json:"capacity,omitempty"`
	QueueEnabled *bool `json:"queue_enabled,omitempty"`
	CacheSize    *int  `json:"cache_size,omitempty"`

	// Suppression
	NMSEnabled       *bool    `json:"nms_enabled,omitempty"`
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty"`
	ClassAwareNMS    *bool    `json:"class_aware_nms,omitempty"`

	// Tracking
	MaxTrackingDistance *float64 `json:"max_tracking_distance,omitempty"`
	MaxTrackAge         *string  `json:"max_track_age,omitempty"`  // duration string like "300s"
	PruneInterval       *string  `json:"prune_interval,omitempty"` // duration string like "30s"
	AssignmentPolicy    *string  `json:"assignment_policy,omitempty"`

	// Results
	DefaultTimeout   *string `json:"default_timeout,omitempty"`
	FailOnEmpty      *bool   `json:"fail_on_empty,omitempty"`
	SubscriberBuffer *int    `json:"subscriber_buffer,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated with its
// default value.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Enabled:             ptrBool(true),
		Capacity:            ptrInt(4),
		QueueEnabled:        ptrBool(true),
		CacheSize:           ptrInt(256),
		NMSEnabled:          ptrBool(true),
		OverlapThreshold:    ptrFloat64(0.5),
		ClassAwareNMS:       ptrBool(true),
		MaxTrackingDistance: ptrFloat64(0.1),
		MaxTrackAge:         ptrString("300s"),
		PruneInterval:       ptrString("30s"),
		AssignmentPolicy:    ptrString(PolicyOneToOne),
		DefaultTimeout:      ptrString("30s"),
		FailOnEmpty:         ptrBool(false),
		SubscriberBuffer:    ptrInt(64),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to defaults through the Get* accessors.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
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

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Capacity != nil && *c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", *c.Capacity)
	}
	if c.CacheSize != nil && *c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", *c.CacheSize)
	}
	if c.OverlapThreshold != nil {
		if *c.OverlapThreshold < 0 || *c.OverlapThreshold > 1 {
			return fmt.Errorf("overlap_threshold must be between 0 and 1, got %f", *c.OverlapThreshold)
		}
	}
	if c.MaxTrackingDistance != nil && *c.MaxTrackingDistance <= 0 {
		return fmt.Errorf("max_tracking_distance must be positive, got %f", *c.MaxTrackingDistance)
	}
	if c.SubscriberBuffer != nil && *c.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber_buffer must be non-negative, got %d", *c.SubscriberBuffer)
	}
	if c.AssignmentPolicy != nil {
		switch *c.AssignmentPolicy {
		case PolicyGreedy, PolicyOneToOne:
		default:
			return fmt.Errorf("assignment_policy must be %q or %q, got %q", PolicyGreedy, PolicyOneToOne, *c.AssignmentPolicy)
		}
	}

	durations := []struct {
		key string
		val *string
	}{
		{"max_track_age", c.MaxTrackAge},
		{"prune_interval", c.PruneInterval},
		{"default_timeout", c.DefaultTimeout},
	}
	for _, d := range durations {
		if d.val == nil || *d.val == "" {
			continue
		}
		v, err := time.ParseDuration(*d.val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.key, *d.val, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.key, *d.val)
		}
	}

	return nil
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetEnabled returns the enabled value or the default.
func (c *TuningConfig) GetEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetCapacity returns the capacity value or the default.
func (c *TuningConfig) GetCapacity() int {
	if c.Capacity == nil {
		return 4
	}
	return *c.Capacity
}

// GetQueueEnabled returns the queue_enabled value or the default.
func (c *TuningConfig) GetQueueEnabled() bool {
	if c.QueueEnabled == nil {
		return true
	}
	return *c.QueueEnabled
}

// GetCacheSize returns the cache_size value or the default.
func (c *TuningConfig) GetCacheSize() int {
	if c.CacheSize == nil {
		return 256
	}
	return *c.CacheSize
}

// GetNMSEnabled returns the nms_enabled value or the default.
func (c *TuningConfig) GetNMSEnabled() bool {
	if c.NMSEnabled == nil {
		return true
	}
	return *c.NMSEnabled
}

// GetOverlapThreshold returns the overlap_threshold value or the default.
func (c *TuningConfig) GetOverlapThreshold() float64 {
	if c.OverlapThreshold == nil {
		return 0.5
	}
	return *c.OverlapThreshold
}

// GetClassAwareNMS returns the class_aware_nms value or the default.
func (c *TuningConfig) GetClassAwareNMS() bool {
	if c.ClassAwareNMS == nil {
		return true
	}
	return *c.ClassAwareNMS
}

// GetMaxTrackingDistance returns the max_tracking_distance value or the default.
func (c *TuningConfig) GetMaxTrackingDistance() float64 {
	if c.MaxTrackingDistance == nil {
		return 0.1
	}
	return *c.MaxTrackingDistance
}

// GetMaxTrackAge parses and returns max_track_age as a time.Duration.
func (c *TuningConfig) GetMaxTrackAge() time.Duration {
	return parseDurationOr(c.MaxTrackAge, 300*time.Second)
}

// GetPruneInterval parses and returns prune_interval as a time.Duration.
// Zero disables the periodic sweep.
func (c *TuningConfig) GetPruneInterval() time.Duration {
	return parseDurationOr(c.PruneInterval, 30*time.Second)
}

// GetAssignmentPolicy returns the assignment_policy value or the default.
func (c *TuningConfig) GetAssignmentPolicy() string {
	if c.AssignmentPolicy == nil || *c.AssignmentPolicy == "" {
		return PolicyOneToOne
	}
	return *c.AssignmentPolicy
}

// GetDefaultTimeout parses and returns default_timeout as a time.Duration.
// Zero means requests without their own timeout never time out.
func (c *TuningConfig) GetDefaultTimeout() time.Duration {
	return parseDurationOr(c.DefaultTimeout, 30*time.Second)
}

// GetFailOnEmpty returns the fail_on_empty value or the default.
func (c *TuningConfig) GetFailOnEmpty() bool {
	if c.FailOnEmpty == nil {
		return false
	}
	return *c.FailOnEmpty
}

// GetSubscriberBuffer returns the subscriber_buffer value or the default.
func (c *TuningConfig) GetSubscriberBuffer() int {
	if c.SubscriberBuffer == nil {
		return 64
	}
	return *c.SubscriberBuffer
}
