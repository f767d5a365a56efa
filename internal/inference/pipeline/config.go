package pipeline

import (
	"time"

	"github.com/banshee-data/capability-pipeline/internal/config"
	"github.com/banshee-data/capability-pipeline/internal/inference/nms"
	"github.com/banshee-data/capability-pipeline/internal/inference/tracking"
)

// Config holds the runtime parameters of a Pipeline.
type Config struct {
	Enabled      bool
	Capacity     int  // Concurrent detections
	QueueEnabled bool // Queue overflow instead of rejecting it
	CacheSize    int  // Max cached results; 0 disables caching

	NMSEnabled bool
	NMS        nms.Config

	Tracking      tracking.Config
	PruneInterval time.Duration // 0 disables the periodic sweep

	DefaultTimeout   time.Duration // Applied when a request has none; 0 means none
	FailOnEmpty      bool          // Treat an empty detection as ErrNoResults
	SubscriberBuffer int           // Channel depth of each subscription
}

// DefaultConfig returns a pipeline configuration matching
// config.DefaultTuningConfig.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning converts a tuning file into a pipeline Config. A nil
// tuning config yields the defaults.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	if tc == nil {
		tc = config.EmptyTuningConfig()
	}
	return Config{
		Enabled:      tc.GetEnabled(),
		Capacity:     tc.GetCapacity(),
		QueueEnabled: tc.GetQueueEnabled(),
		CacheSize:    tc.GetCacheSize(),
		NMSEnabled:   tc.GetNMSEnabled(),
		NMS: nms.Config{
			OverlapThreshold: tc.GetOverlapThreshold(),
			ClassAware:       tc.GetClassAwareNMS(),
		},
		Tracking: tracking.Config{
			MaxTrackingDistance: tc.GetMaxTrackingDistance(),
			MaxTrackAge:         tc.GetMaxTrackAge(),
			HistoryLength:       tracking.DefaultHistoryLength,
			Policy:              tracking.AssignmentPolicy(tc.GetAssignmentPolicy()),
		},
		PruneInterval:    tc.GetPruneInterval(),
		DefaultTimeout:   tc.GetDefaultTimeout(),
		FailOnEmpty:      tc.GetFailOnEmpty(),
		SubscriberBuffer: tc.GetSubscriberBuffer(),
	}
}
