package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/inference/tracking"
	"github.com/banshee-data/capability-pipeline/internal/monitoring"
	"github.com/banshee-data/capability-pipeline/internal/timeutil"
)

// Detector runs inference on one payload. Implementations must be safe for
// concurrent use; the pipeline calls Detect from up to Capacity goroutines.
type Detector interface {
	Detect(ctx context.Context, payload inference.Payload, modelID string, opts inference.Options) ([]inference.DetectedObject, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, payload inference.Payload, modelID string, opts inference.Options) ([]inference.DetectedObject, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, payload inference.Payload, modelID string, opts inference.Options) ([]inference.DetectedObject, error) {
	return f(ctx, payload, modelID, opts)
}

// Recorder receives pipeline metrics. *monitoring.Collector implements it.
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheInsert()
	RecordAdmitted()
	RecordQueued()
	RecordRejected()
	RecordCancelled()
	RecordSuccess(d time.Duration, objects int)
	RecordFailure(reason string, d time.Duration)
	RecordDroppedPublish()
	RecordPrunedTracks(n int)
	RecordDrainFailure()
}

var _ Recorder = (*monitoring.Collector)(nil)

// PersistenceSink stores completed results and expired tracks. Errors are
// logged and never fail the request.
type PersistenceSink interface {
	RecordResult(res inference.Result) error
	RecordPrunedTracks(tracks []tracking.Track) error
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithClock injects the clock used for timestamps, deadlines and pruning.
func WithClock(clock timeutil.Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithRecorder replaces the default in-process metrics collector.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithSink attaches a persistence sink.
func WithSink(s PersistenceSink) Option {
	return func(p *Pipeline) { p.sink = s }
}
