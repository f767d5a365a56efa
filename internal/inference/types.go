package inference

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/capability-pipeline/internal/geometry"
)

// Priority orders queued requests. Higher values are drained first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Priorities lists all levels from highest to lowest.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// TrackingState is the lifecycle state of a tracked identity.
type TrackingState string

const (
	TrackingNone    TrackingState = ""
	TrackingNew     TrackingState = "new"     // First frame of a track
	TrackingTracked TrackingState = "tracked" // Matched to an existing track
	TrackingLost    TrackingState = "lost"    // Stale, about to be pruned
	TrackingMerged  TrackingState = "merged"  // Reserved; never set by the tracker
)

// Payload is an opaque image handle handed through to the Detector.
// Content is hashed into the cache fingerprint.
type Payload interface {
	Content() []byte
}

// BytesPayload is a Payload backed by an in-memory byte slice.
type BytesPayload []byte

// Content returns the raw bytes.
func (b BytesPayload) Content() []byte { return b }

// Options tune a single detection request.
type Options struct {
	MinConfidence     float64
	MaxObjects        int             // 0 means unbounded
	RegionOfInterest  *geometry.Rect  // nil means full frame
	ObjectTypes       map[string]bool // empty means no filter
	EnableTracking    bool
	TrackingSessionID string // empty means the shared default namespace
}

// AllowsLabel reports whether label passes the ObjectTypes filter.
func (o Options) AllowsLabel(label string) bool {
	if len(o.ObjectTypes) == 0 {
		return true
	}
	return o.ObjectTypes[label]
}

// Request is a single unit of work for the pipeline. Requests are treated as
// immutable once submitted.
type Request struct {
	ID          string
	Payload     Payload
	ModelID     string // empty means the built-in detector
	Options     Options
	Priority    Priority // zero value is PriorityLow; NewRequest uses PriorityNormal
	SubmittedAt time.Time
	Timeout     time.Duration // 0 means the pipeline default
}

// NewRequest builds a Normal-priority request with a fresh UUID.
func NewRequest(payload Payload, opts Options) Request {
	return Request{
		ID:          uuid.NewString(),
		Payload:     payload,
		Options:     opts,
		Priority:    PriorityNormal,
		SubmittedAt: time.Now(),
	}
}

// Validate checks the fields the pipeline depends on.
func (r Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty request id", ErrInvalidRequest)
	}
	if r.Payload == nil {
		return fmt.Errorf("%w: request %s has no payload", ErrInvalidRequest, r.ID)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: request %s has unknown priority %d", ErrInvalidRequest, r.ID, int(r.Priority))
	}
	if c := r.Options.MinConfidence; math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("%w: min confidence %f outside [0,1]", ErrInvalidRequest, r.Options.MinConfidence)
	}
	if r.Options.MaxObjects < 0 {
		return fmt.Errorf("%w: max objects must be non-negative, got %d", ErrInvalidRequest, r.Options.MaxObjects)
	}
	if roi := r.Options.RegionOfInterest; roi != nil && !roi.Valid() {
		return fmt.Errorf("%w: region of interest %+v outside the unit square", ErrInvalidRequest, *roi)
	}
	return nil
}

// DetectedObject is one detection in one frame.
type DetectedObject struct {
	Label         string
	Confidence    float64
	BoundingBox   geometry.Rect
	TrackingID    string
	TrackingState TrackingState
}

// Center returns the bounding box midpoint.
func (o DetectedObject) Center() geometry.Point { return o.BoundingBox.Center() }

// Area returns the bounding box area.
func (o DetectedObject) Area() float64 { return o.BoundingBox.Area() }

// Result is the outcome of one request. Results are immutable once published;
// callers receive copies.
type Result struct {
	RequestID string
	Objects   []DetectedObject
	Duration  time.Duration
	Success   bool
	Err       error
	Timestamp time.Time

	// FromCache is set on copies returned from a cache hit.
	FromCache bool
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	if r.Objects != nil {
		out.Objects = make([]DetectedObject, len(r.Objects))
		copy(out.Objects, r.Objects)
	}
	return out
}
