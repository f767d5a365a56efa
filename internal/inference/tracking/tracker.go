package tracking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/capability-pipeline/internal/geometry"
	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/timeutil"
)

// AssignmentPolicy selects how detections in one frame compete for tracks.
type AssignmentPolicy string

const (
	PolicyGreedy   AssignmentPolicy = "greedy"
	PolicyOneToOne AssignmentPolicy = "one_to_one"
)

const (
	// DefaultMaxTrackingDistance is the association gate in normalized
	// image space.
	DefaultMaxTrackingDistance = 0.1
	// DefaultMaxTrackAge is how long a track survives without a match.
	DefaultMaxTrackAge = 300 * time.Second
	// DefaultHistoryLength is the number of samples kept per track.
	DefaultHistoryLength = 10
)

// Config holds tracker parameters.
type Config struct {
	MaxTrackingDistance float64          // Gate on centre distance; strict
	MaxTrackAge         time.Duration    // Prune tracks idle longer than this
	HistoryLength       int              // Samples kept per track
	Policy              AssignmentPolicy // Association policy
}

// DefaultConfig returns image-relative tracking defaults.
func DefaultConfig() Config {
	return Config{
		MaxTrackingDistance: DefaultMaxTrackingDistance,
		MaxTrackAge:         DefaultMaxTrackAge,
		HistoryLength:       DefaultHistoryLength,
		Policy:              PolicyOneToOne,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTrackingDistance <= 0 {
		c.MaxTrackingDistance = d.MaxTrackingDistance
	}
	if c.MaxTrackAge <= 0 {
		c.MaxTrackAge = d.MaxTrackAge
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = d.HistoryLength
	}
	if c.Policy != PolicyGreedy && c.Policy != PolicyOneToOne {
		c.Policy = d.Policy
	}
	return c
}

// Sample is one observation appended to a track.
type Sample struct {
	Position   geometry.Point `json:"position"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Track is a persistent identity.
type Track struct {
	ID        string
	Label     string
	SessionID string
	State     inference.TrackingState
	History   []Sample
	FirstSeen time.Time
	LastSeen  time.Time
	Hits      int

	seq int64
}

// Position returns the most recent sample position.
func (tr *Track) Position() geometry.Point {
	if len(tr.History) == 0 {
		return geometry.Point{}
	}
	return tr.History[len(tr.History)-1].Position
}

func (tr *Track) snapshot() Track {
	out := *tr
	out.History = make([]Sample, len(tr.History))
	copy(out.History, tr.History)
	return out
}

// Tracker owns every live track. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	tracks  map[string]*Track
	config  Config
	clock   timeutil.Clock
	nextSeq int64

	created int
	pruned  int
}

// NewTracker creates a tracker. A nil clock uses the wall clock.
func NewTracker(config Config, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		tracks: make(map[string]*Track),
		config: config.withDefaults(),
		clock:  clock,
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// Update associates one frame of detections with tracks in sessionID and
// returns copies of objects with TrackingID and TrackingState filled in.
// Only tracks that existed before this frame are candidates.
func (t *Tracker) Update(sessionID string, objects []inference.DetectedObject) []inference.DetectedObject {
	if len(objects) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	out := make([]inference.DetectedObject, len(objects))
	copy(out, objects)

	candidates := t.liveTracks(sessionID)

	var matches []int
	switch t.config.Policy {
	case PolicyGreedy:
		matches = t.associateGreedy(out, candidates)
	default:
		matches = t.associateOneToOne(out, candidates)
	}

	for i := range out {
		if ti := matches[i]; ti >= 0 {
			track := candidates[ti]
			t.observe(track, out[i], now)
			track.State = inference.TrackingTracked
			out[i].TrackingID = track.ID
			out[i].TrackingState = inference.TrackingTracked
			continue
		}
		track := t.initTrack(sessionID, out[i], now)
		out[i].TrackingID = track.ID
		out[i].TrackingState = inference.TrackingNew
	}
	return out
}

// liveTracks returns the session's tracks in creation order so association
// is deterministic.
func (t *Tracker) liveTracks(sessionID string) []*Track {
	live := make([]*Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		if track.SessionID == sessionID && track.State != inference.TrackingLost {
			live = append(live, track)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })
	return live
}

// gate returns the centre distance between obj and track, and whether the
// pair may be associated at all.
func (t *Tracker) gate(obj inference.DetectedObject, track *Track) (float64, bool) {
	if obj.Label != track.Label {
		return 0, false
	}
	d := geometry.Distance(obj.Center(), track.Position())
	return d, d < t.config.MaxTrackingDistance
}

// associateGreedy picks, for each detection independently, the nearest
// gated track. Several detections may pick the same track.
func (t *Tracker) associateGreedy(objects []inference.DetectedObject, candidates []*Track) []int {
	matches := make([]int, len(objects))
	for i, obj := range objects {
		matches[i] = -1
		best := t.config.MaxTrackingDistance
		for ti, track := range candidates {
			d, ok := t.gate(obj, track)
			if ok && d < best {
				best = d
				matches[i] = ti
			}
		}
	}
	return matches
}

// associateOneToOne minimises total centre distance over all gated pairs so
// that every track is claimed by at most one detection.
func (t *Tracker) associateOneToOne(objects []inference.DetectedObject, candidates []*Track) []int {
	if len(candidates) == 0 {
		matches := make([]int, len(objects))
		for i := range matches {
			matches[i] = -1
		}
		return matches
	}

	cost := make([][]float64, len(objects))
	for i, obj := range objects {
		cost[i] = make([]float64, len(candidates))
		for ti, track := range candidates {
			if d, ok := t.gate(obj, track); ok {
				cost[i][ti] = d
			} else {
				cost[i][ti] = forbiddenCost
			}
		}
	}
	return assignMinCost(cost)
}

func (t *Tracker) observe(track *Track, obj inference.DetectedObject, now time.Time) {
	track.History = append(track.History, Sample{
		Position:   obj.Center(),
		Confidence: obj.Confidence,
		Timestamp:  now,
	})
	if over := len(track.History) - t.config.HistoryLength; over > 0 {
		track.History = append(track.History[:0], track.History[over:]...)
	}
	track.LastSeen = now
	track.Hits++
}

// initTrack creates a track from an unmatched detection. IDs are UUIDs so
// they are never reused across resets or restarts.
func (t *Tracker) initTrack(sessionID string, obj inference.DetectedObject, now time.Time) *Track {
	t.nextSeq++
	track := &Track{
		ID:        fmt.Sprintf("trk_%s", uuid.NewString()),
		Label:     obj.Label,
		SessionID: sessionID,
		State:     inference.TrackingNew,
		History: []Sample{{
			Position:   obj.Center(),
			Confidence: obj.Confidence,
			Timestamp:  now,
		}},
		FirstSeen: now,
		LastSeen:  now,
		Hits:      1,
		seq:       t.nextSeq,
	}
	t.tracks[track.ID] = track
	t.created++
	return track
}

// Prune removes tracks idle for longer than MaxTrackAge as of now and
// returns them marked lost.
func (t *Tracker) Prune(now time.Time) []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Track
	for id, track := range t.tracks {
		if now.Sub(track.LastSeen) <= t.config.MaxTrackAge {
			continue
		}
		track.State = inference.TrackingLost
		removed = append(removed, track.snapshot())
		delete(t.tracks, id)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].seq < removed[j].seq })
	t.pruned += len(removed)
	return removed
}

// Tracks returns a snapshot of all live tracks in creation order. History
// slices are copied so callers may read them without holding the lock.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, track.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Track returns a snapshot of one track.
func (t *Tracker) Track(id string) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	track, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return track.snapshot(), true
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Reset drops every track and counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[string]*Track)
	t.created = 0
	t.pruned = 0
}

// Counts returns how many tracks were created and pruned since the last
// Reset.
func (t *Tracker) Counts() (created, pruned int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.created, t.pruned
}
