package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultLatencyWindow is the number of recent durations kept for quantiles.
const DefaultLatencyWindow = 1024

// Collector aggregates pipeline counters and detection latencies. It is safe
// for concurrent use.
type Collector struct {
	mu sync.Mutex

	cacheHits       uint64
	cacheMisses     uint64
	cacheInserts    uint64
	admitted        uint64
	queued          uint64
	rejected        uint64
	cancelled       uint64
	succeeded       uint64
	failed          uint64
	failures        map[string]uint64
	droppedPublish  uint64
	prunedTracks    uint64
	drainFailures   uint64
	objectsDetected uint64

	latencies []float64 // seconds, ring buffer
	next      int
	window    int
}

// NewCollector returns a collector keeping the last window latencies. A
// non-positive window uses DefaultLatencyWindow.
func NewCollector(window int) *Collector {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &Collector{
		failures:  make(map[string]uint64),
		latencies: make([]float64, 0, window),
		window:    window,
	}
}

func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

func (c *Collector) RecordCacheMiss() {
	c.mu.Lock()
	c.cacheMisses++
	c.mu.Unlock()
}

func (c *Collector) RecordCacheInsert() {
	c.mu.Lock()
	c.cacheInserts++
	c.mu.Unlock()
}

func (c *Collector) RecordAdmitted() {
	c.mu.Lock()
	c.admitted++
	c.mu.Unlock()
}

func (c *Collector) RecordQueued() {
	c.mu.Lock()
	c.queued++
	c.mu.Unlock()
}

func (c *Collector) RecordRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

func (c *Collector) RecordCancelled() {
	c.mu.Lock()
	c.cancelled++
	c.mu.Unlock()
}

// RecordSuccess counts a completed detection and its latency.
func (c *Collector) RecordSuccess(d time.Duration, objects int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.succeeded++
	c.objectsDetected += uint64(objects)
	c.observe(d)
}

// RecordFailure counts a failed detection under reason.
func (c *Collector) RecordFailure(reason string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
	c.failures[reason]++
	c.observe(d)
}

func (c *Collector) RecordDroppedPublish() {
	c.mu.Lock()
	c.droppedPublish++
	c.mu.Unlock()
}

func (c *Collector) RecordPrunedTracks(n int) {
	c.mu.Lock()
	c.prunedTracks += uint64(n)
	c.mu.Unlock()
}

func (c *Collector) RecordDrainFailure() {
	c.mu.Lock()
	c.drainFailures++
	c.mu.Unlock()
}

func (c *Collector) observe(d time.Duration) {
	if len(c.latencies) < c.window {
		c.latencies = append(c.latencies, d.Seconds())
		return
	}
	c.latencies[c.next] = d.Seconds()
	c.next = (c.next + 1) % c.window
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	CacheHits       uint64            `json:"cache_hits"`
	CacheMisses     uint64            `json:"cache_misses"`
	CacheInserts    uint64            `json:"cache_inserts"`
	Admitted        uint64            `json:"admitted"`
	Queued          uint64            `json:"queued"`
	Rejected        uint64            `json:"rejected"`
	Cancelled       uint64            `json:"cancelled"`
	Succeeded       uint64            `json:"succeeded"`
	Failed          uint64            `json:"failed"`
	Failures        map[string]uint64 `json:"failures"`
	DroppedPublish  uint64            `json:"dropped_publish"`
	PrunedTracks    uint64            `json:"pruned_tracks"`
	DrainFailures   uint64            `json:"drain_failures"`
	ObjectsDetected uint64            `json:"objects_detected"`

	LatencySamples int           `json:"latency_samples"`
	LatencyMean    time.Duration `json:"latency_mean"`
	LatencyP50     time.Duration `json:"latency_p50"`
	LatencyP95     time.Duration `json:"latency_p95"`
	LatencyMax     time.Duration `json:"latency_max"`
}

// HitRate returns cache hits over cache lookups, or 0 with no lookups.
func (s Snapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Snapshot returns the current counters and latency summary.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		CacheHits:       c.cacheHits,
		CacheMisses:     c.cacheMisses,
		CacheInserts:    c.cacheInserts,
		Admitted:        c.admitted,
		Queued:          c.queued,
		Rejected:        c.rejected,
		Cancelled:       c.cancelled,
		Succeeded:       c.succeeded,
		Failed:          c.failed,
		Failures:        make(map[string]uint64, len(c.failures)),
		DroppedPublish:  c.droppedPublish,
		PrunedTracks:    c.prunedTracks,
		DrainFailures:   c.drainFailures,
		ObjectsDetected: c.objectsDetected,
		LatencySamples:  len(c.latencies),
	}
	for k, v := range c.failures {
		s.Failures[k] = v
	}

	if len(c.latencies) == 0 {
		return s
	}
	sorted := make([]float64, len(c.latencies))
	copy(sorted, c.latencies)
	sort.Float64s(sorted)

	s.LatencyMean = seconds(stat.Mean(sorted, nil))
	s.LatencyP50 = seconds(stat.Quantile(0.5, stat.Empirical, sorted, nil))
	s.LatencyP95 = seconds(stat.Quantile(0.95, stat.Empirical, sorted, nil))
	s.LatencyMax = seconds(sorted[len(sorted)-1])
	return s
}

// Latencies returns the retained latency window in seconds, unordered.
func (c *Collector) Latencies() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.latencies))
	copy(out, c.latencies)
	return out
}

// Reset zeroes every counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits, c.cacheMisses, c.cacheInserts = 0, 0, 0
	c.admitted, c.queued, c.rejected, c.cancelled = 0, 0, 0, 0
	c.succeeded, c.failed = 0, 0
	c.failures = make(map[string]uint64)
	c.droppedPublish, c.prunedTracks, c.drainFailures, c.objectsDetected = 0, 0, 0, 0
	c.latencies = c.latencies[:0]
	c.next = 0
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
