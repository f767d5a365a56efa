// Package pipeline schedules inference requests against a Detector. It bounds
// concurrent detections, queues overflow by priority, replays cached results
// for identical requests, and runs suppression and tracking over each frame
// before publishing the Result to live subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/inference/admission"
	"github.com/banshee-data/capability-pipeline/internal/inference/cache"
	"github.com/banshee-data/capability-pipeline/internal/inference/queue"
	"github.com/banshee-data/capability-pipeline/internal/inference/tracking"
	"github.com/banshee-data/capability-pipeline/internal/monitoring"
	"github.com/banshee-data/capability-pipeline/internal/timeutil"
)

var logf = monitoring.Component("Pipeline")

// Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	detector Detector
	clock    timeutil.Clock
	recorder Recorder
	sink     PersistenceSink

	cache     *cache.ResultCache
	admission *admission.Controller
	queue     *queue.PriorityQueue
	tracker   *tracking.Tracker
	stream    *broadcaster

	// mu guards active and closed, and makes admit-or-enqueue and
	// admit-and-dequeue atomic with respect to each other.
	mu     sync.Mutex
	active map[string]*flight
	closed bool

	ctx       context.Context // Parent of drained detections
	cancel    context.CancelFunc
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// flight is an admitted request whose detection has not yet committed.
type flight struct {
	req       inference.Request
	cancelled bool
}

// New builds a pipeline around detector. The default recorder is a fresh
// monitoring.Collector and the default clock is the wall clock.
func New(cfg Config, detector Detector, opts ...Option) (*Pipeline, error) {
	if detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("pipeline: capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.CacheSize < 0 {
		cfg.CacheSize = 0
	}
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:       cfg,
		detector:  detector,
		clock:     timeutil.RealClock{},
		recorder:  monitoring.NewCollector(monitoring.DefaultLatencyWindow),
		cache:     cache.New(cfg.CacheSize),
		admission: admission.New(cfg.Capacity),
		queue:     queue.New(),
		stream:    newBroadcaster(),
		active:    make(map[string]*flight),
		ctx:       ctx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracker = tracking.NewTracker(cfg.Tracking, p.clock)

	if cfg.PruneInterval > 0 {
		ticker := p.clock.NewTicker(cfg.PruneInterval)
		p.wg.Add(1)
		go p.pruneLoop(ticker)
	}
	return p, nil
}

// Submit runs req through the pipeline.
//
// A cache hit returns a copy of the stored Result without running the
// detector. When every slot is busy the request is queued and Submit returns
// a *inference.QueuedError; the eventual Result is only delivered to
// subscribers. With queueing disabled the overflow is rejected with
// inference.ErrCapacityExceeded instead.
//
// Detector failures and timeouts are returned both as the error and inside a
// failed Result, which is also published.
func (p *Pipeline) Submit(ctx context.Context, req inference.Request) (inference.Result, error) {
	if !p.cfg.Enabled {
		return inference.Result{}, inference.ErrDisabled
	}
	if err := req.Validate(); err != nil {
		return inference.Result{}, err
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = p.clock.Now()
	}

	if p.isClosed() {
		return inference.Result{}, inference.ErrClosed
	}

	fp := inference.Fingerprint(req)
	if res, ok := p.cache.Lookup(fp); ok {
		p.recorder.RecordCacheHit()
		res.FromCache = true
		return res, nil
	}
	p.recorder.RecordCacheMiss()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return inference.Result{}, inference.ErrClosed
	}
	if !p.admission.TryAdmit() {
		if !p.cfg.QueueEnabled {
			p.mu.Unlock()
			p.recorder.RecordRejected()
			return inference.Result{}, fmt.Errorf("request %s: %w", req.ID, inference.ErrCapacityExceeded)
		}
		p.queue.Push(req)
		depth := p.queue.Len()
		p.mu.Unlock()
		p.recorder.RecordQueued()
		logf("request %s queued at %s priority (depth %d)", req.ID, req.Priority, depth)
		return inference.Result{}, &inference.QueuedError{RequestID: req.ID}
	}
	f := &flight{req: req}
	p.active[req.ID] = f
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	p.recorder.RecordAdmitted()
	res, err := p.execute(ctx, f, fp)
	p.drain()
	return res, err
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// execute runs an admitted request to completion and commits the outcome.
// It always releases the admission slot.
func (p *Pipeline) execute(ctx context.Context, f *flight, fp string) (inference.Result, error) {
	req := f.req
	start := p.clock.Now()

	objects, err := p.detect(ctx, req)
	if err == nil {
		objects = refine(objects, req.Options, p.cfg.NMSEnabled, p.cfg.NMS)
		if req.Options.EnableTracking {
			objects = p.tracker.Update(req.Options.TrackingSessionID, objects)
		}
		if len(objects) == 0 && p.cfg.FailOnEmpty {
			err = fmt.Errorf("request %s: %w", req.ID, inference.ErrNoResults)
		}
	}

	res := inference.Result{
		RequestID: req.ID,
		Duration:  p.clock.Since(start),
		Success:   err == nil,
		Timestamp: p.clock.Now(),
	}
	if err != nil {
		res.Err = err
	} else {
		res.Objects = objects
	}

	p.admission.Release()
	if p.finish(f) {
		logf("request %s completed after cancellation; result discarded", req.ID)
		return res, err
	}

	if err == nil {
		if p.cache.Insert(fp, res) {
			p.recorder.RecordCacheInsert()
		}
		p.recorder.RecordSuccess(res.Duration, len(res.Objects))
	} else {
		p.recorder.RecordFailure(inference.Reason(err), res.Duration)
	}
	p.publish(res)
	p.persist(res)
	return res, err
}

// detect calls the Detector under the request deadline. The Detector keeps
// running in the background if the deadline fires first or the pipeline is
// closed; its context is cancelled so well-behaved detectors return promptly.
func (p *Pipeline) detect(ctx context.Context, req inference.Request) ([]inference.DetectedObject, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	type outcome struct {
		objects []inference.DetectedObject
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		objs, err := p.detector.Detect(dctx, req.Payload, req.ModelID, req.Options)
		done <- outcome{objs, err}
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := p.clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C()
	}

	model := req.ModelID
	if model == "" {
		model = inference.DefaultModelKey
	}

	select {
	case o := <-done:
		if o.err == nil {
			return o.objects, nil
		}
		if ctx.Err() != nil {
			return nil, contextError(req.ID, ctx.Err())
		}
		if p.ctx.Err() != nil {
			return nil, fmt.Errorf("request %s: %w", req.ID, inference.ErrClosed)
		}
		return nil, &inference.DetectionError{Reason: "model " + model, Cause: o.err}
	case <-expired:
		return nil, fmt.Errorf("request %s after %v: %w", req.ID, timeout, inference.ErrTimeout)
	case <-ctx.Done():
		return nil, contextError(req.ID, ctx.Err())
	case <-p.ctx.Done():
		return nil, fmt.Errorf("request %s: %w", req.ID, inference.ErrClosed)
	}
}

// contextError maps a caller deadline to ErrTimeout and any other
// cancellation to a DetectionError.
func contextError(id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request %s: %w: %w", id, inference.ErrTimeout, err)
	}
	return &inference.DetectionError{Reason: "context done", Cause: err}
}

// finish removes f from the active set and reports whether it was cancelled.
func (p *Pipeline) finish(f *flight) (cancelled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[f.req.ID] == f {
		delete(p.active, f.req.ID)
	}
	return f.cancelled
}

// drain starts queued requests while capacity remains. Each started request
// runs in its own goroutine and drains again when it completes, so the queue
// empties without recursion.
func (p *Pipeline) drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var batch []*flight
	for p.queue.Len() > 0 && p.admission.TryAdmit() {
		req := p.queue.Drain(1)[0]
		f := &flight{req: req}
		p.active[req.ID] = f
		batch = append(batch, f)
	}
	p.wg.Add(len(batch))
	p.mu.Unlock()

	for _, f := range batch {
		go p.runQueued(f)
	}
}

func (p *Pipeline) runQueued(f *flight) {
	defer p.wg.Done()
	defer p.drain()

	req := f.req
	fp := inference.Fingerprint(req)
	if res, ok := p.cache.Lookup(fp); ok {
		p.admission.Release()
		p.recorder.RecordCacheHit()
		if !p.finish(f) {
			res.FromCache = true
			p.publish(res)
		}
		return
	}
	p.recorder.RecordCacheMiss()
	p.recorder.RecordAdmitted()

	if _, err := p.execute(p.ctx, f, fp); err != nil {
		p.recorder.RecordDrainFailure()
		logf("queued request %s failed: %v", req.ID, err)
	}
}

func (p *Pipeline) publish(res inference.Result) {
	for n := p.stream.publish(res); n > 0; n-- {
		p.recorder.RecordDroppedPublish()
	}
}

func (p *Pipeline) persist(res inference.Result) {
	if p.sink == nil {
		return
	}
	if err := p.sink.RecordResult(res); err != nil {
		logf("failed to persist result %s: %v", res.RequestID, err)
	}
}

// BatchSubmit runs reqs in chunks of Capacity. Requests within a chunk run
// concurrently; chunks run one after another. Results are returned in input
// order. A request that could not produce a Result (queued, rejected,
// invalid) gets a failed Result carrying the error.
func (p *Pipeline) BatchSubmit(ctx context.Context, reqs []inference.Request) []inference.Result {
	results := make([]inference.Result, len(reqs))
	chunk := p.admission.Capacity()

	for start := 0; start < len(reqs); start += chunk {
		end := min(start+chunk, len(reqs))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := p.Submit(ctx, reqs[i])
				if err != nil && res.RequestID == "" {
					res = inference.Result{
						RequestID: reqs[i].ID,
						Err:       err,
						Timestamp: p.clock.Now(),
					}
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

// Cancel withdraws a queued request, or detaches an in-flight one so its
// Result is neither cached nor published. It reports whether id was found.
func (p *Pipeline) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Remove(id) {
		p.recorder.RecordCancelled()
		logf("request %s cancelled while queued", id)
		return true
	}
	if f, ok := p.active[id]; ok {
		f.cancelled = true
		delete(p.active, id)
		p.recorder.RecordCancelled()
		logf("request %s cancelled while in flight", id)
		return true
	}
	return false
}

// Subscribe returns a live feed of published results. buffer <= 0 uses the
// configured subscriber buffer.
func (p *Pipeline) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = p.cfg.SubscriberBuffer
	}
	return p.stream.subscribe(buffer)
}

// GetActive returns in-flight requests ordered by submission time, followed
// by queued requests in the order they would be drained.
func (p *Pipeline) GetActive() []inference.Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]inference.Request, 0, len(p.active)+p.queue.Len())
	for _, f := range p.active {
		out = append(out, f.req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return append(out, p.queue.Snapshot()...)
}

// ClearCache drops every cached result.
func (p *Pipeline) ClearCache() {
	p.cache.Clear()
	logf("result cache cleared")
}

// ClearTracks forgets every track in every session.
func (p *Pipeline) ClearTracks() {
	p.tracker.Reset()
	logf("tracks cleared")
}

// GetTrackedObjects returns a snapshot of the live tracks.
func (p *Pipeline) GetTrackedObjects() []tracking.Track {
	return p.tracker.Tracks()
}

// PruneTracks removes tracks idle longer than the configured age and returns
// them marked lost.
func (p *Pipeline) PruneTracks() []tracking.Track {
	pruned := p.tracker.Prune(p.clock.Now())
	if len(pruned) == 0 {
		return nil
	}
	p.recorder.RecordPrunedTracks(len(pruned))
	logf("pruned %d stale tracks (%d live)", len(pruned), p.tracker.Len())
	if p.sink != nil {
		if err := p.sink.RecordPrunedTracks(pruned); err != nil {
			logf("failed to persist pruned tracks: %v", err)
		}
	}
	return pruned
}

func (p *Pipeline) pruneLoop(ticker timeutil.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C():
			p.PruneTracks()
		}
	}
}

// MetricsSnapshot combines live gauges with the recorder's counters.
type MetricsSnapshot struct {
	Active        int `json:"active"`
	Capacity      int `json:"capacity"`
	Queued        int `json:"queued"`
	CacheEntries  int `json:"cache_entries"`
	CacheCapacity int `json:"cache_capacity"`
	Tracks        int `json:"tracks"`
	TracksCreated int `json:"tracks_created"`
	TracksPruned  int `json:"tracks_pruned"`
	Subscribers   int `json:"subscribers"`

	// Counters is zero unless the recorder exposes a Snapshot method.
	Counters monitoring.Snapshot `json:"counters"`
}

// Metrics returns current gauges and counters.
func (p *Pipeline) Metrics() MetricsSnapshot {
	created, pruned := p.tracker.Counts()
	m := MetricsSnapshot{
		Active:        p.admission.Active(),
		Capacity:      p.admission.Capacity(),
		Queued:        p.queue.Len(),
		CacheEntries:  p.cache.Len(),
		CacheCapacity: p.cache.Capacity(),
		Tracks:        p.tracker.Len(),
		TracksCreated: created,
		TracksPruned:  pruned,
		Subscribers:   p.stream.count(),
	}
	if s, ok := p.recorder.(interface{ Snapshot() monitoring.Snapshot }); ok {
		m.Counters = s.Snapshot()
	}
	return m
}

// Close stops the prune sweep, drops queued requests, aborts running
// detections with inference.ErrClosed, waits for every admitted request to
// commit and closes every subscription. Cached results and tracks are
// discarded. Submit returns inference.ErrClosed afterwards.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		dropped := p.queue.Clear()
		p.mu.Unlock()

		close(p.stopCh)
		p.cancel()
		p.wg.Wait()

		p.stream.close()
		p.cache.Clear()
		p.tracker.Reset()
		logf("closed; %d queued requests dropped", len(dropped))
	})
}
