// Command pipeline-bench drives a synthetic moving-object detector through
// the inference pipeline and reports throughput, cache and latency figures.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/capability-pipeline/internal/config"
	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/inference/pipeline"
	"github.com/banshee-data/capability-pipeline/internal/monitoring"
	"github.com/banshee-data/capability-pipeline/internal/storage/sqlite"
	"github.com/banshee-data/capability-pipeline/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON tuning file (defaults are used when empty)")
	dbPath      = flag.String("db", "", "SQLite file to persist results and pruned tracks to")
	requests    = flag.Int("requests", 64, "Number of requests in the batch phase")
	frames      = flag.Int("frames", 30, "Number of sequential tracked frames")
	objects     = flag.Int("objects", 3, "Objects per synthetic frame")
	latency     = flag.Duration("latency", 2*time.Millisecond, "Base synthetic detector latency")
	histPath    = flag.String("hist", "", "Write a latency histogram PNG to this path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type benchOptions struct {
	Tuning   *config.TuningConfig
	DBPath   string
	Requests int
	Frames   int
	Objects  int
	Latency  time.Duration
	HistPath string
}

type report struct {
	Elapsed       time.Duration            `json:"elapsed"`
	Submitted     int                      `json:"submitted"`
	Failed        int                      `json:"failed"`
	Streamed      int                      `json:"streamed"`
	LiveTracks    int                      `json:"live_tracks"`
	PersistedRows int                      `json:"persisted_rows,omitempty"`
	Metrics       pipeline.MetricsSnapshot `json:"metrics"`
	HitRate       float64                  `json:"hit_rate"`
	Failures      map[string]int           `json:"failures,omitempty"`
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("pipeline-bench"))
		return
	}

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	opts := benchOptions{
		Tuning:   tuning,
		DBPath:   *dbPath,
		Requests: *requests,
		Frames:   *frames,
		Objects:  *objects,
		Latency:  *latency,
		HistPath: *histPath,
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		log.Fatalf("bench failed: %v", err)
	}
}

func run(ctx context.Context, opts benchOptions, out io.Writer) error {
	if opts.Requests < 0 || opts.Frames < 0 || opts.Objects < 0 {
		return fmt.Errorf("requests, frames and objects must be non-negative")
	}

	collector := monitoring.NewCollector(0)
	pipeOpts := []pipeline.Option{pipeline.WithRecorder(collector)}

	var store *sqlite.Store
	if opts.DBPath != "" {
		var err error
		store, err = sqlite.OpenAndMigrate(opts.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		pipeOpts = append(pipeOpts, pipeline.WithSink(store))
	}

	p, err := pipeline.New(pipeline.ConfigFromTuning(opts.Tuning), scene{objects: opts.Objects, latency: opts.Latency}, pipeOpts...)
	if err != nil {
		return err
	}

	sub := p.Subscribe(0)
	var (
		streamed int
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sub.Results() {
			streamed++
		}
	}()

	rep := report{Failures: map[string]int{}}
	start := time.Now()
	record := func(res inference.Result, err error) {
		rep.Submitted++
		if err != nil {
			rep.Failed++
			rep.Failures[inference.Reason(err)]++
		}
	}

	base := inference.Options{MinConfidence: 0.3, MaxObjects: 10}

	// Sequential tracked frames: one session, one request per frame.
	for i := 0; i < opts.Frames; i++ {
		tracked := base
		tracked.EnableTracking = true
		tracked.TrackingSessionID = "bench"
		req := inference.NewRequest(framePayload{index: i}, tracked)
		record(p.Submit(ctx, req))
	}
	rep.LiveTracks = len(p.GetTrackedObjects())

	// Batch phase: mixed priorities, and every other request repeats a frame
	// from the tracked phase so the cache gets hits.
	batch := make([]inference.Request, opts.Requests)
	for i := range batch {
		index := opts.Frames + i
		if i%2 == 1 && opts.Frames > 0 {
			index = i % opts.Frames
		}
		req := inference.NewRequest(framePayload{index: index}, base)
		req.Priority = inference.Priorities[i%len(inference.Priorities)]
		batch[i] = req
	}
	for _, res := range p.BatchSubmit(ctx, batch) {
		record(res, res.Err)
	}
	rep.Elapsed = time.Since(start)

	p.PruneTracks()
	rep.Metrics = p.Metrics()
	rep.HitRate = rep.Metrics.Counters.HitRate()
	p.Close()
	wg.Wait()
	rep.Streamed = streamed

	if store != nil {
		rows, err := store.ListResults(0)
		if err != nil {
			return err
		}
		rep.PersistedRows = len(rows)
	}

	if opts.HistPath != "" {
		if err := writeHistogram(collector.Latencies(), opts.HistPath); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
