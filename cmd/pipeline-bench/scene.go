package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/capability-pipeline/internal/geometry"
	"github.com/banshee-data/capability-pipeline/internal/inference"
)

var sceneLabels = []string{"car", "person", "bicycle", "dog"}

// framePayload is one synthetic frame. Content differs per index so every
// frame fingerprints differently.
type framePayload struct {
	index int
}

func (f framePayload) Content() []byte { return []byte(fmt.Sprintf("frame-%06d", f.index)) }

// scene is a synthetic detector: a fixed set of objects drifting right
// across the frame, each reported twice (a strong box plus a weaker,
// slightly offset duplicate) so suppression has work to do.
type scene struct {
	objects int
	latency time.Duration
}

func (s scene) objectsAt(frame int) []inference.DetectedObject {
	out := make([]inference.DetectedObject, 0, 2*s.objects)
	for k := 0; k < s.objects; k++ {
		x := math.Mod(0.05+0.01*float64(frame)+0.2*float64(k), 0.85)
		y := 0.1 + 0.2*float64(k%4)
		box := geometry.Rect{X: x, Y: y, Width: 0.1, Height: 0.12}
		label := sceneLabels[k%len(sceneLabels)]
		conf := 0.6 + 0.35*float64((frame+k)%4)/3

		dup := box
		dup.X += 0.01
		out = append(out,
			inference.DetectedObject{Label: label, Confidence: conf, BoundingBox: box},
			inference.DetectedObject{Label: label, Confidence: conf * 0.8, BoundingBox: dup},
		)
	}
	return out
}

func (s scene) Detect(ctx context.Context, payload inference.Payload, modelID string, opts inference.Options) ([]inference.DetectedObject, error) {
	frame, ok := payload.(framePayload)
	if !ok {
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
	if s.latency > 0 {
		// Up to 2x the base latency, varying by frame.
		d := s.latency + s.latency*time.Duration(frame.index%5)/4
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.objectsAt(frame.index), nil
}
