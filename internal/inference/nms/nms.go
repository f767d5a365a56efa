// Package nms implements greedy non-maximum suppression over one frame of
// detections.
package nms

import (
	"sort"

	"github.com/banshee-data/capability-pipeline/internal/geometry"
	"github.com/banshee-data/capability-pipeline/internal/inference"
)

// DefaultOverlapThreshold is the IoU above which a lower-confidence box is
// dropped.
const DefaultOverlapThreshold = 0.5

// Config controls suppression.
type Config struct {
	OverlapThreshold float64 // IoU strictly above this suppresses
	ClassAware       bool    // Only suppress boxes that share a label
}

// DefaultConfig returns class-aware suppression at DefaultOverlapThreshold.
func DefaultConfig() Config {
	return Config{OverlapThreshold: DefaultOverlapThreshold, ClassAware: true}
}

// Suppress returns the subset of objects that survives greedy NMS, ordered by
// confidence descending. Ties keep input order. The input slice is not
// modified.
//
// Cost is O(n²) in len(objects). Callers are expected to bound n with a
// max-objects cap; a few hundred detections per frame is the design point.
func Suppress(objects []inference.DetectedObject, cfg Config) []inference.DetectedObject {
	if len(objects) == 0 {
		return nil
	}

	sorted := make([]inference.DetectedObject, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	kept := make([]inference.DetectedObject, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if cfg.ClassAware && sorted[i].Label != sorted[j].Label {
				continue
			}
			if geometry.IntersectionOverUnion(sorted[i].BoundingBox, sorted[j].BoundingBox) > cfg.OverlapThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
