package pipeline

import (
	"sort"

	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/inference/nms"
)

// filterObjects drops detections below the confidence floor, outside the
// label filter, or whose centre falls outside the region of interest.
func filterObjects(objects []inference.DetectedObject, opts inference.Options) []inference.DetectedObject {
	out := make([]inference.DetectedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Confidence < opts.MinConfidence {
			continue
		}
		if !opts.AllowsLabel(obj.Label) {
			continue
		}
		if roi := opts.RegionOfInterest; roi != nil && !roi.Contains(obj.Center()) {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// refine applies filtering, optional suppression and the max-objects cap.
// The result is ordered by confidence descending.
func refine(objects []inference.DetectedObject, opts inference.Options, nmsEnabled bool, nmsCfg nms.Config) []inference.DetectedObject {
	kept := filterObjects(objects, opts)
	if nmsEnabled {
		kept = nms.Suppress(kept, nmsCfg)
	} else {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Confidence > kept[j].Confidence
		})
	}
	if opts.MaxObjects > 0 && len(kept) > opts.MaxObjects {
		kept = kept[:opts.MaxObjects]
	}
	return kept
}
