// Package inference holds the domain types shared by every stage of the
// capability inference pipeline: requests, detections, results, the error
// taxonomy and the cache fingerprint.
//
// Stage implementations live in subpackages (cache, admission, queue, nms,
// tracking) and are orchestrated by the pipeline subpackage. This package
// has no dependencies on those stages.
package inference
