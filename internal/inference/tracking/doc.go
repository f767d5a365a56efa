// Package tracking assigns stable identities to detections across frames.
//
// Responsibilities: nearest-neighbour association of detections to
// remembered tracks (same label, same tracking session, within a distance
// gate), bounded per-track position history, and age-based pruning.
//
// Lifecycle: new → tracked → lost. Lost tracks are removed, never revived.
// The merged state is reserved and never produced here.
//
// Two association policies exist. PolicyGreedy matches every detection
// independently, so two detections in one frame can claim the same track.
// PolicyOneToOne solves a global assignment so each track is claimed at most
// once per frame; it is the default.
package tracking
