package inference

import (
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultModelKey stands in for an empty model id in fingerprints.
const DefaultModelKey = "default"

// Fingerprint derives the cache key for r from the payload content hash, the
// model id, the confidence floor in thousandths, the object cap and the region
// of interest. Label filters and tracking options are not part of the key, so
// a cache hit replays the first request's objects even when they fall outside
// the new request's ObjectTypes, and a hit on a tracking request leaves the
// tracker untouched (no LastSeen refresh, no new hits).
func Fingerprint(r Request) string {
	var content []byte
	if r.Payload != nil {
		content = r.Payload.Content()
	}

	model := r.ModelID
	if model == "" {
		model = DefaultModelKey
	}

	roi := "full"
	if r.Options.RegionOfInterest != nil {
		roi = r.Options.RegionOfInterest.Canonical()
	}

	var b strings.Builder
	b.WriteString(strconv.FormatUint(xxhash.Sum64(content), 16))
	b.WriteByte('|')
	b.WriteString(model)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(math.Floor(r.Options.MinConfidence*1000)), 10))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.Options.MaxObjects))
	b.WriteByte('|')
	b.WriteString(roi)
	return b.String()
}
