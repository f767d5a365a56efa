package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	t.Parallel()

	c := NewCollector(0)
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordCacheMiss()
	c.RecordCacheInsert()
	c.RecordAdmitted()
	c.RecordQueued()
	c.RecordRejected()
	c.RecordCancelled()
	c.RecordSuccess(10*time.Millisecond, 3)
	c.RecordFailure("timeout", 20*time.Millisecond)
	c.RecordFailure("timeout", 30*time.Millisecond)
	c.RecordFailure("detection_failed", 5*time.Millisecond)
	c.RecordDroppedPublish()
	c.RecordPrunedTracks(4)
	c.RecordDrainFailure()

	s := c.Snapshot()
	assert.Equal(t, uint64(1), s.CacheHits)
	assert.Equal(t, uint64(2), s.CacheMisses)
	assert.Equal(t, uint64(1), s.CacheInserts)
	assert.Equal(t, uint64(1), s.Admitted)
	assert.Equal(t, uint64(1), s.Queued)
	assert.Equal(t, uint64(1), s.Rejected)
	assert.Equal(t, uint64(1), s.Cancelled)
	assert.Equal(t, uint64(1), s.Succeeded)
	assert.Equal(t, uint64(3), s.Failed)
	assert.Equal(t, map[string]uint64{"timeout": 2, "detection_failed": 1}, s.Failures)
	assert.Equal(t, uint64(1), s.DroppedPublish)
	assert.Equal(t, uint64(4), s.PrunedTracks)
	assert.Equal(t, uint64(1), s.DrainFailures)
	assert.Equal(t, uint64(3), s.ObjectsDetected)
	assert.Equal(t, 4, s.LatencySamples)
	assert.InDelta(t, 1.0/3.0, s.HitRate(), 1e-9)
}

func TestCollectorLatencyQuantiles(t *testing.T) {
	t.Parallel()

	c := NewCollector(100)
	for i := 1; i <= 100; i++ {
		c.RecordSuccess(time.Duration(i)*time.Millisecond, 0)
	}

	s := c.Snapshot()
	require.Equal(t, 100, s.LatencySamples)
	assert.Equal(t, 50*time.Millisecond, s.LatencyP50.Round(time.Millisecond))
	assert.Equal(t, 95*time.Millisecond, s.LatencyP95.Round(time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, s.LatencyMax.Round(time.Millisecond))
	assert.InDelta(t, 50.5, float64(s.LatencyMean)/float64(time.Millisecond), 0.01)
}

func TestCollectorWindowIsBounded(t *testing.T) {
	t.Parallel()

	c := NewCollector(4)
	for i := 1; i <= 10; i++ {
		c.RecordSuccess(time.Duration(i)*time.Second, 0)
	}

	assert.ElementsMatch(t, []float64{7, 8, 9, 10}, c.Latencies())
	assert.Equal(t, 10*time.Second, c.Snapshot().LatencyMax)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	t.Parallel()

	s := NewCollector(8).Snapshot()
	assert.Zero(t, s.LatencySamples)
	assert.Zero(t, s.LatencyP95)
	assert.Zero(t, s.HitRate())
	assert.NotNil(t, s.Failures)
}

func TestCollectorSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	c := NewCollector(8)
	c.RecordFailure("timeout", time.Millisecond)
	s := c.Snapshot()
	s.Failures["timeout"] = 99

	assert.Equal(t, uint64(1), c.Snapshot().Failures["timeout"])
}

func TestCollectorReset(t *testing.T) {
	t.Parallel()

	c := NewCollector(8)
	c.RecordCacheHit()
	c.RecordSuccess(time.Second, 2)
	c.Reset()

	s := c.Snapshot()
	assert.Zero(t, s.CacheHits)
	assert.Zero(t, s.Succeeded)
	assert.Zero(t, s.LatencySamples)
	assert.Empty(t, s.Failures)
}

func TestCollectorConcurrentUse(t *testing.T) {
	t.Parallel()

	c := NewCollector(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordAdmitted()
				c.RecordSuccess(time.Millisecond, 1)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, uint64(800), s.Admitted)
	assert.Equal(t, uint64(800), s.Succeeded)
	assert.Equal(t, 64, s.LatencySamples)
}
