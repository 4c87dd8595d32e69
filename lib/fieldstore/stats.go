package fieldstore

import (
	"math"
	"sync"
)

// --------------------------------------------------------------------------
// Shard distribution statistics
// --------------------------------------------------------------------------

// DistributionStats summarizes how evenly the fields spread across shards.
type DistributionStats struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	StdDeviation float64 `json:"std_deviation"`
	// Quality combines the coefficient of variation with the min/max
	// ratio: 1.0 is a perfectly even spread.
	Quality float64 `json:"quality"`
}

// newDistributionStats computes distribution metrics from per-shard sizes.
func newDistributionStats(sizes []float64) DistributionStats {
	if len(sizes) == 0 {
		return DistributionStats{}
	}

	min, max := sizes[0], sizes[0]
	var sum float64
	for _, v := range sizes {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(sizes))

	var sqDiff float64
	for _, v := range sizes {
		d := v - mean
		sqDiff += d * d
	}
	stdDev := math.Sqrt(sqDiff / float64(len(sizes)))

	ratio := 1.0
	if max > 0 {
		ratio = min / max
	}
	cv := 0.0
	if mean > 0 {
		cv = stdDev / mean
	}

	return DistributionStats{
		Min:          min,
		Max:          max,
		Mean:         mean,
		StdDeviation: stdDev,
		Quality:      (1.0-math.Min(1.0, cv))*0.5 + ratio*0.5,
	}
}

// --------------------------------------------------------------------------
// Value size histogram
// --------------------------------------------------------------------------

// sizeHistogram tracks value sizes in exponential buckets, covering bytes
// to gigabytes without retaining the samples.
type sizeHistogram struct {
	mu         sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

func newSizeHistogram() *sizeHistogram {
	boundaries := []int{
		16, 64, 256, 1024, 4096,
		16384, 65536, 262144, 1048576,
		4194304, 16777216, 67108864,
		268435456, 1073741824,
	}
	return &sizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// addSample files one size into its bucket.
//
// Thread-safety: safe for concurrent use.
func (h *sizeHistogram) addSample(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if size <= boundary {
			idx = i
			break
		}
	}
	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
}

// averageSize returns the mean sampled size.
func (h *sizeHistogram) averageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// medianEstimate approximates the median from the bucket counts.
func (h *sizeHistogram) medianEstimate() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}

	target := h.count / 2
	var cumulative int64
	for i, count := range h.buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return h.boundaries[0] / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}
	return int(h.sum / h.count)
}
