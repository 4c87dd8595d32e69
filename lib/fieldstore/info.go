package fieldstore

import "sync"

// StoreInfo reports estimated statistics about a store. All values are
// sampled, not exact, so collecting them stays cheap on large stores.
type StoreInfo struct {
	FieldCount        int               `json:"field_count"`
	TrackedFields     int               `json:"tracked_fields"`
	EstFieldSizeBytes int               `json:"est_field_size_bytes"`
	IndexBytes        int               `json:"index_bytes"`
	ShardCount        int               `json:"shard_count"`
	ShardDistribution DistributionStats `json:"shard_distribution"`
	ExpiredBacklog    float64           `json:"expired_backlog"`
}

// infoSamplesPerShard bounds how many fields each shard contributes to the
// size histogram.
const infoSamplesPerShard = 100

// Info collects store statistics by sampling every shard concurrently.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Info() StoreInfo {
	now := nowMs()
	histogram := newSizeHistogram()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		sampled    int
		expired    int
		tracked    int
		indexBytes int
		shardSizes = make([]float64, len(s.shards))
	)

	wg.Add(len(s.shards))
	for shardIndex, sh := range s.shards {
		go func(i int, sh *shard) {
			defer wg.Done()

			count := 0
			expiredCount := 0
			sh.data.Range(func(_ uintKey, f *Field) bool {
				histogram.addSample(len(f.Value))
				if f.expired(now) {
					expiredCount++
				}
				count++
				return count < infoSamplesPerShard
			})

			sh.mu.Lock()
			shardTracked := sh.vset.Len()
			shardIndexBytes := sh.vset.MemUsage()
			sh.mu.Unlock()

			mu.Lock()
			defer mu.Unlock()
			sampled += count
			expired += expiredCount
			tracked += shardTracked
			indexBytes += shardIndexBytes
			shardSizes[i] = float64(sh.data.Size())
		}(shardIndex, sh)
	}
	wg.Wait()

	// Weighted per-field size estimate (60% median, 40% average), plus the
	// fixed header every field carries.
	const fieldOverhead = 40
	sizeEstimate := (histogram.medianEstimate()*60 + histogram.averageSize()*40) / 100

	backlog := 0.0
	if sampled > 0 {
		backlog = float64(expired) / float64(sampled)
	}

	return StoreInfo{
		FieldCount:        s.Len(),
		TrackedFields:     tracked,
		EstFieldSizeBytes: sizeEstimate + fieldOverhead,
		IndexBytes:        indexBytes,
		ShardCount:        len(s.shards),
		ShardDistribution: newDistributionStats(shardSizes),
		ExpiredBacklog:    backlog,
	}
}
