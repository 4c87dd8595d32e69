package fieldstore

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hfxdb/hfx/lib/ds/mpsc"
	"github.com/hfxdb/hfx/lib/volatile"
)

var log = logger.GetLogger("fieldstore")

// --------------------------------------------------------------------------
// Constants and Options
// --------------------------------------------------------------------------

const (
	defaultSweepInterval = 100 * time.Millisecond
	defaultSweepBatch    = 128
)

// Options configures a Store during initialization.
type Options struct {
	NumShards     int           // Number of shards (0 = one per CPU)
	SweepInterval time.Duration // Time between expiry sweeps (0 = default)
	SweepBatch    int           // Max fields reclaimed per shard per sweep (0 = default)
}

// DefaultOptions returns the default Store options.
func DefaultOptions() *Options {
	return &Options{
		NumShards:     runtime.NumCPU(),
		SweepInterval: defaultSweepInterval,
		SweepBatch:    defaultSweepBatch,
	}
}

// --------------------------------------------------------------------------
// Core Store structure
// --------------------------------------------------------------------------

// Store is a sharded in-memory field store with per-field expiration.
// Reads and writes go straight to a concurrent hash map; expiry
// bookkeeping is handed through a lock-free queue to one sweeper goroutine
// per shard, which owns that shard's expiration index.
type Store struct {
	seed   uint64
	shards []*shard

	sweepInterval time.Duration
	sweepBatch    int

	closeOnce sync.Once
	sweepers  sync.WaitGroup

	// metrics
	registry      *metrics.Set
	mWrites       *metrics.Counter
	mDeletes      *metrics.Counter
	mExpired      *metrics.Counter
	mTrackEvents  *metrics.Counter
	mStaleIndexed *metrics.Counter
}

// shard is one partition of the store. data is safe for concurrent use;
// vset is owned by the shard's sweeper and guarded by mu for the few
// foreground operations that need to peek at it.
type shard struct {
	data   *xsync.MapOf[uintKey, *Field]
	events *mpsc.Queue[fieldEvent]

	mu   sync.Mutex
	vset *volatile.Set[*Field]
}

// fieldEvent tells the sweeper that the tracked generation of a key
// changed: old is the replaced field (nil on fresh insert), new the
// current one (nil on delete). Both pointers are the exact generations
// involved, which lets the sweeper reconcile by identity.
type fieldEvent struct {
	old *Field
	new *Field
}

// New creates a field store and starts its sweeper goroutines.
//
// Thread-safety: the returned Store is safe for concurrent use. New itself
// should be called once during initialization.
func New(opts *Options) *Store {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	batch := opts.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	registry := metrics.NewSet()
	s := &Store{
		seed:          generateSeed(),
		shards:        make([]*shard, numShards),
		sweepInterval: interval,
		sweepBatch:    batch,
		registry:      registry,
		mWrites:       registry.NewCounter("fieldstore_writes_total"),
		mDeletes:      registry.NewCounter("fieldstore_deletes_total"),
		mExpired:      registry.NewCounter("fieldstore_expired_fields_total"),
		mTrackEvents:  registry.NewCounter("fieldstore_track_events_total"),
		mStaleIndexed: registry.NewCounter("fieldstore_stale_index_entries_total"),
	}

	hasher := identityHasher()
	for i := range s.shards {
		s.shards[i] = &shard{
			data:   xsync.NewMapOfWithHasher[uintKey, *Field](hasher),
			events: mpsc.New[fieldEvent](),
			vset:   volatile.New(fieldExpiry),
		}
	}

	s.sweepers.Add(numShards)
	for i := range s.shards {
		go s.sweeper(s.shards[i])
	}

	log.Infof("field store started with %d shards, sweep every %v", numShards, interval)
	return s
}

// shardFor routes a hashed key to its shard.
func (s *Store) shardFor(key uintKey) *shard {
	// Shift right so the modulo sees higher-quality hash bits.
	return s.shards[(uint64(key)>>7)%uint64(len(s.shards))]
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set stores a field without an expiration time, replacing any previous
// generation (and its expiration).
//
// Thread-safety: safe for concurrent use.
func (s *Store) Set(name string, value []byte) {
	s.put(name, value, 0)
}

// SetEx stores a field that expires after ttl. A ttl <= 0 stores the field
// without expiration.
//
// Thread-safety: safe for concurrent use.
func (s *Store) SetEx(name string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		s.put(name, value, 0)
		return
	}
	s.put(name, value, nowMs()+ttl.Milliseconds())
}

func (s *Store) put(name string, value []byte, expireAt int64) {
	key := hashName(name, s.seed)
	sh := s.shardFor(key)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	field := &Field{Name: name, Value: valueCopy, ExpireAt: expireAt}

	var old *Field
	sh.data.Compute(key, func(prev *Field, loaded bool) (*Field, bool) {
		if loaded {
			old = prev
		}
		return field, false
	})
	s.mWrites.Inc()

	s.publish(sh, old, field)
}

// Delete removes a field. Returns whether a live field existed.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Delete(name string) bool {
	key := hashName(name, s.seed)
	sh := s.shardFor(key)
	now := nowMs()

	var old *Field
	sh.data.Compute(key, func(prev *Field, loaded bool) (*Field, bool) {
		if !loaded {
			return nil, true
		}
		old = prev
		return nil, true
	})
	if old == nil {
		return false
	}
	s.mDeletes.Inc()
	s.publish(sh, old, nil)
	return !old.expired(now)
}

// ExpireAt sets the expiration time of an existing live field. A zero time
// removes the expiration (same as Persist). Returns false if the field
// does not exist or has already expired.
//
// Thread-safety: safe for concurrent use.
func (s *Store) ExpireAt(name string, at time.Time) bool {
	var expireAt int64
	if !at.IsZero() {
		expireAt = at.UnixMilli()
	}
	return s.retime(name, expireAt)
}

// Persist removes the expiration time from an existing live field. Returns
// false if the field does not exist, has expired, or had no expiration.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Persist(name string) bool {
	key := hashName(name, s.seed)
	sh := s.shardFor(key)
	now := nowMs()

	var old, repl *Field
	sh.data.Compute(key, func(prev *Field, loaded bool) (*Field, bool) {
		if !loaded || prev.expired(now) || prev.ExpireAt == 0 {
			return prev, !loaded
		}
		old = prev
		repl = &Field{Name: prev.Name, Value: prev.Value, ExpireAt: 0}
		return repl, false
	})
	if repl == nil {
		return false
	}
	s.publish(sh, old, repl)
	return true
}

// retime replaces a live field with a generation carrying a new expiry.
func (s *Store) retime(name string, expireAt int64) bool {
	key := hashName(name, s.seed)
	sh := s.shardFor(key)
	now := nowMs()

	var old, repl *Field
	sh.data.Compute(key, func(prev *Field, loaded bool) (*Field, bool) {
		if !loaded || prev.expired(now) {
			return prev, !loaded
		}
		old = prev
		repl = &Field{Name: prev.Name, Value: prev.Value, ExpireAt: expireAt}
		return repl, false
	})
	if repl == nil {
		return false
	}
	s.publish(sh, old, repl)
	return true
}

// publish hands an expiration-tracking change to the shard's sweeper. Pure
// non-expiring overwrites never touch the index and skip the queue.
func (s *Store) publish(sh *shard, old, new *Field) {
	if trackExpiry(old) == volatile.NoExpiry && trackExpiry(new) == volatile.NoExpiry {
		return
	}
	s.mTrackEvents.Inc()
	sh.events.Push(&fieldEvent{old: old, new: new})
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the field's value. Expired fields are misses even
// before the sweeper reclaims them.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Get(name string) ([]byte, bool) {
	f, ok := s.load(name)
	if !ok {
		return nil, false
	}
	value := make([]byte, len(f.Value))
	copy(value, f.Value)
	return value, true
}

// Has reports whether a live field exists under name.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Has(name string) bool {
	_, ok := s.load(name)
	return ok
}

// TTL returns the remaining lifetime of a field. ok is false if the field
// does not exist, has expired, or has no expiration.
//
// Thread-safety: safe for concurrent use.
func (s *Store) TTL(name string) (time.Duration, bool) {
	f, ok := s.load(name)
	if !ok || f.ExpireAt == 0 {
		return 0, false
	}
	return time.Duration(f.ExpireAt-nowMs()) * time.Millisecond, true
}

func (s *Store) load(name string) (*Field, bool) {
	key := hashName(name, s.seed)
	f, ok := s.shardFor(key).data.Load(key)
	if !ok || f.expired(nowMs()) {
		return nil, false
	}
	return f, true
}

// Len returns the number of stored fields. Expired fields are counted
// until a sweep reclaims them.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.data.Size()
	}
	return n
}

// NextExpiry returns an approximation of the earliest expiration time
// across all shards, accurate to within one index window. ok is false when
// no field carries an expiration.
//
// Thread-safety: safe for concurrent use.
func (s *Store) NextExpiry() (time.Time, bool) {
	earliest := int64(0)
	found := false
	for _, sh := range s.shards {
		sh.mu.Lock()
		exp, ok := sh.vset.EstimatedEarliestExpiry()
		sh.mu.Unlock()
		if ok && (!found || exp < earliest) {
			earliest = exp
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return time.UnixMilli(earliest), true
}

// IndexMemUsage returns the bytes held by the expiration index structures
// across all shards.
//
// Thread-safety: safe for concurrent use.
func (s *Store) IndexMemUsage() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += sh.vset.MemUsage()
		sh.mu.Unlock()
	}
	return total
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Defrag compacts the expiration index of every shard and returns the
// total bytes relocated into fresh allocations. Each shard's walk runs to
// completion but yields the shard lock between cursor steps so foreground
// writes are not stalled.
//
// Thread-safety: safe for concurrent use.
func (s *Store) Defrag() int {
	relocated := 0
	for _, sh := range s.shards {
		var cur volatile.DefragCursor
		for {
			sh.mu.Lock()
			next, done := sh.vset.ScanDefrag(cur, func(bytes int) {
				relocated += bytes
			})
			sh.mu.Unlock()
			if done {
				break
			}
			cur = next
		}
	}
	return relocated
}

// WriteMetrics writes the store's counters in Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.registry.WritePrometheus(w)
}

// Close stops the sweepers and waits for them to drain their event
// queues. The store must not be used afterwards.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		for _, sh := range s.shards {
			sh.events.Close()
		}
		s.sweepers.Wait()
		log.Infof("field store closed")
	})
	return nil
}
