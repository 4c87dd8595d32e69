package fieldstore

import (
	"time"

	"github.com/hfxdb/hfx/lib/volatile"
)

// sweeper is the per-shard maintenance goroutine. It is the only writer of
// the shard's expiration index: foreground writes describe their tracking
// changes as events, the sweeper folds them into the index between sweeps.
//
// WARNING: started by New, never call directly.
func (s *Store) sweeper(sh *shard) {
	defer s.sweepers.Done()

	timer := time.NewTimer(s.sweepInterval)
	defer timer.Stop()

	for {
		timer.Reset(s.sweepInterval)

		endLoop := false
		for !endLoop {
			select {
			case ev, ok := <-sh.events.Recv():
				if !ok {
					return
				}
				sh.mu.Lock()
				s.applyEvent(sh, ev)
				sh.mu.Unlock()

			case <-timer.C:
				endLoop = true
			}
		}

		s.sweep(sh)
	}
}

// applyEvent reconciles one tracking change into the index. Events from
// concurrent writers to the same key can arrive out of order; identity
// matching keeps the index convergent: a swap whose old generation is
// already gone falls back to a plain add, and any stale generation left
// behind is harmless — its sweep finds the data map no longer holds it and
// drops only the index entry.
func (s *Store) applyEvent(sh *shard, ev *fieldEvent) {
	oldExp := trackExpiry(ev.old)
	newExp := trackExpiry(ev.new)

	if !sh.vset.Update(ev.old, ev.new, oldExp, newExp) && newExp != volatile.NoExpiry {
		sh.vset.Add(ev.new)
	}
}

// sweep reclaims up to sweepBatch expired fields from one shard. A field
// is deleted from the data map only if it still holds the exact expired
// generation; anything newer stays untouched.
func (s *Store) sweep(sh *shard) {
	now := nowMs()

	sh.mu.Lock()
	n := sh.vset.RemoveExpired(now, s.sweepBatch, func(f *Field) {
		key := hashName(f.Name, s.seed)
		deleted := false
		sh.data.Compute(key, func(prev *Field, loaded bool) (*Field, bool) {
			if !loaded || prev != f {
				return prev, !loaded
			}
			deleted = true
			return nil, true
		})
		if deleted {
			s.mExpired.Inc()
		} else {
			s.mStaleIndexed.Inc()
		}
	})
	sh.mu.Unlock()

	if n > 0 {
		log.Debugf("sweep reclaimed %d expired fields", n)
	}
}
