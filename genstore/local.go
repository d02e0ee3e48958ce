package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localGen struct {
	gen    uint64
	bumped time.Time
}

// Local keeps generations in-process (the cache default). Refresh workers
// must run in the same process for invalidation fencing to reach them.
//
// A cleanup loop prunes keys not bumped within the retention. Pruning resets a
// key to generation 0; entries written under an older, non-zero generation
// are then dropped on read.
type Local struct {
	clock     clockwork.Clock
	retention time.Duration

	mu   sync.RWMutex
	gens map[string]localGen

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*Local)(nil)

// NewLocal starts the cleanup loop when both durations are positive.
// A nil clock uses the real clock.
func NewLocal(clock clockwork.Clock, cleanupInterval, retention time.Duration) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Local{
		clock:     clock,
		retention: retention,
		gens:      make(map[string]localGen),
	}
	if cleanupInterval > 0 && retention > 0 {
		s.stop = make(chan struct{})
		tk := clock.NewTicker(cleanupInterval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer tk.Stop()
			for {
				select {
				case <-tk.Chan():
					s.Cleanup(retention)
				case <-s.stop:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[k].gen // 0 if missing
	s.mu.RUnlock()
	return g, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	now := s.clock.Now()
	s.mu.Lock()
	g := s.gens[k]
	g.gen++
	g.bumped = now
	s.gens[k] = g
	s.mu.Unlock()
	return g.gen, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)

	s.mu.Lock()
	for k, g := range s.gens {
		if g.bumped.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Len reports how many keys currently carry a generation.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *Local) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
