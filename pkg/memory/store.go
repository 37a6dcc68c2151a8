package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/claims"
)

type entry struct {
	count    int64
	expireAt time.Time // zero means no expiry set yet
}

// Store is an in-process claims.CounterStore. One mutex serializes whole
// batches, which is exactly the no-interleaving guarantee the claim loop
// needs. Expired counters read as absent and are reclaimed lazily on
// access plus periodically by Run.
type Store struct {
	mu       sync.Mutex
	counters map[string]*entry

	logger     *logrus.Logger
	now        func() time.Time
	sweepEvery time.Duration
}

func NewStore(logger *logrus.Logger, now func() time.Time, sweepEvery time.Duration) *Store {
	return &Store{
		counters:   make(map[string]*entry),
		logger:     logger,
		now:        now,
		sweepEvery: sweepEvery,
	}
}

// Update runs fn under the store lock. The keys argument is unused: the
// lock already covers every key, overlapping or not.
func (s *Store) Update(ctx context.Context, _ []string, fn func(claims.CounterOps) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ops{s})
}

// ops must only be used while holding the store lock.
type ops struct {
	s *Store
}

func (o ops) Get(key string) int64 {
	e, ok := o.s.counters[key]
	if !ok {
		return 0
	}
	if o.s.expired(e) {
		delete(o.s.counters, key)
		return 0
	}
	return e.count
}

func (o ops) Incr(key string) int64 {
	e, ok := o.s.counters[key]
	if !ok || o.s.expired(e) {
		e = &entry{}
		o.s.counters[key] = e
	}
	e.count++
	return e.count
}

func (o ops) ExpireAt(key string, at time.Time) {
	if e, ok := o.s.counters[key]; ok {
		e.expireAt = at
	}
}

func (s *Store) expired(e *entry) bool {
	return !e.expireAt.IsZero() && !e.expireAt.After(s.now())
}

// Run sweeps expired counters until cancel is closed.
func (s *Store) Run(cancel chan struct{}) error {
	for {
		select {
		case <-cancel:
			return nil
		case <-time.After(s.sweepEvery):
			swept := s.sweep()
			if swept > 0 {
				s.logger.Debugf("swept %d expired counters", swept)
			}
		}
	}
}

func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for k, e := range s.counters {
		if s.expired(e) {
			delete(s.counters, k)
			swept++
		}
	}
	return swept
}
