package claims

import (
	"context"
	"time"
)

// Granter applies one claim batch as a single indivisible operation and
// returns the offer keys that were granted, preserving input order.
type Granter interface {
	Grant(ctx context.Context, batch Batch) ([]string, error)
}

// CounterOps are the host primitives the claim loop runs against. The
// store hands an implementation to the Update callback; every call made
// through it is covered by the store's serialization guarantee.
type CounterOps interface {
	// Get returns the current count, 0 when the key is absent or expired.
	Get(key string) int64
	// Incr increments the counter, creating it at 0 first if absent, and
	// returns the post-increment value.
	Incr(key string) int64
	// ExpireAt sets the counter's absolute expiry.
	ExpireAt(key string, at time.Time)
}

// CounterStore executes a batch of counter operations with no interleaving
// from any other invocation touching overlapping keys.
type CounterStore interface {
	Update(ctx context.Context, keys []string, fn func(CounterOps) error) error
}

// StoreGranter runs the claim loop against a CounterStore. For each tuple
// in order it reads both counts, grants iff both are strictly under their
// caps, increments both counters, and stamps the batch expiry on any
// counter whose increment created it. Later tuples see earlier tuples'
// increments, so repeated keys within a batch are capped cumulatively.
// There is no rollback path: nothing else can interleave inside Update,
// so a tuple can never be denied after being partially committed.
type StoreGranter struct {
	store CounterStore
}

func NewStoreGranter(store CounterStore) *StoreGranter {
	return &StoreGranter{store: store}
}

func (g *StoreGranter) Grant(ctx context.Context, batch Batch) ([]string, error) {
	granted := make([]string, 0, len(batch.Tuples))

	err := g.store.Update(ctx, batch.Keys(), func(ops CounterOps) error {
		for _, t := range batch.Tuples {
			// Strict less-than: a cap of zero never grants.
			if ops.Get(t.OfferKey) >= t.OfferCap || ops.Get(t.UserKey) >= t.UserCap {
				continue
			}

			if ops.Incr(t.OfferKey) == 1 {
				ops.ExpireAt(t.OfferKey, batch.ExpireAt)
			}
			if ops.Incr(t.UserKey) == 1 {
				ops.ExpireAt(t.UserKey, batch.ExpireAt)
			}
			granted = append(granted, t.OfferKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return granted, nil
}
