package claims

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	count      int64
	expireAt   time.Time
	expireSets int
}

// fakeStore is a CounterStore whose counters never expire. It records how
// often each counter's expiry was written so set-once can be asserted.
type fakeStore struct {
	counters map[string]*fakeCounter
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counters: make(map[string]*fakeCounter)}
}

func (s *fakeStore) Update(_ context.Context, _ []string, fn func(CounterOps) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s)
}

func (s *fakeStore) Get(key string) int64 {
	if c, ok := s.counters[key]; ok {
		return c.count
	}
	return 0
}

func (s *fakeStore) Incr(key string) int64 {
	c, ok := s.counters[key]
	if !ok {
		c = &fakeCounter{}
		s.counters[key] = c
	}
	c.count++
	return c.count
}

func (s *fakeStore) ExpireAt(key string, at time.Time) {
	c := s.counters[key]
	c.expireAt = at
	c.expireSets++
}

func (s *fakeStore) count(key string) int64 {
	return s.Get(key)
}

var expiry = time.Unix(1756350000, 0)

func tuple(offerKey, userKey string, offerCap, userCap int64) Tuple {
	return Tuple{OfferKey: offerKey, UserKey: userKey, OfferCap: offerCap, UserCap: userCap}
}

func TestStoreGranter_GrantsUnderCaps(t *testing.T) {
	store := newFakeStore()
	granter := NewStoreGranter(store)

	granted, err := granter.Grant(context.Background(), Batch{
		Tuples: []Tuple{
			tuple("offer:a", "user:u1", 10, 2),
			tuple("offer:b", "user:u1", 10, 2),
		},
		ExpireAt: expiry,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"offer:a", "offer:b"}, granted)
	assert.Equal(t, int64(1), store.count("offer:a"))
	assert.Equal(t, int64(1), store.count("offer:b"))
	assert.Equal(t, int64(2), store.count("user:u1"))
}

func TestStoreGranter_ZeroCapAlwaysDenies(t *testing.T) {
	store := newFakeStore()
	granter := NewStoreGranter(store)

	granted, err := granter.Grant(context.Background(), Batch{
		Tuples: []Tuple{
			tuple("offer:a", "user:u1", 0, 5),
			tuple("offer:b", "user:u1", 5, 0),
		},
		ExpireAt: expiry,
	})

	require.NoError(t, err)
	assert.Empty(t, granted)
	assert.Equal(t, int64(0), store.count("offer:a"))
	assert.Equal(t, int64(0), store.count("offer:b"))
	assert.Equal(t, int64(0), store.count("user:u1"))
}

// The shared user counter is charged by the first tuple, so the second
// tuple in the same batch is denied even though its offer has room.
func TestStoreGranter_SharedUserCapWithinBatch(t *testing.T) {
	store := newFakeStore()
	granter := NewStoreGranter(store)

	granted, err := granter.Grant(context.Background(), Batch{
		Tuples: []Tuple{
			tuple("offer:a", "user:u1", 2, 1),
			tuple("offer:b", "user:u1", 5, 1),
		},
		ExpireAt: expiry,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"offer:a"}, granted)
	assert.Equal(t, int64(1), store.count("offer:a"))
	assert.Equal(t, int64(1), store.count("user:u1"))
	assert.Equal(t, int64(0), store.count("offer:b"))
	assert.Equal(t, expiry, store.counters["offer:a"].expireAt)
	assert.Equal(t, expiry, store.counters["user:u1"].expireAt)
}

func TestStoreGranter_SequentialInvocationsStopAtCap(t *testing.T) {
	testCases := []struct {
		desc        string
		offerCap    int64
		invocations int
		wantCount   int64
	}{
		{desc: "fewer invocations than cap", offerCap: 5, invocations: 3, wantCount: 3},
		{desc: "invocations beyond cap", offerCap: 3, invocations: 10, wantCount: 3},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			store := newFakeStore()
			granter := NewStoreGranter(store)

			grants := 0
			for i := 0; i < tC.invocations; i++ {
				granted, err := granter.Grant(context.Background(), Batch{
					Tuples:   []Tuple{tuple("offer:a", "user:u1", tC.offerCap, NoCap)},
					ExpireAt: expiry,
				})
				require.NoError(t, err)
				grants += len(granted)
			}

			assert.Equal(t, tC.wantCount, store.count("offer:a"))
			assert.Equal(t, int(tC.wantCount), grants)
		})
	}
}

func TestStoreGranter_ExpirySetOnlyOnCreation(t *testing.T) {
	store := newFakeStore()
	granter := NewStoreGranter(store)

	first := Batch{
		Tuples:   []Tuple{tuple("offer:a", "user:u1", 10, 10)},
		ExpireAt: expiry,
	}
	_, err := granter.Grant(context.Background(), first)
	require.NoError(t, err)

	second := Batch{
		Tuples:   []Tuple{tuple("offer:a", "user:u1", 10, 10)},
		ExpireAt: expiry.Add(time.Hour),
	}
	_, err = granter.Grant(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, 1, store.counters["offer:a"].expireSets)
	assert.Equal(t, 1, store.counters["user:u1"].expireSets)
	assert.Equal(t, expiry, store.counters["offer:a"].expireAt)
}

// Tuples over disjoint keys grant the same set no matter their order.
func TestStoreGranter_DisjointTuplesOrderIndependent(t *testing.T) {
	forward := []Tuple{
		tuple("offer:a", "user:u1", 1, 1),
		tuple("offer:b", "user:u2", 0, 1),
		tuple("offer:c", "user:u3", 1, 1),
	}
	reversed := []Tuple{forward[2], forward[1], forward[0]}

	grantedForward, err := NewStoreGranter(newFakeStore()).Grant(context.Background(), Batch{Tuples: forward, ExpireAt: expiry})
	require.NoError(t, err)
	grantedReversed, err := NewStoreGranter(newFakeStore()).Grant(context.Background(), Batch{Tuples: reversed, ExpireAt: expiry})
	require.NoError(t, err)

	assert.ElementsMatch(t, grantedForward, grantedReversed)
	assert.Equal(t, []string{"offer:a", "offer:c"}, grantedForward)
	assert.Equal(t, []string{"offer:c", "offer:a"}, grantedReversed)
}

func TestStoreGranter_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("store unreachable")
	granter := NewStoreGranter(store)

	granted, err := granter.Grant(context.Background(), Batch{
		Tuples:   []Tuple{tuple("offer:a", "user:u1", 1, 1)},
		ExpireAt: expiry,
	})

	require.Error(t, err)
	assert.Nil(t, granted)
}
