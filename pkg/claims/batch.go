package claims

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrMalformedBatch is returned when the raw key/arg lists of a claim
// invocation are misaligned or contain a non-numeric value. It is always
// detected before any counter is touched.
var ErrMalformedBatch = errors.New("malformed claim batch")

// NoCap marks a counter side that tracks usage but never denies.
const NoCap int64 = math.MaxInt64

// Tuple is one claim attempt: an offer counter and a user counter, each
// with the cap that governs it for this invocation.
type Tuple struct {
	OfferKey string
	UserKey  string
	OfferCap int64
	UserCap  int64
}

// Batch is an ordered list of tuples sharing one absolute expiry. Order
// matters: it determines result order and makes caps cumulative when the
// same key repeats within the batch.
type Batch struct {
	Tuples   []Tuple
	ExpireAt time.Time
}

// Keys returns every counter key referenced by the batch, interleaved in
// tuple order (offer, user, offer, user, ...).
func (b Batch) Keys() []string {
	keys := make([]string, 0, 2*len(b.Tuples))
	for _, t := range b.Tuples {
		keys = append(keys, t.OfferKey, t.UserKey)
	}
	return keys
}

// Args returns the caps interleaved in tuple order followed by the expiry
// as epoch seconds, mirroring Keys. Keys and Args together are the wire
// form consumed by DecodeBatch and by the redis script.
func (b Batch) Args() []interface{} {
	args := make([]interface{}, 0, 2*len(b.Tuples)+1)
	for _, t := range b.Tuples {
		args = append(args, t.OfferCap, t.UserCap)
	}
	return append(args, b.ExpireAt.Unix())
}

// DecodeBatch validates and pairs a raw invocation: keys holds interleaved
// (offer, user) key pairs, args holds the matching interleaved caps plus a
// trailing absolute expiry in epoch seconds. len(args) must be exactly
// len(keys)+1 and len(keys) must be even.
func DecodeBatch(keys []string, args []string) (Batch, error) {
	if len(keys)%2 != 0 {
		return Batch{}, errors.Wrapf(ErrMalformedBatch, "want interleaved key pairs, got %d keys", len(keys))
	}
	if len(args) != len(keys)+1 {
		return Batch{}, errors.Wrapf(ErrMalformedBatch, "want %d args for %d keys, got %d", len(keys)+1, len(keys), len(args))
	}

	caps := make([]int64, len(args))
	for i, raw := range args {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Batch{}, errors.Wrapf(ErrMalformedBatch, "arg %d is not numeric: %q", i, raw)
		}
		caps[i] = n
	}

	expireAt := caps[len(caps)-1]
	if expireAt <= 0 {
		return Batch{}, errors.Wrapf(ErrMalformedBatch, "expiry %d is not a valid instant", expireAt)
	}

	tuples := make([]Tuple, 0, len(keys)/2)
	for i := 0; i < len(keys); i += 2 {
		tuples = append(tuples, Tuple{
			OfferKey: keys[i],
			UserKey:  keys[i+1],
			OfferCap: caps[i],
			UserCap:  caps[i+1],
		})
	}

	return Batch{Tuples: tuples, ExpireAt: time.Unix(expireAt, 0)}, nil
}
