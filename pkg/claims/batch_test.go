package claims

import (
	"errors"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestDecodeBatch(t *testing.T) {
	testCases := []struct {
		desc    string
		keys    []string
		args    []string
		want    Batch
		wantErr error
	}{
		{
			desc: "valid two-tuple batch",
			keys: []string{"offer:a:20260828", "user_offer:u1:20260828", "offer:b:20260828", "user_offer:u1:20260828"},
			args: []string{"10", "1", "5", "1", "1756350000"},
			want: Batch{
				Tuples: []Tuple{
					{OfferKey: "offer:a:20260828", UserKey: "user_offer:u1:20260828", OfferCap: 10, UserCap: 1},
					{OfferKey: "offer:b:20260828", UserKey: "user_offer:u1:20260828", OfferCap: 5, UserCap: 1},
				},
				ExpireAt: time.Unix(1756350000, 0),
			},
		},
		{
			desc: "zero-pair batch is valid and empty",
			keys: []string{},
			args: []string{"1756350000"},
			want: Batch{
				Tuples:   []Tuple{},
				ExpireAt: time.Unix(1756350000, 0),
			},
		},
		{
			desc:    "odd key count",
			keys:    []string{"offer:a:20260828"},
			args:    []string{"10", "1756350000"},
			wantErr: ErrMalformedBatch,
		},
		{
			desc:    "missing trailing expiry",
			keys:    []string{"offer:a:20260828", "user_offer:u1:20260828"},
			args:    []string{"10", "1"},
			wantErr: ErrMalformedBatch,
		},
		{
			desc:    "non-numeric cap",
			keys:    []string{"offer:a:20260828", "user_offer:u1:20260828"},
			args:    []string{"10", "lots", "1756350000"},
			wantErr: ErrMalformedBatch,
		},
		{
			desc:    "expiry not a valid instant",
			keys:    []string{"offer:a:20260828", "user_offer:u1:20260828"},
			args:    []string{"10", "1", "0"},
			wantErr: ErrMalformedBatch,
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			got, err := DecodeBatch(tC.keys, tC.args)

			if tC.wantErr != nil {
				if !errors.Is(err, tC.wantErr) {
					t.Fatalf("got err %v, want %v", err, tC.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("got err %v, want no error", err)
			}
			assert.Equal(t, tC.want, got)
		})
	}
}

func TestBatchWireForm(t *testing.T) {
	batch := Batch{
		Tuples: []Tuple{
			{OfferKey: "offer:a", UserKey: "user:u1", OfferCap: 3, UserCap: 1},
			{OfferKey: "offer:b", UserKey: "user:u2", OfferCap: 7, UserCap: 2},
		},
		ExpireAt: time.Unix(1756350000, 0),
	}

	assert.Equal(t, []string{"offer:a", "user:u1", "offer:b", "user:u2"}, batch.Keys())
	assert.Equal(t, []interface{}{int64(3), int64(1), int64(7), int64(2), int64(1756350000)}, batch.Args())
}
