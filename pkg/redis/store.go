package redis

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tarun-engg-dpm/offerings/pkg/claims"
)

// claimScript is the whole claim loop: Redis runs scripts with no
// interleaving, so the batch's read-check-increment sequence is atomic
// against every other invocation. KEYS is the interleaved (offer, user)
// pairs; ARGV is the interleaved caps with the absolute expiry last.
// EXPIREAT fires only when INCR created the counter, so all counters born
// in one cycle expire together.
var claimScript = redis.NewScript(`
local granted = {}
local expire_at = tonumber(ARGV[#ARGV])

for i = 1, #KEYS / 2 do
  local offer_key = KEYS[(i * 2) - 1]
  local user_key = KEYS[i * 2]
  local offer_cap = tonumber(ARGV[(i * 2) - 1])
  local user_cap = tonumber(ARGV[i * 2])

  local offer_count = tonumber(redis.call('GET', offer_key) or 0)
  local user_count = tonumber(redis.call('GET', user_key) or 0)

  if offer_count < offer_cap and user_count < user_cap then
    local new_offer_count = redis.call('INCR', offer_key)
    local new_user_count = redis.call('INCR', user_key)

    granted[#granted + 1] = offer_key

    if new_offer_count == 1 then
      redis.call('EXPIREAT', offer_key, expire_at)
    end
    if new_user_count == 1 then
      redis.call('EXPIREAT', user_key, expire_at)
    end
  end
end

return granted
`)

// Granter runs claim batches on Redis. Script.Run tries EVALSHA first and
// falls back to EVAL when the script is not cached yet.
type Granter struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewGranter(client *redis.Client, logger *logrus.Logger) *Granter {
	return &Granter{
		client: client,
		logger: logger,
	}
}

func (g *Granter) Grant(ctx context.Context, batch claims.Batch) ([]string, error) {
	granted, err := claimScript.Run(ctx, g.client, batch.Keys(), batch.Args()...).StringSlice()
	if err != nil {
		return nil, errors.Wrap(err, "running claim script")
	}

	return granted, nil
}
