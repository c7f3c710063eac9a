package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// TriggerLimiter throttles scrape triggers per calling client. Each client
// holds a budget of triggers that refills continuously up to a burst cap.
// The budget lives in Redis, so restarting the server does not hand abusive
// clients a fresh allowance against the portal.
type TriggerLimiter struct {
	client    *redis.Client
	burst     int
	perSecond float64
	ttl       time.Duration
}

// NewTriggerLimiter builds a limiter allowing burst immediate triggers per
// client, regained at perSecond. Idle client budgets expire after ttl.
func NewTriggerLimiter(client *redis.Client, burst int, perSecond float64, ttl time.Duration) *TriggerLimiter {
	return &TriggerLimiter{
		client:    client,
		burst:     burst,
		perSecond: perSecond,
		ttl:       ttl,
	}
}

// AllowTrigger spends one trigger from the client's budget if any remains.
// It reports whether the trigger may proceed and the budget left over.
func (l *TriggerLimiter) AllowTrigger(ctx context.Context, clientID string) (bool, float64, error) {
	nowMS := time.Now().UnixMilli()
	res, err := triggerBudgetScript.Run(ctx, l.client,
		[]string{"scrape:trigger:" + clientID},
		l.burst, l.perSecond, nowMS, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, eris.Wrapf(err, "ratelimit: budget check for %s", clientID)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return false, 0, eris.Errorf("ratelimit: unexpected script reply %v", res)
	}
	remaining, err := strconv.ParseFloat(arr[1].(string), 64)
	if err != nil {
		return false, 0, eris.Wrap(err, "ratelimit: parse remaining budget")
	}
	return arr[0].(int64) == 1, remaining, nil
}

// triggerBudgetScript refills the client's budget for the elapsed time and
// spends one trigger when at least a whole one is available. The remaining
// budget is returned as a string so fractional refill survives the reply.
var triggerBudgetScript = redis.NewScript(`
local burst = tonumber(ARGV[1])
local per_second = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'budget', 'stamp_ms')
local budget = tonumber(state[1])
local stamp_ms = tonumber(state[2])
if budget == nil then budget = burst end
if stamp_ms == nil then stamp_ms = now_ms end

local elapsed_ms = math.max(0, now_ms - stamp_ms)
budget = math.min(burst, budget + elapsed_ms / 1000 * per_second)

local spent = 0
if budget >= 1 then
  spent = 1
  budget = budget - 1
end

redis.call('HMSET', KEYS[1], 'budget', budget, 'stamp_ms', now_ms)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {spent, tostring(budget)}
`)
