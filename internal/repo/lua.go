package repo

import (
	"github.com/redis/go-redis/v9"
)

// ScriptAdmitIfElapsed stores now only when the previous stamp is older than the delay.
// Stamps are returned as strings: Lua converts numbers to integers on reply.
var ScriptAdmitIfElapsed = redis.NewScript(`
-- KEYS[1] = stamp_key
-- ARGV[1] = now_sec (fractional)
-- ARGV[2] = min_delay_sec (fractional)

local now   = tonumber(ARGV[1])
local delay = tonumber(ARGV[2])

local prev = redis.call('GET', KEYS[1])
if prev then
  local p = tonumber(prev)
  if p and now - p < delay then
    return {0, prev}
  end
end

redis.call('SET', KEYS[1], ARGV[1])
return {1, prev or ''}
`)
