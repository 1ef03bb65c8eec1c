package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds locks as keys set with NX and a PX expiry.
type Redis struct {
	rdb    *redis.Client
	lease  time.Duration
	prefix string
}

// NewRedis creates a Redis backend.
func NewRedis(rdb *redis.Client, lease time.Duration) *Redis {
	return &Redis{rdb: rdb, lease: lease, prefix: "parceltrack:lock:"}
}

func (r *Redis) TryLock(ctx context.Context, name, owner string) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+name, owner, r.lease).Result()
}

func (r *Redis) Unlock(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, r.rdb, []string{r.prefix + name}, owner).Err()
}
