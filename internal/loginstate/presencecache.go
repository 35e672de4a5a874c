package loginstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// PresenceCache mirrors the registry's derived player->shard directory into
// Redis, the same way the teacher's Manager.ClearCache/state.go::GuildAdd
// treat Redis as a prefix-keyed side cache. Nothing in this package ever
// reads authoritative state back out of it; it exists purely so operational
// tooling outside the login process can answer "is this player online"
// without reaching into the event-loop goroutine.
type PresenceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewPresenceCache builds a cache mirror bound to addr/password/db, keying
// every entry under prefix. ttl bounds how long a stale entry survives a
// shard dying without a clean UnregisterShard.
func NewPresenceCache(addr, password string, db int, prefix string, ttl time.Duration, log zerolog.Logger) *PresenceCache {
	return &PresenceCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "presencecache").Logger(),
	}
}

func (c *PresenceCache) key(uid PlayerUID) string {
	return fmt.Sprintf("%s:presence:%d", c.prefix, uid)
}

// MirrorDirectory write-throughs one shard's just-applied player directory.
// Errors are logged and swallowed: the cache is advisory, never load-bearing
// for any login-server decision. Bounds its own writes so the event-loop
// goroutine calling it is never blocked beyond a couple of seconds.
func (c *PresenceCache) MirrorDirectory(shard ShardID, players map[PlayerUID]PlayerMetadata) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for uid, meta := range players {
		if err := c.client.Set(ctx, c.key(uid), fmt.Sprintf("%d:%s:%d", shard, meta.Name, meta.Channel), c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Int64("pc_uid", int64(uid)).Msg("presence cache write failed")
		}
	}
}

// ClearShard removes every cached entry for a shard that just disconnected,
// scanning by prefix the same way the teacher's Manager.ClearCache does.
func (c *PresenceCache) ClearShard(players map[PlayerUID]PlayerMetadata) {
	if len(players) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	keys := make([]string, 0, len(players))
	for uid := range players {
		keys = append(keys, c.key(uid))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Int("count", len(keys)).Msg("presence cache clear failed")
	}
}

// Close releases the underlying connection pool.
func (c *PresenceCache) Close() error {
	return c.client.Close()
}
