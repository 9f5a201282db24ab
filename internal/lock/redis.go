package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
)

// ErrNotAcquired is returned when the lock stays taken past the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// unlockScript deletes the key only while it still holds our token, so a
// lock that expired and was re-taken by another replica is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis locks keys across server replicas with SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    *logging.Logger
}

// RedisOptions tunes a Redis locker. Zero values take defaults.
type RedisOptions struct {
	Prefix string        // key prefix, default "tutorcat:lock:"
	TTL    time.Duration // lease length, default 10s
	Retry  time.Duration // poll interval while contended, default 25ms
}

func NewRedis(client redis.UniversalClient, opts RedisOptions, log *logging.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "tutorcat:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Redis{client: client, prefix: opts.Prefix, ttl: opts.TTL, retry: opts.Retry, log: log.Named("lock")}
}

// Lock polls until the key is free, ctx ends, or one TTL has passed.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	k := r.prefix + key
	deadline := time.Now().Add(r.ttl)

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, ErrNotAcquired)
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.log.Warn("release lock", "key", key, "error", err)
		}
	}, nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
