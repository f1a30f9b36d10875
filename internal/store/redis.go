package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/model"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL       string
	Password  string
	KeyPrefix string
}

// NewRedisClient parses the URL and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func prefixOrDefault(p string) string {
	if p == "" {
		return "billadj"
	}
	return p
}

// RedisResults implements ResultStore with SET NX. Results expire after TTL.
type RedisResults struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResults returns a Redis-backed ResultStore. A zero ttl keeps results forever.
func NewRedisResults(rdb *redis.Client, prefix string, ttl time.Duration) *RedisResults {
	return &RedisResults{rdb: rdb, prefix: prefixOrDefault(prefix), ttl: ttl}
}

func (s *RedisResults) key(jobID string) string {
	return fmt.Sprintf("%s:result:%s", s.prefix, jobID)
}

// PutOnce implements ResultStore.
func (s *RedisResults) PutOnce(ctx context.Context, r *model.Result) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key(r.JobID), doc, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx result %s: %w", r.JobID, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Get implements ResultStore.
func (s *RedisResults) Get(ctx context.Context, jobID string) (*model.Result, error) {
	doc, err := s.rdb.Get(ctx, s.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	var r model.Result
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &r, nil
}

// Delete implements ResultStore.
func (s *RedisResults) Delete(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, s.key(jobID)).Err()
}

// DeleteOlderThan is a no-op: Redis expires results by TTL.
func (s *RedisResults) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared across processes. The lease is
// renewed every ttl/3 while held, so ttl only bounds how long a crashed
// holder blocks others.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	log    zerolog.Logger
}

// NewRedisLocker returns a locker whose leases expire after ttl unless renewed.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefixOrDefault(prefix), ttl: ttl, poll: 100 * time.Millisecond, log: log}
}

// Lock polls SET NX PX until the lease is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := fmt.Sprintf("%s:lock:%s", l.prefix, key)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Int()
			switch {
			case err != nil:
				l.log.Warn().Err(err).Str("lock", k).Msg("lock release failed; lease will expire")
			case n == 0:
				l.log.Warn().Str("lock", k).Msg("lock lease was lost before release")
			}
		})
	}, nil
}

// renew extends the lease until stop is closed or the lease is lost.
func (l *RedisLocker) renew(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(l.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := renewScript.Run(ctx, l.rdb, []string{k}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.log.Warn().Err(err).Str("lock", k).Msg("lock renewal failed")
			continue
		}
		if n == 0 {
			l.log.Error().Str("lock", k).Msg("lock lease lost while held")
			return
		}
	}
}
