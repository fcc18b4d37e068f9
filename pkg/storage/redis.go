package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient parses the URL, applies overrides and pings the server
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisHistoryStore keeps only the latest action per address, as unix
// seconds, expiring after the retention period
type RedisHistoryStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisHistoryStore creates a store. A non-positive retention keeps keys
// forever.
func NewRedisHistoryStore(client *redis.Client, retention time.Duration) *RedisHistoryStore {
	return &RedisHistoryStore{
		client:    client,
		prefix:    "keyhole:flood:",
		retention: retention,
	}
}

func (s *RedisHistoryStore) key(addr string) string {
	return s.prefix + addr
}

// LastAction implements HistoryStore
func (s *RedisHistoryStore) LastAction(ctx context.Context, addr string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt flood history for %s: %w", addr, err)
	}
	return time.Unix(secs, 0), true, nil
}

// recordScript stores ARGV[1] unless a newer timestamp is already present.
// ARGV[2] is the expiry in milliseconds, zero keeps the key forever.
var recordScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// Record implements HistoryStore. An older timestamp never overwrites a
// newer one.
func (s *RedisHistoryStore) Record(ctx context.Context, rec FloodRecord) error {
	if rec.SourceAddress == "" {
		return ErrInvalidRecord
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var expiry int64
	if s.retention > 0 {
		expiry = s.retention.Milliseconds()
	}

	err := recordScript.Run(ctx, s.client, []string{s.key(rec.SourceAddress)}, ts.Unix(), expiry).Err()
	if err != nil {
		return fmt.Errorf("redis record failed: %w", err)
	}
	return nil
}
