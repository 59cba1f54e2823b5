package flagstore

import (
	"context"
	"time"

	"github.com/lowc1012/authguard/internal/log"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ensure that RedisStore satisfies an interface Store
var _ Store = &RedisStore{}

const defaultKeyPrefix = "authguard:flags:"

// RedisStore keeps each session's flags in one hash whose expiry is pushed
// back on every write.
type RedisStore struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

// NewRedisStore creates a RedisStore. A non-positive ttl keeps hashes
// forever.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStore) Set(ctx context.Context, session string, flag Flag, value string) error {
	key := s.getKey(session)

	// Using Redis pipeline so the write and its expiry travel together
	p := s.client.Pipeline()
	setResult := p.HSet(ctx, key, string(flag), value)
	var expireResult *redis.BoolCmd
	if s.ttl > 0 {
		expireResult = p.Expire(ctx, key, s.ttl)
	}

	if _, err := p.Exec(ctx); err != nil {
		log.Logger().Error("Failed to execute flag write pipeline",
			zap.String("key", key), zap.String("flag", string(flag)), zap.Error(err))
		return err
	}
	if err := setResult.Err(); err != nil {
		return err
	}
	if expireResult != nil {
		if err := expireResult.Err(); err != nil {
			log.Logger().Error("Failed to set an expiration to key", zap.String("key", key), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, session string) (map[Flag]string, error) {
	values, err := s.client.HGetAll(ctx, s.getKey(session)).Result()
	if err != nil {
		log.Logger().Error("Failed to read flags", zap.String("session", session), zap.Error(err))
		return nil, err
	}

	flags := make(map[Flag]string, len(values))
	for name, value := range values {
		f, err := ParseFlag(name)
		if err != nil {
			// written by something else sharing the prefix
			continue
		}
		flags[f] = value
	}
	return flags, nil
}

func (s *RedisStore) Clear(ctx context.Context, session string, flags ...Flag) error {
	key := s.getKey(session)
	if len(flags) == 0 {
		return s.client.Del(ctx, key).Err()
	}

	fields := make([]string, 0, len(flags))
	for _, f := range flags {
		fields = append(fields, string(f))
	}
	if err := s.client.HDel(ctx, key, fields...).Err(); err != nil {
		log.Logger().Error("Failed to clear flags", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) getKey(session string) string {
	return s.keyPrefix + session
}
