package source

import (
	"context"
	"errors"
	"fmt"
)

import (
	"github.com/redis/go-redis/v9"
)

// RedisSource reads a JSON limits table stored under one key, so every instance
// sharing the Redis picks up the same rules.
type RedisSource struct {
	cli redis.UniversalClient
	key string
}

func NewRedisSource(cli redis.UniversalClient, key string) *RedisSource {
	if cli == nil {
		panic("source: nil redis client")
	}
	return &RedisSource{cli: cli, key: key}
}

func (s *RedisSource) Fetch(ctx context.Context) (LimitsPayload, error) {
	val, err := s.cli.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return LimitsPayload{}, fmt.Errorf("limits key %s not found", s.key)
	}
	if err != nil {
		return LimitsPayload{}, err
	}
	limits, err := parseLimits(val, "json")
	if err != nil {
		return LimitsPayload{}, err
	}
	return LimitsPayload{Limits: limits, Version: version(val)}, nil
}
