package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

import (
	"github.com/redis/go-redis/v9"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/util"
)

// Key templates for better readability and maintainability.
// The identity hash is the cluster hash tag so every stamp of one caller lives on one slot.
const (
	keyAdmitTmpl = "%s:admit:{%s}:%s:%s"
)

// Repo is the timestamp cache behind the admission gate.
type Repo interface {
	KeyAdmission(identity, scope, action string) string
	GetStamp(ctx context.Context, key string) (float64, bool, error)
	SetStamp(ctx context.Context, key string, ts float64) error
	AdmitIfElapsed(ctx context.Context, key string, now, minDelay float64) (bool, float64, error)
	Close() error
}

type RedisRepo struct {
	Prefix         string
	Cli            redis.UniversalClient
	logger         *slog.Logger
	defaultTimeout time.Duration
}

// NewRedis with functional options for flexibility
func NewRedis(cfg *config.Config, logger *slog.Logger, opts ...Option) (*RedisRepo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &RedisRepo{
		Prefix:         cfg.Redis.Prefix,
		logger:         logger,
		defaultTimeout: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(r)
	}

	addrs := normalizeAddrs(cfg.Redis)
	if len(addrs) == 0 {
		return nil, errors.New("no redis addresses configured")
	}

	r.Cli = redis.NewUniversalClient(buildUniversalOptions(cfg.Redis))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cli.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "addrs", addrs, "err", err)
		_ = r.Cli.Close()
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return r, nil
}

// NewRedisWithClient wraps an existing client, e.g. one owned by the caller.
func NewRedisWithClient(cli redis.UniversalClient, prefix string, logger *slog.Logger, opts ...Option) *RedisRepo {
	if cli == nil {
		panic("repo: nil redis client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &RedisRepo{Prefix: prefix, Cli: cli, logger: logger, defaultTimeout: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option pattern for custom configurations
type Option func(*RedisRepo)

func WithDefaultTimeout(d time.Duration) Option {
	return func(r *RedisRepo) { r.defaultTimeout = d }
}

func (r *RedisRepo) withTimeout(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout == 0 {
		opTimeout = r.defaultTimeout
	}
	return context.WithTimeout(ctx, opTimeout)
}

// KeyAdmission builds the admission record key for (identity, scope, action).
func (r *RedisRepo) KeyAdmission(identity, scope, action string) string {
	return fmt.Sprintf(keyAdmitTmpl, r.Prefix, util.FNV64(identity), scope, action)
}

// GetStamp returns the last admitted timestamp, ok=false when none is stored.
func (r *RedisRepo) GetStamp(parentCtx context.Context, key string) (float64, bool, error) {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	val, err := r.Cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get stamp %s: %w", key, err)
	}
	ts, ok := util.ToFloat64(val)
	if !ok {
		r.logger.Warn("ignoring malformed admission stamp", "key", key, "value", val)
		return 0, false, nil
	}
	return ts, true, nil
}

// SetStamp overwrites the stamp. No TTL: eviction is left to the cache itself.
func (r *RedisRepo) SetStamp(parentCtx context.Context, key string, ts float64) error {
	ctx, cancel := r.withTimeout(parentCtx, 0)
	defer cancel()
	if err := r.Cli.Set(ctx, key, formatStamp(ts), 0).Err(); err != nil {
		return fmt.Errorf("set stamp %s: %w", key, err)
	}
	return nil
}

// AdmitIfElapsed runs the compare-and-set script. prev is 0 when no stamp existed.
func (r *RedisRepo) AdmitIfElapsed(parentCtx context.Context, key string, now, minDelay float64) (bool, float64, error) {
	ctx, cancel := r.withTimeout(parentCtx, 200*time.Millisecond)
	defer cancel()
	res, err := ScriptAdmitIfElapsed.Run(ctx, r.Cli, []string{key}, formatStamp(now), formatStamp(minDelay)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("lua script execution failed for key %s: %w", key, err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) < 2 {
		return false, 0, errors.New("invalid script response")
	}
	prev, _ := util.ToFloat64(results[1])
	return util.ToInt64(results[0]) == 1, prev, nil
}

// Close
func (r *RedisRepo) Close() error {
	return r.Cli.Close()
}

// formatStamp writes the shortest decimal that parses back to ts exactly.
func formatStamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// Helper functions
func normalizeAddrs(cfg config.RedisCfg) []string {
	if len(cfg.Addrs) > 0 {
		return cfg.Addrs
	}
	if cfg.Addr == "" {
		return nil
	}
	parts := strings.Split(cfg.Addr, ",")
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// buildUniversalOptions yields a single-node client for one address and a cluster client otherwise.
func buildUniversalOptions(cfg config.RedisCfg) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           normalizeAddrs(cfg),
		Password:        cfg.Password,
		DB:              cfg.DB,
		RouteByLatency:  true,
		PoolSize:        atLeast(cfg.PoolSize, 20),
		MinIdleConns:    atLeast(cfg.MinIdleConns, 2),
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSec) * time.Second,
		DialTimeout:     durationOrDefault(cfg.DialTimeoutMs, 800),
		ReadTimeout:     durationOrDefault(cfg.ReadTimeoutMs, 800),
		WriteTimeout:    durationOrDefault(cfg.WriteTimeoutMs, 800),
		MaxRetries:      atLeast(cfg.MaxRetries, 2),
	}
}

func atLeast(val, def int) int {
	if val > def {
		return val
	}
	return def
}

func durationOrDefault(ms int, defMs int) time.Duration {
	if ms <= 0 {
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}
