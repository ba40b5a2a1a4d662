package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/rcu"
	"github.com/nanjiek/pixiu-behaviors/internal/types"
)

var (
	// ErrMissingIdentity means no decision can be computed; the caller must end the request.
	ErrMissingIdentity = errors.New("admission: missing identity")
	// ErrTooManyRequests is attached to rejected decisions (HTTP 429).
	ErrTooManyRequests = errors.New("admission: too many requests")
	// ErrMisconfiguredRule is raised when a rule table is installed, never at check time.
	ErrMisconfiguredRule = config.ErrMisconfiguredRule
)

// WildcardScope holds rules applied to scopes without their own entry for an action.
const WildcardScope = "*"

// Cache stores the last admitted timestamp per admission key, in fractional seconds.
type Cache interface {
	GetStamp(ctx context.Context, key string) (float64, bool, error)
	SetStamp(ctx context.Context, key string, ts float64) error
}

// AtomicCache can admit and record in a single step. Used in strict mode.
type AtomicCache interface {
	Cache
	AdmitIfElapsed(ctx context.Context, key string, now, minDelay float64) (bool, float64, error)
}

// Clock supplies the current time for Admit.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// KeyFunc composes the admission record key.
type KeyFunc func(identity, scope, action string) string

// DefaultKey mirrors the "RateLimit|identity|scope|action" layout.
func DefaultKey(identity, scope, action string) string {
	return "RateLimit|" + identity + "|" + scope + "|" + action
}

type ruleSet struct {
	limits config.Limits
}

// Gate decides whether an (identity, scope, action) attempt may proceed.
//
// Without strict mode the check is read-then-write: two concurrent attempts for
// the same key may both be admitted. Strict mode needs an AtomicCache.
type Gate struct {
	cache      Cache
	atomic     AtomicCache
	rules      *rcu.Snapshot[ruleSet]
	keyFunc    KeyFunc
	clock      Clock
	strict     bool
	failPolicy string
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

func WithKeyFunc(f KeyFunc) Option {
	return func(g *Gate) {
		if f != nil {
			g.keyFunc = f
		}
	}
}

func WithClock(c Clock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithStrict switches to atomic admit-if-elapsed when the cache supports it.
func WithStrict(strict bool) Option {
	return func(g *Gate) { g.strict = strict }
}

// WithFailPolicy sets the behavior on cache errors: "fail-open" (default) or "fail-closed".
func WithFailPolicy(policy string) Option {
	return func(g *Gate) { g.failPolicy = normalizeFailPolicy(policy) }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate validates limits and builds a gate. A nil cache panics.
func NewGate(cache Cache, limits config.Limits, opts ...Option) (*Gate, error) {
	if cache == nil {
		panic("admission: nil cache")
	}
	if err := validateLimits(limits); err != nil {
		return nil, err
	}
	g := &Gate{
		cache:      cache,
		rules:      rcu.NewSnapshot(&ruleSet{limits: cloneLimits(limits)}),
		keyFunc:    DefaultKey,
		clock:      ClockFunc(time.Now),
		failPolicy: "fail-open",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if ac, ok := cache.(AtomicCache); ok {
		g.atomic = ac
	}
	if g.strict && g.atomic == nil {
		g.logger.Warn("strict admission requested but cache has no atomic operation, falling back to read-then-write")
	}
	return g, nil
}

// ReplaceRules installs a new rule table. Invalid tables are rejected and the old one kept.
func (g *Gate) ReplaceRules(limits config.Limits) error {
	if err := validateLimits(limits); err != nil {
		return err
	}
	g.rules.Replace(&ruleSet{limits: cloneLimits(limits)})
	g.logger.Info("reloaded admission rules", "scopes", len(limits))
	return nil
}

// Rule returns the rule applying to scope/action, falling back to the wildcard scope.
func (g *Gate) Rule(scope, action string) (config.RuleSpec, bool) {
	set := g.rules.Load()
	if actions, ok := set.limits[scope]; ok {
		if r, ok := actions[action]; ok {
			return r, true
		}
	}
	if actions, ok := set.limits[WildcardScope]; ok {
		if r, ok := actions[action]; ok {
			return r, true
		}
	}
	return config.RuleSpec{}, false
}

// Admit is Check at the gate clock's current time.
func (g *Gate) Admit(ctx context.Context, identity, scope, action string) (types.Decision, error) {
	return g.Check(ctx, identity, scope, action, g.clock.Now())
}

// Check evaluates one attempt at now.
//
// An empty identity returns ErrMissingIdentity before any rule is consulted.
// Actions without a rule are admitted without touching the cache. A rejection
// is reported as Allowed=false with Err=ErrTooManyRequests and a nil error; the
// stored stamp is left as it was.
func (g *Gate) Check(ctx context.Context, identity, scope, action string, now time.Time) (types.Decision, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return types.Decision{Allowed: false, Reason: "missing_identity", Err: ErrMissingIdentity}, ErrMissingIdentity
	}

	rule, ok := g.Rule(scope, action)
	if !ok {
		return types.Decision{Allowed: true, Reason: "no_rule"}, nil
	}

	key := g.keyFunc(identity, scope, action)
	nowSec := toSeconds(now)
	delay := rule.Interval / float64(rule.Rate)

	if g.strict && g.atomic != nil {
		admitted, prev, err := g.atomic.AdmitIfElapsed(ctx, key, nowSec, delay)
		if err != nil {
			return g.onCacheError(key, err), nil
		}
		if !admitted {
			return rejected(key, delay, nowSec-prev), nil
		}
		return types.Decision{Allowed: true, Reason: "allowed", Key: key}, nil
	}

	prev, found, err := g.cache.GetStamp(ctx, key)
	if err != nil {
		return g.onCacheError(key, err), nil
	}
	if found && nowSec-prev < delay {
		return rejected(key, delay, nowSec-prev), nil
	}
	if err := g.cache.SetStamp(ctx, key, nowSec); err != nil {
		return g.onCacheError(key, err), nil
	}
	return types.Decision{Allowed: true, Reason: "allowed", Key: key}, nil
}

func (g *Gate) onCacheError(key string, err error) types.Decision {
	if g.failPolicy == "fail-closed" {
		g.logger.Error("admission cache failed, rejecting", "key", key, "err", err)
		return types.Decision{Allowed: false, Reason: "fail_closed", Key: key, Err: err}
	}
	g.logger.Warn("fail-open due to admission cache error", "key", key, "err", err)
	return types.Decision{Allowed: true, Reason: "fail_open", Key: key, Err: err}
}

func rejected(key string, delay, elapsed float64) types.Decision {
	wait := delay - elapsed
	if wait < 0 {
		wait = 0
	}
	return types.Decision{
		Allowed:      false,
		RetryAfterMs: int64(math.Ceil(math.Round(wait*1e6) / 1e3)),
		Reason:       "too_many_requests",
		Key:          key,
		Err:          ErrTooManyRequests,
	}
}

func toSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func validateLimits(limits config.Limits) error {
	for scope, actions := range limits {
		for action, rule := range actions {
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("admission rule %s/%s: %w", scope, action, err)
			}
		}
	}
	return nil
}

func cloneLimits(limits config.Limits) config.Limits {
	out := make(config.Limits, len(limits))
	for scope, actions := range limits {
		inner := make(map[string]config.RuleSpec, len(actions))
		for action, rule := range actions {
			inner[action] = rule
		}
		out[scope] = inner
	}
	return out
}

func normalizeFailPolicy(policy string) string {
	policy = strings.ToLower(strings.TrimSpace(policy))
	if policy != "fail-open" && policy != "fail-closed" {
		return "fail-open"
	}
	return policy
}
