package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

import (
	"gopkg.in/yaml.v3"
)

// ErrMisconfiguredRule is returned for rate rules that cannot yield a positive delay.
var ErrMisconfiguredRule = errors.New("misconfigured rate rule")

// ServerCfg —— HTTP 服务端口/地址配置
type ServerCfg struct {
	HTTPAddr          string `yaml:"httpAddr"`          // 监听地址，例如 ":8080"
	ReadHeaderTimeout int    `yaml:"readHeaderTimeout"` // seconds
	ShutdownTimeout   int    `yaml:"shutdownTimeout"`   // seconds
}

// RedisCfg —— Redis 连接与命名空间配置
type RedisCfg struct {
	Addr               string   `yaml:"addr"`               // Redis address, e.g. "127.0.0.1:6379"
	Addrs              []string `yaml:"addrs"`              // Optional cluster addresses
	Password           string   `yaml:"password"`           // Redis password
	DB                 int      `yaml:"db"`                 // Redis DB index (single node only)
	Prefix             string   `yaml:"prefix"`             // Key prefix
	PoolSize           int      `yaml:"poolSize"`           // Connection pool size
	MinIdleConns       int      `yaml:"minIdleConns"`       // Minimum idle connections
	ConnMaxIdleTimeSec int      `yaml:"connMaxIdleTimeSec"` // Max idle time (sec)
	MaxRetries         int      `yaml:"maxRetries"`         // Command retry count
	ReadTimeoutMs      int      `yaml:"readTimeoutMs"`      // Read timeout (ms)
	WriteTimeoutMs     int      `yaml:"writeTimeoutMs"`     // Write timeout (ms)
	DialTimeoutMs      int      `yaml:"dialTimeoutMs"`      // Dial timeout (ms)
}

// DatabaseCfg describes the record store holding join rows.
type DatabaseCfg struct {
	DSN                string `yaml:"dsn"` // postgres://... or file:behaviors.db
	MaxOpenConns       int    `yaml:"maxOpenConns"`
	MaxIdleConns       int    `yaml:"maxIdleConns"`
	ConnMaxLifetimeSec int    `yaml:"connMaxLifetimeSec"`
}

// LogCfg controls the slog handler and optional rotated file output.
type LogCfg struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // empty means stdout
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// GateCfg —— 准入闸门
type GateCfg struct {
	FailPolicy string `yaml:"failPolicy"` // fail-open | fail-closed, applied when the cache errors
	Strict     bool   `yaml:"strict"`     // atomic admit-if-elapsed instead of read-then-write
	Cache      string `yaml:"cache"`      // redis | memory
}

// IdentityCfg names where the caller identity is read from.
type IdentityCfg struct {
	UserHeader    string `yaml:"userHeader"`
	SessionCookie string `yaml:"sessionCookie"`
	SessionHeader string `yaml:"sessionHeader"`
}

// LinkSetCfg declares a link set exposed over HTTP.
type LinkSetCfg struct {
	Name  string `yaml:"name"`  // e.g. "tags", "options"
	Kinds bool   `yaml:"kinds"` // rows carry a relation kind discriminator
}

// NacosCfg - Nacos config center (pull mode)
type NacosCfg struct {
	Addr      string `yaml:"addr"`      // Nacos address, e.g. "http://127.0.0.1:8848"
	Namespace string `yaml:"namespace"` // tenant/namespace
	Group     string `yaml:"group"`     // default DEFAULT_GROUP
	DataID    string `yaml:"dataId"`    // config dataId holding the limits
	Username  string `yaml:"username"`  // optional
	Password  string `yaml:"password"`  // optional
	TimeoutMs int    `yaml:"timeoutMs"` // default 2000
	Format    string `yaml:"format"`    // json | yaml (auto-detect if empty)
}

func (n NacosCfg) Enabled() bool {
	return n.Addr != "" && n.DataID != ""
}

// RulesCfg —— 规则热更新：轮询配置文件或 Nacos
type RulesCfg struct {
	WatchFile      bool     `yaml:"watchFile"`      // re-read limits from the config file
	RedisKey       string   `yaml:"redisKey"`       // JSON limits shared through Redis
	PollIntervalMs int      `yaml:"pollIntervalMs"` // default 5000
	Nacos          NacosCfg `yaml:"nacos"`
}

// RuleSpec —— 单条限流规则：interval 秒内允许 rate 次
//
// YAML accepts either a bare integer ("view: 10", one second interval) or a
// two element sequence ("create: [60, 1]").
type RuleSpec struct {
	Interval float64
	Rate     int64
}

// Limits maps scope -> action -> rule.
type Limits map[string]map[string]RuleSpec

// Config —— 全量配置
type Config struct {
	Server   ServerCfg    `yaml:"server"`
	Redis    RedisCfg     `yaml:"redis"`
	Database DatabaseCfg  `yaml:"database"`
	Log      LogCfg       `yaml:"log"`
	Gate     GateCfg      `yaml:"gate"`
	Identity IdentityCfg  `yaml:"identity"`
	Rules    RulesCfg     `yaml:"rules"`
	Limits   Limits       `yaml:"limits"`
	LinkSets []LinkSetCfg `yaml:"linkSets"`
}

// UnmarshalYAML decodes the shorthand and the pair form of a rule.
func (r *RuleSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		rate, err := decodeRate(value)
		if err != nil {
			return err
		}
		*r = RuleSpec{Interval: 1, Rate: rate}
		return nil
	case yaml.SequenceNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("%w: line %d: want [interval, rate], got %d values", ErrMisconfiguredRule, value.Line, len(value.Content))
		}
		var interval float64
		if err := value.Content[0].Decode(&interval); err != nil {
			return fmt.Errorf("%w: line %d: interval %q is not a number", ErrMisconfiguredRule, value.Line, value.Content[0].Value)
		}
		rate, err := decodeRate(value.Content[1])
		if err != nil {
			return err
		}
		*r = RuleSpec{Interval: interval, Rate: rate}
		return nil
	default:
		return fmt.Errorf("%w: line %d: rule must be an integer or [interval, rate]", ErrMisconfiguredRule, value.Line)
	}
}

// UnmarshalJSON accepts 5 or [60, 1], mirroring the YAML forms.
func (r *RuleSpec) UnmarshalJSON(b []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil || len(node.Content) != 1 {
		return fmt.Errorf("%w: %s", ErrMisconfiguredRule, strings.TrimSpace(string(b)))
	}
	return r.UnmarshalYAML(node.Content[0])
}

// MarshalJSON writes the pair form.
func (r RuleSpec) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%s,%d]", strconv.FormatFloat(r.Interval, 'f', -1, 64), r.Rate)), nil
}

// decodeRate accepts integral numbers only; yaml.v3 would truncate 1.5 into an int64.
func decodeRate(node *yaml.Node) (int64, error) {
	var f float64
	if err := node.Decode(&f); err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: line %d: rate %q is not an integer", ErrMisconfiguredRule, node.Line, node.Value)
	}
	return int64(f), nil
}

// Validate reports rules with a non-positive or non-finite interval, or a non-positive rate.
func (r RuleSpec) Validate() error {
	if math.IsNaN(r.Interval) || math.IsInf(r.Interval, 0) || r.Interval <= 0 {
		return fmt.Errorf("%w: interval %v must be a positive finite number", ErrMisconfiguredRule, r.Interval)
	}
	if r.Rate <= 0 {
		return fmt.Errorf("%w: rate %d must be positive", ErrMisconfiguredRule, r.Rate)
	}
	return nil
}

// MinDelay is the minimum gap between two admitted requests.
func (r RuleSpec) MinDelay() time.Duration {
	if r.Rate <= 0 {
		return 0
	}
	return time.Duration(r.Interval * float64(time.Second) / float64(r.Rate))
}

// Validate checks every rule of the table.
func (l Limits) Validate() error {
	for scope, actions := range l {
		for action, rule := range actions {
			if strings.TrimSpace(action) == "" {
				return fmt.Errorf("%w: empty action in scope %q", ErrMisconfiguredRule, scope)
			}
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("limits.%s.%s: %w", scope, action, err)
			}
		}
	}
	return nil
}

// Validate checks the whole configuration; rules fail fast here rather than at check time.
func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.LinkSets))
	for i, ls := range c.LinkSets {
		name := strings.TrimSpace(ls.Name)
		if name == "" {
			return fmt.Errorf("linkSets[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("linkSets[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
	}
	switch strings.ToLower(strings.TrimSpace(c.Gate.Cache)) {
	case "", "redis", "memory":
	default:
		return fmt.Errorf("gate.cache: unsupported value %q", c.Gate.Cache)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 5
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "pixiu:bhv"
	}
	if c.Gate.Cache == "" {
		c.Gate.Cache = "redis"
	}
	if c.Identity.UserHeader == "" {
		c.Identity.UserHeader = "X-User-Id"
	}
	if c.Identity.SessionCookie == "" {
		c.Identity.SessionCookie = "session_id"
	}
	if c.Identity.SessionHeader == "" {
		c.Identity.SessionHeader = "X-Session-Id"
	}
	if c.Rules.PollIntervalMs <= 0 {
		c.Rules.PollIntervalMs = 5000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Load —— 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes and validates raw YAML after environment expansion.
func Parse(b []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
