package rules

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/rules/source"
)

// Target receives a new admission rule table. admission.Gate implements it.
type Target interface {
	ReplaceRules(limits config.Limits) error
}

// PollerConfig controls the pull loop behavior.
type PollerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Poller periodically pulls limits from a source and installs changed versions.
// A failed fetch or an invalid table keeps the last good rules.
type Poller struct {
	source   source.LimitsSource
	target   Target
	interval time.Duration
	lastVer  string
	log      *slog.Logger
	mu       sync.Mutex
}

func NewPoller(src source.LimitsSource, target Target, cfg PollerConfig) *Poller {
	if src == nil || target == nil {
		panic("rules: nil source or target")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   src,
		target:   target,
		interval: interval,
		log:      logger,
	}
}

// SyncOnce pulls limits once and applies them. It reports whether a new version was installed.
func (p *Poller) SyncOnce(ctx context.Context) (bool, error) {
	return p.pull(ctx)
}

// Start runs the polling loop until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.pull(ctx); err != nil {
				p.log.Warn("limits pull failed, keeping last good rules", "error", err)
			}
		}
	}
}

func (p *Poller) pull(ctx context.Context) (bool, error) {
	payload, err := p.source.Fetch(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if payload.Version != "" && payload.Version == p.lastVer {
		return false, nil
	}
	if err := p.target.ReplaceRules(payload.Limits); err != nil {
		return false, err
	}
	p.lastVer = payload.Version
	p.log.Info("installed admission limits", "version", payload.Version, "scopes", len(payload.Limits))
	return true, nil
}

// Version is the last installed payload version.
func (p *Poller) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVer
}
