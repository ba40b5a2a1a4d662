package repo

import (
	"context"
	"strings"
	"testing"
	"time"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/util"
)

func TestNormalizeAddrs(t *testing.T) {
	cfg := config.RedisCfg{Addr: "127.0.0.1:6379, 127.0.0.2:6379"}
	addrs := normalizeAddrs(cfg)
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addrs, got %d", len(addrs))
	}
	if addrs[0] != "127.0.0.1:6379" || addrs[1] != "127.0.0.2:6379" {
		t.Fatalf("unexpected addrs: %#v", addrs)
	}
	if got := normalizeAddrs(config.RedisCfg{Addrs: []string{"a:1"}, Addr: "b:2"}); len(got) != 1 || got[0] != "a:1" {
		t.Fatalf("explicit addrs should win: %#v", got)
	}
	if got := normalizeAddrs(config.RedisCfg{}); got != nil {
		t.Fatalf("expected nil addrs, got %#v", got)
	}
}

func TestBuildUniversalOptionsDefaults(t *testing.T) {
	opts := buildUniversalOptions(config.RedisCfg{Addr: "127.0.0.1:6379", DB: 3})
	if opts.DB != 3 || len(opts.Addrs) != 1 {
		t.Fatalf("unexpected options: %#v", opts)
	}
	if opts.DialTimeout != 800*time.Millisecond || opts.PoolSize != 20 || opts.MaxRetries != 2 {
		t.Fatalf("defaults not applied: %#v", opts)
	}
}

func TestKeyAdmission(t *testing.T) {
	r := &RedisRepo{Prefix: "pixiu"}
	got := r.KeyAdmission("user:42", "articles", "view")
	want := "pixiu:admit:{" + util.FNV64("user:42") + "}:articles:view"
	if got != want {
		t.Fatalf("KeyAdmission = %s, want %s", got, want)
	}
	if r.KeyAdmission("user:42", "articles", "view") == r.KeyAdmission("user:42", "comments", "view") {
		t.Fatal("scopes must not share a key")
	}
}

func TestFormatStampRoundTripsExactly(t *testing.T) {
	stamps := []float64{
		0,
		1,
		0.5,
		1700000000.123456,
		float64(time.Unix(1700000000, 600).UnixNano()) / 1e9,
		1700000000.999999999,
	}
	for _, ts := range stamps {
		got, ok := util.ToFloat64(formatStamp(ts))
		if !ok || got != ts {
			t.Fatalf("round trip of %v = %v (%s)", ts, got, formatStamp(ts))
		}
	}
	if s := formatStamp(1700000000.25); strings.ContainsAny(s, "eE") {
		t.Fatalf("stamp in exponent form: %s", s)
	}
}

// A stamp read back from the cache must not move past the admission time,
// otherwise a check exactly minDelay later is rejected.
func TestStoredStampAdmitsAtExactDelay(t *testing.T) {
	now := time.Unix(1700000000, 600)
	ts := float64(now.Unix()) + float64(now.Nanosecond())/1e9
	prev, _ := util.ToFloat64(formatStamp(ts))

	later := now.Add(time.Second)
	laterSec := float64(later.Unix()) + float64(later.Nanosecond())/1e9
	if laterSec-prev < 1 {
		t.Fatalf("elapsed %v after a stored stamp, want >= 1", laterSec-prev)
	}
}

func TestMemoryRepoAdmitIfElapsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("t")
	key := m.KeyAdmission("user:1", "articles", "update")

	ok, _, _ := m.AdmitIfElapsed(ctx, key, 10.0, 1.0)
	if !ok {
		t.Fatal("first attempt should be admitted")
	}
	ok, prev, _ := m.AdmitIfElapsed(ctx, key, 10.5, 1.0)
	if ok || prev != 10.0 {
		t.Fatalf("second attempt = %v prev %v, want rejected with prev 10", ok, prev)
	}
	ok, _, _ = m.AdmitIfElapsed(ctx, key, 11.0, 1.0)
	if !ok {
		t.Fatal("attempt after delay should be admitted")
	}
	if ts, found, _ := m.GetStamp(ctx, key); !found || ts != 11.0 {
		t.Fatalf("stamp = %v, %v", ts, found)
	}
	if m.Writes() != 2 {
		t.Fatalf("writes = %d, want 2", m.Writes())
	}
}
