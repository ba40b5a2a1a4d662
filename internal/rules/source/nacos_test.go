package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

func TestFetchJSONWrapper(t *testing.T) {
	payload := `{"limits":{"articles":{"view":10,"create":[60,1]}}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dataId") != "limits" || r.URL.Query().Get("group") != defaultNacosGroup {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-MD5", "v1")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	src := NewNacosSource(config.NacosCfg{Addr: server.URL, DataID: "limits", Format: "json"}, nil)
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got.Version != "v1" {
		t.Fatalf("version = %q", got.Version)
	}
	if r := got.Limits["articles"]["create"]; r.Interval != 60 || r.Rate != 1 {
		t.Fatalf("unexpected limits: %#v", got.Limits)
	}
}

func TestFetchYAMLAutoDetect(t *testing.T) {
	payload := "articles:\n  view: 5\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	src := NewNacosSource(config.NacosCfg{Addr: server.URL, DataID: "limits"}, nil)
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if r := got.Limits["articles"]["view"]; r.Interval != 1 || r.Rate != 5 {
		t.Fatalf("unexpected limits: %#v", got.Limits)
	}
	if got.Version == "" {
		t.Fatal("expected version to be set")
	}
}

func TestFetchRejectsMisconfiguredRule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"articles":{"view":0}}`))
	}))
	defer server.Close()

	src := NewNacosSource(config.NacosCfg{Addr: server.URL, DataID: "limits"}, nil)
	if _, err := src.Fetch(context.Background()); !errors.Is(err, config.ErrMisconfiguredRule) {
		t.Fatalf("expected ErrMisconfiguredRule, got %v", err)
	}
}

func TestParseLimitsRejectsNonFiniteInterval(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		format string
	}{
		{"yaml nan", "articles:\n  view: [.nan, 1]\n", "yaml"},
		{"yaml inf", "articles:\n  view: [.inf, 1]\n", "yaml"},
		{"yaml wrapped nan", "limits:\n  articles:\n    view: [.NaN, 3]\n", "yaml"},
		{"auto inf", "articles:\n  edit: [.inf, 2]\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseLimits([]byte(tt.raw), tt.format); !errors.Is(err, config.ErrMisconfiguredRule) {
				t.Fatalf("expected ErrMisconfiguredRule, got %v", err)
			}
		})
	}
}

func TestFetchDisabled(t *testing.T) {
	if _, err := NewNacosSource(config.NacosCfg{}, nil).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for disabled nacos")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behaviors.yaml")
	if err := os.WriteFile(path, []byte("server:\n  httpAddr: \":9\"\nlimits:\n  tags:\n    update: [10, 1]\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewFileSource(path)
	first, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r := first.Limits["tags"]["update"]; r.Interval != 10 {
		t.Fatalf("limits = %#v", first.Limits)
	}
	again, _ := src.Fetch(context.Background())
	if again.Version != first.Version {
		t.Fatal("unchanged file should keep its version")
	}
}
