package identity

import (
	"errors"
	"net/http"
	"testing"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

func TestResolveUserHeaderWins(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s-1"})

	key, err := NewResolver().Resolve(req)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if key.Kind != KindUser || key.ID != "user-1" || key.Key != "user:user-1" {
		t.Fatalf("unexpected key: %#v", key)
	}
}

func TestResolveSessionCookie(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "abc"})
	req.Header.Set("X-Session-Id", "from-header")

	key, err := NewResolver().Resolve(req)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if key.Kind != KindSession || key.ID != "abc" {
		t.Fatalf("unexpected key: %#v", key)
	}
}

func TestResolveSessionHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Session-Id", "hdr")

	key, err := NewResolver().Resolve(req)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if key.Key != "session:hdr" {
		t.Fatalf("unexpected key: %#v", key)
	}
}

func TestResolveFromConfig(t *testing.T) {
	r := NewResolverFromConfig(config.IdentityCfg{UserHeader: "X-Account"})
	if r.SessionCookie != "session_id" {
		t.Fatalf("default cookie lost: %q", r.SessionCookie)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Account", "42")
	req.Header.Set("X-User-Id", "ignored")
	key, err := r.Resolve(req)
	if err != nil || key.ID != "42" {
		t.Fatalf("unexpected key: %#v, %v", key, err)
	}
}

func TestResolveEmpty(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-User-Id", "   ")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: ""})

	if _, err := NewResolver().Resolve(req); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
