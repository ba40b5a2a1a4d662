package identity

import (
	"errors"
	"net/http"
	"strings"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

const (
	KindUser    = "user"
	KindSession = "session"
)

// ErrNoIdentity means neither an authenticated user nor a session was presented.
var ErrNoIdentity = errors.New("identity: no user or session")

// ClientKey represents a normalized caller identifier.
type ClientKey struct {
	Kind string
	ID   string
	Key  string
}

// Resolver reads the caller identity: authenticated user first, then the session.
type Resolver struct {
	UserHeader    string
	SessionCookie string
	SessionHeader string
}

func NewResolver() *Resolver {
	return &Resolver{
		UserHeader:    "X-User-Id",
		SessionCookie: "session_id",
		SessionHeader: "X-Session-Id",
	}
}

// NewResolverFromConfig keeps the defaults for fields left empty.
func NewResolverFromConfig(cfg config.IdentityCfg) *Resolver {
	r := NewResolver()
	if cfg.UserHeader != "" {
		r.UserHeader = cfg.UserHeader
	}
	if cfg.SessionCookie != "" {
		r.SessionCookie = cfg.SessionCookie
	}
	if cfg.SessionHeader != "" {
		r.SessionHeader = cfg.SessionHeader
	}
	return r
}

// Resolve resolves identity in order: user header -> session cookie -> session header.
func (r *Resolver) Resolve(req *http.Request) (ClientKey, error) {
	if req == nil {
		return ClientKey{}, errors.New("nil request")
	}

	if user := strings.TrimSpace(req.Header.Get(r.UserHeader)); user != "" {
		return newKey(KindUser, user), nil
	}

	if r.SessionCookie != "" {
		if c, err := req.Cookie(r.SessionCookie); err == nil {
			if sid := strings.TrimSpace(c.Value); sid != "" {
				return newKey(KindSession, sid), nil
			}
		}
	}

	if sid := strings.TrimSpace(req.Header.Get(r.SessionHeader)); sid != "" {
		return newKey(KindSession, sid), nil
	}

	return ClientKey{}, ErrNoIdentity
}

func newKey(kind, id string) ClientKey {
	return ClientKey{
		Kind: kind,
		ID:   id,
		Key:  kind + ":" + id,
	}
}
