package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/libeufin-go/corebank/internal/domain"
)

var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrBadScheme          = errors.New("auth: unsupported authorization scheme")
	ErrUnknownAccount     = errors.New("auth: unknown account")
	ErrBadPassword        = errors.New("auth: password mismatch")
	ErrUnknownToken       = errors.New("auth: unknown token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrScopeInsufficient  = errors.New("auth: scope insufficient")
	ErrCrossUserForbidden = errors.New("auth: cross-user access forbidden")
)

// Identity is what a successful authentication binds to the request.
type Identity struct {
	Login   string
	IsAdmin bool
	Scope   domain.TokenScope
}

// TokenRecord is the subset of a stored token this gate needs to decide
// authentication and scope checks.
type TokenRecord struct {
	Login       string
	Scope       domain.TokenScope
	Refreshable bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Lookups is the storage-facing dependency the gate needs. Implemented by
// *store.Store; kept as an interface here so auth has no import on store
// (store imports auth for the token codec and password hashing).
type Lookups interface {
	PasswordHashFor(ctx context.Context, login string) (hash string, isAdmin bool, err error)
	TokenByBytes(ctx context.Context, raw []byte) (*TokenRecord, error)
}

// Policy controls the scope/ownership rules layered on top of raw
// authentication.
type Policy struct {
	RequiredScope domain.TokenScope
	// PathLogin is the USERNAME path segment, if the route has one; empty
	// means the route is not account-scoped (e.g. admin listing, config).
	PathLogin string
	AllowAdmin   bool // admin may act on behalf of PathLogin
	RequireAdmin bool // only admin may call this route at all
}

// Gate authenticates an incoming request and enforces Policy.
type Gate struct {
	lookups Lookups
}

func NewGate(lookups Lookups) *Gate { return &Gate{lookups: lookups} }

// Authenticate parses the Authorization header, verifies credentials
// against storage, and checks Policy. It never logs the raw credential.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request, policy Policy) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, ErrMissingCredentials
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok {
		return Identity{}, ErrBadScheme
	}

	var id Identity
	var err error
	switch strings.ToLower(scheme) {
	case "basic":
		id, err = g.authBasic(ctx, rest)
	case "bearer":
		id, err = g.authBearer(ctx, rest, policy.RequiredScope)
	default:
		return Identity{}, ErrBadScheme
	}
	if err != nil {
		return Identity{}, err
	}

	if policy.RequireAdmin && !id.IsAdmin {
		return Identity{}, ErrCrossUserForbidden
	}
	if policy.PathLogin != "" && policy.PathLogin != id.Login {
		if !(id.IsAdmin && policy.AllowAdmin) {
			return Identity{}, ErrCrossUserForbidden
		}
	}
	return id, nil
}

func (g *Gate) authBasic(ctx context.Context, encoded string) (Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Identity{}, ErrBadScheme
	}
	login, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Identity{}, ErrBadScheme
	}
	hash, isAdmin, err := g.lookups.PasswordHashFor(ctx, login)
	if err != nil {
		return Identity{}, ErrUnknownAccount
	}
	match, err := VerifyPassword(password, hash)
	if err != nil || !match {
		return Identity{}, ErrBadPassword
	}
	return Identity{Login: login, IsAdmin: isAdmin, Scope: domain.ScopeReadWrite}, nil
}

func (g *Gate) authBearer(ctx context.Context, wire string, required domain.TokenScope) (Identity, error) {
	raw, err := DecodeToken(strings.TrimSpace(wire))
	if err != nil {
		return Identity{}, ErrUnknownToken
	}
	rec, err := g.lookups.TokenByBytes(ctx, raw)
	if err != nil || rec == nil {
		return Identity{}, ErrUnknownToken
	}
	if time.Now().After(rec.ExpiresAt) {
		return Identity{}, ErrTokenExpired
	}
	if required == domain.ScopeReadWrite && rec.Scope == domain.ScopeReadOnly {
		return Identity{}, ErrScopeInsufficient
	}
	if required == domain.ScopeRefreshable && !rec.Refreshable {
		return Identity{}, ErrScopeInsufficient
	}
	return Identity{Login: rec.Login, IsAdmin: rec.Login == domain.LoginAdmin, Scope: rec.Scope}, nil
}
