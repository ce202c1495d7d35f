package auth_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeLookups struct {
	hashes map[string]string
	admins map[string]bool
	tokens map[string]*auth.TokenRecord
}

func (f *fakeLookups) PasswordHashFor(_ context.Context, login string) (string, bool, error) {
	h, ok := f.hashes[login]
	if !ok {
		return "", false, auth.ErrUnknownAccount
	}
	return h, f.admins[login], nil
}

func (f *fakeLookups) TokenByBytes(_ context.Context, raw []byte) (*auth.TokenRecord, error) {
	rec, ok := f.tokens[string(raw)]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func newFixture(t *testing.T) (*auth.Gate, *fakeLookups) {
	t.Helper()
	params := auth.PasswordParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, err := auth.HashPassword("secret", params)
	require.NoError(t, err)

	lk := &fakeLookups{
		hashes: map[string]string{"alice": hash},
		admins: map[string]bool{},
		tokens: map[string]*auth.TokenRecord{},
	}
	return auth.NewGate(lk), lk
}

func basicReq(login, password string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/accounts/alice", nil)
	r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(login+":"+password)))
	return r
}

func TestAuthenticateBasicSuccess(t *testing.T) {
	gate, _ := newFixture(t)
	id, err := gate.Authenticate(context.Background(), basicReq("alice", "secret"), auth.Policy{PathLogin: "alice"})
	require.NoError(t, err)
	require.Equal(t, "alice", id.Login)
}

func TestAuthenticateBasicWrongPassword(t *testing.T) {
	gate, _ := newFixture(t)
	_, err := gate.Authenticate(context.Background(), basicReq("alice", "wrong"), auth.Policy{PathLogin: "alice"})
	require.ErrorIs(t, err, auth.ErrBadPassword)
}

func TestAuthenticateCrossUserForbidden(t *testing.T) {
	gate, _ := newFixture(t)
	_, err := gate.Authenticate(context.Background(), basicReq("alice", "secret"), auth.Policy{PathLogin: "bob"})
	require.ErrorIs(t, err, auth.ErrCrossUserForbidden)
}

func TestAuthenticateBearerExpired(t *testing.T) {
	gate, lk := newFixture(t)
	raw, _ := auth.NewTokenBytes()
	lk.tokens[string(raw)] = &auth.TokenRecord{
		Login: "alice", Scope: domain.ScopeReadWrite,
		CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
	}
	r := httptest.NewRequest(http.MethodGet, "/accounts/alice", nil)
	r.Header.Set("Authorization", "Bearer "+auth.EncodeToken(raw))
	_, err := gate.Authenticate(context.Background(), r, auth.Policy{PathLogin: "alice", RequiredScope: domain.ScopeReadOnly})
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestAuthenticateBearerScopeInsufficient(t *testing.T) {
	gate, lk := newFixture(t)
	raw, _ := auth.NewTokenBytes()
	lk.tokens[string(raw)] = &auth.TokenRecord{
		Login: "alice", Scope: domain.ScopeReadOnly,
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	r := httptest.NewRequest(http.MethodGet, "/accounts/alice", nil)
	r.Header.Set("Authorization", "Bearer "+auth.EncodeToken(raw))
	_, err := gate.Authenticate(context.Background(), r, auth.Policy{PathLogin: "alice", RequiredScope: domain.ScopeReadWrite})
	require.ErrorIs(t, err, auth.ErrScopeInsufficient)
}

func TestAuthenticateAdminAllowedCrossUser(t *testing.T) {
	gate, lk := newFixture(t)
	lk.admins["admin"] = true
	params := auth.PasswordParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, _ := auth.HashPassword("adminpw", params)
	lk.hashes["admin"] = hash

	id, err := gate.Authenticate(context.Background(), basicReq("admin", "adminpw"), auth.Policy{PathLogin: "alice", AllowAdmin: true})
	require.NoError(t, err)
	require.True(t, id.IsAdmin)
}
