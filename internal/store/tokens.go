package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/domain"
)

// CreateTokenRequest carries Tokens.create's already-authenticated inputs.
type CreateTokenRequest struct {
	Login       string
	Scope       domain.TokenScope
	Duration    time.Duration
	Refreshable bool
}

// CreateTokenResult returns the wire-encoded secret plus its expiry, the
// two fields the Core Bank API response needs.
type CreateTokenResult struct {
	Secret    string
	ExpiresAt time.Time
}

// CreateToken implements Tokens.create: it mints random
// bytes, stores only the bytes (never the wire encoding) and returns the
// Crockford-encoded secret to hand back to the caller exactly once.
func (s *Store) CreateToken(ctx context.Context, req CreateTokenRequest) (CreateTokenResult, error) {
	raw, err := auth.NewTokenBytes()
	if err != nil {
		return CreateTokenResult{}, err
	}
	expiresAt := now().Add(req.Duration)

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tokens(token_bytes, login, scope, refreshable, created_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			raw, req.Login, string(req.Scope), req.Refreshable, now(), expiresAt)
		return err
	})
	if err != nil {
		return CreateTokenResult{}, err
	}
	return CreateTokenResult{Secret: auth.EncodeToken(raw), ExpiresAt: expiresAt}, nil
}

// TokenByBytes implements auth.Lookups for the bearer-token path: decode
// happens in the auth package, Store only ever sees raw bytes.
func (s *Store) TokenByBytes(ctx context.Context, raw []byte) (*auth.TokenRecord, error) {
	var rec auth.TokenRecord
	var scope string
	err := s.db.QueryRow(ctx, `
		SELECT login, scope, refreshable, created_at, expires_at FROM tokens WHERE token_bytes=$1`, raw,
	).Scan(&rec.Login, &scope, &rec.Refreshable, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Scope = domain.TokenScope(scope)
	return &rec, nil
}

// DeleteToken implements Tokens.delete: a token may only delete itself,
// which the HTTP layer enforces by passing the same bytes it authenticated
// with.
func (s *Store) DeleteToken(ctx context.Context, raw []byte) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tokens WHERE token_bytes=$1`, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredTokens removes lapsed tokens and returns how many were
// deleted. No command in this module calls it; authentication rejects an
// expired token whether or not it has been purged.
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tokens WHERE expires_at <= $1`, now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
