// Package store implements the Ledger, Accounts, Tokens, Withdrawals,
// Cashouts, TAN/Challenge and Wire Gateway operations as methods on a
// single *Store backed by a pgx connection pool. Every mutating method
// executes its logical operation inside one serializable Postgres
// transaction: pgxpool.BeginTx, defer Rollback, explicit Commit.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/libeufin-go/corebank/internal/store/notify"
	"github.com/libeufin-go/corebank/internal/tan"
)

var (
	ErrValidation          = errors.New("store: validation error")
	ErrNotFound            = errors.New("store: not found")
	ErrConflict            = errors.New("store: conflict")
	ErrIdempotencyConflict = errors.New("store: idempotency key used with different payload")
	ErrSoft                = errors.New("store: transient storage error, retry exhausted")
)

// Store wraps the connection pool and the in-process long-poll notifier.
type Store struct {
	db     *pgxpool.Pool
	log    *logrus.Logger
	notify *notify.Hub
	policy Policy
	sender tan.Sender

	// Currency is the bank's single regional currency; every ledger
	// transaction must be denominated in it.
	Currency string
}

// SetTanSender wires the out-of-band TAN delivery channel; defaults to a
// NoopSender when never called, so tests need not configure one.
func (s *Store) SetTanSender(sender tan.Sender) { s.sender = sender }

func New(db *pgxpool.Pool, currency string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{db: db, Currency: currency, log: log, notify: notify.NewHub(), sender: &tan.NoopSender{}}
}

// Notify exposes the long-poll hub to HTTP handlers that need to await new
// rows (pollInfo, history long-polling;).
func (s *Store) Notify() *notify.Hub { return s.notify }

// withTx runs fn inside a single serializable read-write transaction,
// retrying a bounded number of times on a Postgres serialization failure
// (SQLSTATE 40001) or deadlock (40P01).
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
			IsoLevel:   pgx.Serializable,
			AccessMode: pgx.ReadWrite,
		})
		if err != nil {
			return err
		}

		err = fn(tx)
		if err != nil {
			tx.Rollback(ctx)
			if isRetryable(err) {
				lastErr = err
				s.log.WithField("attempt", attempt+1).Warn("store: retrying serialization failure")
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	s.log.WithError(lastErr).Error("store: transaction retries exhausted")
	return fmt.Errorf("%w: %v", ErrSoft, lastErr)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}

// asPgError unwraps a *pgconn.PgError, distinguishing constraint
// violations (e.g. unique-key reuse) from other failure classes.
func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// readOnly runs fn against the pool directly (history reads, balance
// reads); Postgres's default read-committed snapshot is sufficient for
// these since they never mutate state.
func (s *Store) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// randomDigits returns an n-digit numeric TAN code, zero-padded.
func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

// now is overridable in tests that need deterministic timestamps. No Store
// method takes an explicit timestamp; Go-side clock reads in this package
// go through this variable.
var now = time.Now
