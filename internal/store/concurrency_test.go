package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
)

var suffixCounter int64

// nextSuffix returns a unique token per call, safe to use concurrently from
// many goroutines without touching the shared *testing.T.
func nextSuffix() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&suffixCounter, 1))
}

func mustEnv(t *testing.T, key string) string {
	t.Helper()
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		t.Skipf("missing %s env var", key)
	}
	return v
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := mustEnv(t, "BANK_DB_DSN")

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func newAccount(t *testing.T, s *Store, login string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateAccount(ctx, CreateAccountRequest{
		Login: login, Password: "swordfish", LegalName: login,
	}, true)
	if err != nil {
		t.Fatalf("create account %s: %v", login, err)
	}
}

// TestConcurrentSameRequestUID_ReplaysSameTransfer exercises Ledger.create's
// idempotency contract: N goroutines submitting the exact
// same request_uid against the same transfer must all observe success with
// exactly one debit row actually posted for that request_uid.
func TestConcurrentSameRequestUID_ReplaysSameTransfer(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool, "KUDOS", logrus.New())

	alice := "alice-" + nextSuffix()
	bob := "bob-" + nextSuffix()
	newAccount(t, s, alice)
	newAccount(t, s, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Fund Alice first so the transfer itself cannot fail for lack of funds.
	mint, _ := money.Parse("KUDOS:100")
	if _, err := s.CreateTransaction(ctx, CreateTransactionRequest{
		DebitAccount: domain.LoginBank, CreditAccount: alice, Amount: mint, Subject: "seed", RequestUID: "seed-" + alice,
	}); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	amount, _ := money.Parse("KUDOS:1")
	requestUID := "same-uid-" + nextSuffix()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = s.CreateTransaction(ctx, CreateTransactionRequest{
				DebitAccount: alice, CreditAccount: bob, Amount: amount, Subject: "pay", RequestUID: requestUID,
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	var cnt int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions WHERE request_uid=$1 AND direction='debit'`, requestUID).Scan(&cnt); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected exactly 1 debit row for request_uid, got %d", cnt)
	}
}

// TestConcurrentDistinctTransfers_BalancesStayConsistent runs many distinct
// transfers concurrently and checks the resulting balances add up, the
// fixed-order row locking in transferLocked exists precisely to make this
// safe under Postgres's serializable isolation.
func TestConcurrentDistinctTransfers_BalancesStayConsistent(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool, "KUDOS", logrus.New())

	alice := "alice2-" + nextSuffix()
	bob := "bob2-" + nextSuffix()
	newAccount(t, s, alice)
	newAccount(t, s, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mint, _ := money.Parse("KUDOS:500")
	if _, err := s.CreateTransaction(ctx, CreateTransactionRequest{
		DebitAccount: domain.LoginBank, CreditAccount: alice, Amount: mint, Subject: "seed", RequestUID: "seed2-" + alice,
	}); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	const n = 100
	amount, _ := money.Parse("KUDOS:2")
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = s.CreateTransaction(ctx, CreateTransactionRequest{
				DebitAccount: alice, CreditAccount: bob, Amount: amount, Subject: "pay", RequestUID: "req-" + nextSuffix(),
			})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	accAlice, err := s.GetAccount(ctx, alice)
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	accBob, err := s.GetAccount(ctx, bob)
	if err != nil {
		t.Fatalf("get bob: %v", err)
	}

	wantBob, _ := money.Parse("KUDOS:200")
	if accBob.Balance.HasDebt || !accBob.Balance.Amount.Equal(wantBob) {
		t.Fatalf("bob balance mismatch: got %+v want %s", accBob.Balance, wantBob)
	}
	wantAlice, _ := money.Parse("KUDOS:300")
	if accAlice.Balance.HasDebt || !accAlice.Balance.Amount.Equal(wantAlice) {
		t.Fatalf("alice balance mismatch: got %+v want %s", accAlice.Balance, wantAlice)
	}

	n2, _, err := VerifyEventChain(ctx, pool)
	if err != nil {
		t.Fatalf("verify event chain: %v", err)
	}
	if n2 == 0 {
		t.Fatalf("expected a non-empty event chain")
	}
}

