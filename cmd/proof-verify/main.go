// Command proof-verify walks the bank's event_log hash chain end to end,
// reading it directly out of Postgres, and reports the first broken link,
// if any.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libeufin-go/corebank/internal/store"
)

func main() {
	var (
		dsn  = flag.String("dsn", os.Getenv("BANK_DB_DSN"), "Postgres DSN (defaults to $BANK_DB_DSN)")
		head = flag.String("head", "", "expected head row_hash hex; empty skips the final check")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "missing -dsn (or BANK_DB_DSN)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(2)
	}
	defer pool.Close()

	n, lastHash, err := store.VerifyEventChain(ctx, pool)
	if err != nil {
		fmt.Fprintln(os.Stderr, "FAIL:", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "FAIL: empty event log")
		os.Exit(1)
	}
	if *head != "" && *head != lastHash {
		fmt.Fprintf(os.Stderr, "FAIL: head hash mismatch\nexpected=%s\ngot=%s\n", *head, lastHash)
		os.Exit(1)
	}

	fmt.Printf("OK: chain verified (%d rows). head=%s\n", n, lastHash)
}
