package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
)

var (
	ErrBalanceInsufficient        = errors.New("store: debit would exceed debit threshold")
	ErrAdminCreditorDisallowed    = errors.New("store: admin account cannot be credited by a customer-initiated transfer")
)

// CreateTransactionRequest describes a ledger transfer between two local
// accounts; RequestUID is scoped to the debit account.
type CreateTransactionRequest struct {
	DebitAccount  string
	CreditAccount string
	Amount        money.Amount
	Subject       string
	RequestUID    string
}

// CreateTransaction implements Ledger.create_transaction: it debits
// DebitAccount, credits CreditAccount, and appends both rows in the same
// bank_transactions group, enforcing the debtor's debit_threshold.
func (s *Store) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (int64, error) {
	if req.Amount.IsZero() || req.Amount.Currency != s.Currency {
		return 0, ErrValidation
	}
	if req.DebitAccount == req.CreditAccount {
		return 0, fmt.Errorf("%w: debit and credit account must differ", ErrValidation)
	}
	if req.CreditAccount == domain.LoginAdmin {
		return 0, ErrAdminCreditorDisallowed
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return s.transferLocked(ctx, tx, req.DebitAccount, req.CreditAccount, req.Amount, req.Subject, req.RequestUID, false)
	})
	if err != nil {
		return 0, err
	}
	s.notify.Publish(req.DebitAccount)
	s.notify.Publish(req.CreditAccount)

	var rowID int64
	err = s.db.QueryRow(ctx, `SELECT row_id FROM bank_transactions WHERE account_login=$1 AND direction='debit' ORDER BY row_id DESC LIMIT 1`, req.DebitAccount).Scan(&rowID)
	return rowID, err
}

// transferLocked locks both accounts in a fixed (login-sorted) order to
// avoid deadlocks between concurrent opposite-direction transfers,
// applies the debit threshold check, and inserts the paired ledger rows.
// When skipDebitCheck is true the threshold is not enforced.
func (s *Store) transferLocked(ctx context.Context, tx pgx.Tx, debitLogin, creditLogin string, amount money.Amount, subject, requestUID string, skipDebitCheck bool) error {
	first, second := debitLogin, creditLogin
	if second < first {
		first, second = second, first
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE login=$1 FOR UPDATE`, first); err != nil {
		return translateMissingAccount(err)
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE login=$1 FOR UPDATE`, second); err != nil {
		return translateMissingAccount(err)
	}

	debitor, err := s.lockedAccount(ctx, tx, debitLogin)
	if err != nil {
		return err
	}
	creditor, err := s.lockedAccount(ctx, tx, creditLogin)
	if err != nil {
		return err
	}

	var reqHash string
	if requestUID != "" {
		var existingHash string
		reqHash, err = canonicalHash(map[string]any{
			"debit": debitLogin, "credit": creditLogin, "amount": amount.String(), "subject": subject,
		})
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `SELECT request_hash FROM bank_transactions WHERE request_uid=$1 AND account_login=$2 LIMIT 1`, requestUID, debitLogin).Scan(&existingHash)
		if err == nil {
			if existingHash != reqHash {
				return ErrIdempotencyConflict
			}
			return nil // already applied, idempotent replay
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}

	newDebitBal, err := debitor.Balance.Apply(amount, true)
	if err != nil {
		return err
	}
	if !skipDebitCheck && !newDebitBal.WithinDebitLimit(debitor.DebitThreshold) {
		return ErrBalanceInsufficient
	}
	newCreditBal, err := creditor.Balance.Apply(amount, false)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance_value=$1, balance_frac=$2, balance_has_debt=$3 WHERE login=$4`,
		newDebitBal.Amount.Value, newDebitBal.Amount.Frac, newDebitBal.HasDebt, debitLogin); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance_value=$1, balance_frac=$2, balance_has_debt=$3 WHERE login=$4`,
		newCreditBal.Amount.Value, newCreditBal.Amount.Frac, newCreditBal.HasDebt, creditLogin); err != nil {
		return err
	}

	groupID := uuid.New()

	if err := s.insertLeg(ctx, tx, groupID, debitLogin, creditLogin, "debit", amount, subject, requestUID, reqHash); err != nil {
		return err
	}
	return s.insertLeg(ctx, tx, groupID, creditLogin, debitLogin, "credit", amount, subject, requestUID, reqHash)
}

func (s *Store) insertLeg(ctx context.Context, tx pgx.Tx, groupID uuid.UUID, login, counterparty, direction string, amount money.Amount, subject, requestUID, requestHash string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bank_transactions(tx_group, account_login, counterparty_login, direction, amount_value, amount_frac, subject, request_uid, request_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''))`,
		groupID, login, counterparty, direction, amount.Value, amount.Frac, subject, requestUID, requestHash)
	return err
}

func (s *Store) lockedAccount(ctx context.Context, tx pgx.Tx, login string) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT login, debit_threshold_value, debit_threshold_frac, balance_value, balance_frac, balance_has_debt
		FROM accounts WHERE login=$1 FOR UPDATE`, login,
	).Scan(&a.Login, &a.DebitThreshold.Value, &a.DebitThreshold.Frac, &a.Balance.Amount.Value, &a.Balance.Amount.Frac, &a.Balance.HasDebt)
	if err != nil {
		return Account{}, translateMissingAccount(err)
	}
	a.DebitThreshold.Currency = s.Currency
	a.Balance.Amount.Currency = s.Currency
	return a, nil
}

func translateMissingAccount(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetTransaction implements Ledger.get_transaction: one account's view of
// one ledger row.
func (s *Store) GetTransaction(ctx context.Context, login string, rowID int64) (TxRow, error) {
	var t TxRow
	err := s.db.QueryRow(ctx, `
		SELECT row_id, tx_group, account_login, counterparty_login, direction, amount_value, amount_frac, subject, COALESCE(request_uid,''), happened_at
		FROM bank_transactions WHERE account_login=$1 AND row_id=$2`, login, rowID,
	).Scan(&t.RowID, &t.TxGroup, &t.AccountLogin, &t.Counterparty, &t.Direction, &t.Amount.Value, &t.Amount.Frac, &t.Subject, &t.RequestUID, &t.HappenedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TxRow{}, ErrNotFound
		}
		return TxRow{}, err
	}
	t.Amount.Currency = s.Currency
	return t, nil
}

// HistoryParams controls Ledger.history pagination and long-poll waiting.
type HistoryParams struct {
	Login        string
	Start        int64
	Delta        int // positive = ascending from Start exclusive, negative = descending
	LongPollMs   int
}

// History implements Ledger.history, including the
// register-before-check long-poll pattern so a row inserted between the
// initial query and the wait is never missed.
func (s *Store) History(ctx context.Context, p HistoryParams) ([]TxRow, error) {
	rows, err := s.queryHistory(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 || p.LongPollMs <= 0 || p.Delta < 0 {
		return rows, nil
	}

	wake, release := s.notify.Register(p.Login)
	defer release()

	rows, err = s.queryHistory(ctx, p)
	if err != nil || len(rows) > 0 {
		return rows, err
	}

	timer := time.NewTimer(time.Duration(p.LongPollMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-wake:
		return s.queryHistory(ctx, p)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) queryHistory(ctx context.Context, p HistoryParams) ([]TxRow, error) {
	limit := p.Delta
	desc := limit < 0
	if desc {
		limit = -limit
	}
	if limit == 0 {
		return nil, nil
	}
	if limit > 1000 {
		limit = 1000
	}

	var q string
	if desc {
		q = `SELECT row_id, tx_group, account_login, counterparty_login, direction, amount_value, amount_frac, subject, COALESCE(request_uid,''), happened_at
		     FROM bank_transactions WHERE account_login=$1 AND row_id < $2 ORDER BY row_id DESC LIMIT $3`
	} else {
		q = `SELECT row_id, tx_group, account_login, counterparty_login, direction, amount_value, amount_frac, subject, COALESCE(request_uid,''), happened_at
		     FROM bank_transactions WHERE account_login=$1 AND row_id > $2 ORDER BY row_id ASC LIMIT $3`
	}

	rows, err := s.db.Query(ctx, q, p.Login, p.Start, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TxRow
	for rows.Next() {
		var t TxRow
		if err := rows.Scan(&t.RowID, &t.TxGroup, &t.AccountLogin, &t.Counterparty, &t.Direction, &t.Amount.Value, &t.Amount.Frac, &t.Subject, &t.RequestUID, &t.HappenedAt); err != nil {
			return nil, err
		}
		t.Amount.Currency = s.Currency
		out = append(out, t)
	}
	return out, rows.Err()
}

// canonicalHash produces a stable hash of a request payload using RFC 8785
// JSON Canonicalization, for idempotency-key comparison.
func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// genesisHash seeds the chain so the first row has a well-defined prev_hash:
// 32 zero bytes, hex-encoded to match row_hash's width.
var genesisHash = hex.EncodeToString(make([]byte, sha256.Size))

// insertEvent appends a row to the append-only event_log used for the
// hash-chained audit trail: row_hash commits to prev_hash plus this row's
// canonical payload, so bankctl verify-chain can detect tampering.
func insertEvent(ctx context.Context, tx pgx.Tx, kind, subjectType, subjectID, actor string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return err
	}

	var prevHash string
	err = tx.QueryRow(ctx, `SELECT row_hash FROM event_log ORDER BY id DESC LIMIT 1`).Scan(&prevHash)
	if errors.Is(err, pgx.ErrNoRows) {
		prevHash = genesisHash
	} else if err != nil {
		return err
	}

	sum := sha256.Sum256(append([]byte(prevHash), canon...))
	rowHash := hex.EncodeToString(sum[:])

	_, err = tx.Exec(ctx, `
		INSERT INTO event_log(kind, subject_type, subject_id, actor, payload, prev_hash, row_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		kind, subjectType, subjectID, actor, canon, prevHash, rowHash)
	return err
}
