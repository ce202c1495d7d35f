package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
)

var (
	ErrCashoutBelowMinimum    = errors.New("store: cashout amount below configured minimum")
	ErrCashoutWrongState      = errors.New("store: cashout not in the required state")
	ErrNoTanChannel           = errors.New("store: account has no TAN channel configured")
	ErrCashoutCreditMismatch  = errors.New("store: requested credit amount does not match the conversion rate")
)

// QuoteCashout computes the fiat amount a given regional-currency debit
// would credit, using the bank's current conversion rate. Callers use it to
// validate a caller-supplied credit amount before creating the cashout.
func (s *Store) QuoteCashout(ctx context.Context, debit money.Amount) (money.Amount, error) {
	rate, err := s.GetConversionRate(ctx)
	if err != nil {
		return money.Amount{}, err
	}
	return ConvertCashout(rate, debit)
}

// CreateCashoutRequest carries Cashouts.create's inputs: the
// caller names the regional-currency amount to debit, and the store
// computes the fiat credit using the configured conversion rate.
type CreateCashoutRequest struct {
	Login      string
	RequestUID string
	Debit      money.Amount
	Subject    string
}

// CreateCashoutResult reports the computed credit and the challenge raised
// to confirm it, so the HTTP layer can return both in one response.
type CreateCashoutResult struct {
	CashoutID   int64
	Credit      money.Amount
	ChallengeID int64
}

// CreateCashout implements Cashouts.create. No funds move yet: the
// operation is parked pending TAN confirmation, and the transfer to the
// exchange account happens in confirmCashout once the challenge is solved.
func (s *Store) CreateCashout(ctx context.Context, req CreateCashoutRequest) (CreateCashoutResult, error) {
	if req.Debit.IsZero() || req.Debit.Currency != s.Currency {
		return CreateCashoutResult{}, ErrValidation
	}

	rate, err := s.GetConversionRate(ctx)
	if err != nil {
		return CreateCashoutResult{}, err
	}
	credit, err := ConvertCashout(rate, req.Debit)
	if err != nil {
		return CreateCashoutResult{}, err
	}
	if credit.IsZero() || credit.Cmp(rate.CashoutMin) < 0 {
		return CreateCashoutResult{}, ErrCashoutBelowMinimum
	}

	var result CreateCashoutResult
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		var existingID int64
		err := tx.QueryRow(ctx, `SELECT cashout_id FROM cashout_ops WHERE login=$1 AND request_uid=$2`, req.Login, req.RequestUID).Scan(&existingID)
		if err == nil {
			return ErrIdempotencyConflict
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var tanChannel *string
		if err := tx.QueryRow(ctx, `SELECT tan_channel FROM accounts WHERE login=$1 FOR UPDATE`, req.Login).Scan(&tanChannel); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if tanChannel == nil || *tanChannel == "" {
			return ErrNoTanChannel
		}

		var cashoutID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO cashout_ops(login, request_uid, debit_value, debit_frac, credit_value, credit_frac, credit_currency, subject, state)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING cashout_id`,
			req.Login, req.RequestUID, req.Debit.Value, req.Debit.Frac, credit.Value, credit.Frac, credit.Currency, req.Subject, string(domain.CashoutPendingTAN),
		).Scan(&cashoutID)
		if err != nil {
			return err
		}

		code, err := randomDigits(8)
		if err != nil {
			return err
		}
		var challengeID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO challenges(login, op_kind, op_ref, code, channel, expires_at, remaining_retries, payload_json, payload_canonical)
			VALUES ($1,$2,$3,$4,$5, now() + interval '15 minutes', 3, '{}'::jsonb, '{}')
			RETURNING challenge_id`,
			req.Login, string(domain.OpCashout), strconv.FormatInt(cashoutID, 10), code, *tanChannel,
		).Scan(&challengeID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE cashout_ops SET challenge_id=$1 WHERE cashout_id=$2`, challengeID, cashoutID); err != nil {
			return err
		}

		result = CreateCashoutResult{CashoutID: cashoutID, Credit: credit, ChallengeID: challengeID}
		return insertEvent(ctx, tx, "CASHOUT_CREATED", "CASHOUT", strconv.FormatInt(cashoutID, 10), req.Login, map[string]any{
			"login": req.Login, "debit": req.Debit.String(), "credit": credit.String(),
		})
	})
	if err != nil {
		return CreateCashoutResult{}, err
	}
	s.notify.Publish(req.Login)
	return result, nil
}

// confirmCashout finalizes a cashout after its TAN challenge has been
// solved (see challenges.go's SolveChallenge, which calls this on success):
// it transfers the debit amount from the account to the exchange account
// and records the resulting ledger row against the cashout.
func (s *Store) confirmCashout(ctx context.Context, tx pgx.Tx, cashoutID int64) error {
	var state, login, subject string
	var debitV, debitF uint64
	err := tx.QueryRow(ctx, `
		SELECT state, login, debit_value, debit_frac, subject FROM cashout_ops WHERE cashout_id=$1 FOR UPDATE`, cashoutID,
	).Scan(&state, &login, &debitV, &debitF, &subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if domain.CashoutState(state) != domain.CashoutPendingTAN {
		return ErrCashoutWrongState
	}

	amount, err := money.New(s.Currency, debitV, debitF)
	if err != nil {
		return err
	}
	if err := s.transferLocked(ctx, tx, login, domain.LoginExchange, amount, subject, "", false); err != nil {
		return err
	}

	var rowID int64
	if err := tx.QueryRow(ctx, `
		SELECT row_id FROM bank_transactions WHERE account_login=$1 AND counterparty_login=$2 AND direction='debit' ORDER BY row_id DESC LIMIT 1`,
		login, domain.LoginExchange,
	).Scan(&rowID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE cashout_ops SET state=$1, tx_row_id=$2 WHERE cashout_id=$3`, string(domain.CashoutConfirmed), rowID, cashoutID); err != nil {
		return err
	}
	return insertEvent(ctx, tx, "CASHOUT_CONFIRMED", "CASHOUT", strconv.FormatInt(cashoutID, 10), login, map[string]any{"cashout_id": cashoutID})
}

// GetCashout implements the cashout status lookup used by the Core Bank
// API, scoped to the owning account.
func (s *Store) GetCashout(ctx context.Context, login string, id int64) (Cashout, error) {
	var c Cashout
	err := s.db.QueryRow(ctx, `
		SELECT cashout_id, login, request_uid, debit_value, debit_frac, credit_value, credit_frac, credit_currency,
		       subject, state, challenge_id, tx_row_id, created_at
		FROM cashout_ops WHERE login=$1 AND cashout_id=$2`, login, id,
	).Scan(
		&c.ID, &c.Login, &c.RequestUID, &c.Debit.Value, &c.Debit.Frac, &c.Credit.Value, &c.Credit.Frac, &c.Credit.Currency,
		&c.Subject, &c.State, &c.ChallengeID, &c.TxRowID, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cashout{}, ErrNotFound
		}
		return Cashout{}, err
	}
	c.Debit.Currency = s.Currency
	return c, nil
}

// ListCashouts implements the per-account cashout listing.
func (s *Store) ListCashouts(ctx context.Context, login string) ([]Cashout, error) {
	rows, err := s.db.Query(ctx, `
		SELECT cashout_id, login, request_uid, debit_value, debit_frac, credit_value, credit_frac, credit_currency,
		       subject, state, challenge_id, tx_row_id, created_at
		FROM cashout_ops WHERE login=$1 ORDER BY cashout_id DESC LIMIT 1000`, login,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cashout
	for rows.Next() {
		var c Cashout
		if err := rows.Scan(
			&c.ID, &c.Login, &c.RequestUID, &c.Debit.Value, &c.Debit.Frac, &c.Credit.Value, &c.Credit.Frac, &c.Credit.Currency,
			&c.Subject, &c.State, &c.ChallengeID, &c.TxRowID, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		c.Debit.Currency = s.Currency
		out = append(out, c)
	}
	return out, rows.Err()
}

// AbortCashout implements Cashouts.abort, called when a TAN challenge is
// abandoned or explicitly cancelled. No funds move on abort: confirm is
// the only step that touches the ledger.
func (s *Store) AbortCashout(ctx context.Context, cashoutID int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var state string
		err := tx.QueryRow(ctx, `SELECT state FROM cashout_ops WHERE cashout_id=$1 FOR UPDATE`, cashoutID).Scan(&state)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		switch domain.CashoutState(state) {
		case domain.CashoutAborted:
			return nil
		case domain.CashoutConfirmed:
			return ErrCashoutWrongState
		}
		_, err = tx.Exec(ctx, `UPDATE cashout_ops SET state=$1 WHERE cashout_id=$2`, string(domain.CashoutAborted), cashoutID)
		return err
	})
}

