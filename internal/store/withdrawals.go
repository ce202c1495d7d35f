package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/payto"
)

var (
	ErrWithdrawalWrongState = errors.New("store: withdrawal not in the required state")
	ErrReservePubReused     = errors.New("store: reserve public key already used")
)

// CreateWithdrawal parks the amount in a pending withdrawal awaiting wallet
// selection and confirmation. It reserves no funds: the account is only
// checked and debited once the wallet confirms, against the exchange it
// selected in between.
func (s *Store) CreateWithdrawal(ctx context.Context, login string, amount money.Amount) (uuid.UUID, error) {
	if amount.IsZero() || amount.Currency != s.Currency {
		return uuid.UUID{}, ErrValidation
	}
	id := uuid.New()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.lockedAccount(ctx, tx, login); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO withdrawal_ops(withdrawal_id, login, amount_value, amount_frac, state)
			VALUES ($1,$2,$3,$4,$5)`,
			id, login, amount.Value, amount.Frac, string(domain.WithdrawalPending))
		return err
	})
	if err != nil {
		return uuid.UUID{}, err
	}
	s.notify.Publish(login)
	return id, nil
}

// GetWithdrawal implements the withdrawal status poll used by both the
// Core Bank and Integration APIs.
func (s *Store) GetWithdrawal(ctx context.Context, id uuid.UUID) (Withdrawal, error) {
	var w Withdrawal
	var reservePub []byte
	var selectedExchange *string
	err := s.db.QueryRow(ctx, `
		SELECT withdrawal_id, login, amount_value, amount_frac, state, selected_exchange_payto, reserve_pub, tx_row_id, created_at
		FROM withdrawal_ops WHERE withdrawal_id=$1`, id,
	).Scan(&w.ID, &w.Login, &w.Amount.Value, &w.Amount.Frac, &w.State, &selectedExchange, &reservePub, &w.TxRowID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Withdrawal{}, ErrNotFound
		}
		return Withdrawal{}, err
	}
	w.Amount.Currency = s.Currency
	if selectedExchange != nil {
		w.SelectedExchange = *selectedExchange
	}
	w.ReservePub = reservePub
	return w, nil
}

// SelectWithdrawal implements Withdrawals.select: the wallet names the
// exchange and reserve public key it wants credited. Re-selecting an
// already-selected withdrawal with the identical exchange and reserve
// public key is idempotent; selecting different values is a conflict.
func (s *Store) SelectWithdrawal(ctx context.Context, id uuid.UUID, exchangePayto string, reservePub []byte) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var state string
		var existingExchange *string
		var existingReserve []byte
		err := tx.QueryRow(ctx, `
			SELECT state, selected_exchange_payto, reserve_pub FROM withdrawal_ops WHERE withdrawal_id=$1 FOR UPDATE`, id,
		).Scan(&state, &existingExchange, &existingReserve)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if domain.WithdrawalState(state) == domain.WithdrawalSelected {
			if existingExchange != nil && *existingExchange == exchangePayto && bytes.Equal(existingReserve, reservePub) {
				return nil
			}
			return ErrWithdrawalWrongState
		}
		if domain.WithdrawalState(state) != domain.WithdrawalPending {
			return ErrWithdrawalWrongState
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wire_incoming_log WHERE reserve_pub=$1)`, reservePub).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrReservePubReused
		}

		_, err = tx.Exec(ctx, `
			UPDATE withdrawal_ops SET state=$1, selected_exchange_payto=$2, reserve_pub=$3 WHERE withdrawal_id=$4`,
			string(domain.WithdrawalSelected), exchangePayto, reservePub, id)
		return err
	})
}

// AbortWithdrawal implements Withdrawals.abort. No funds move on abort: the
// withdrawal never debited the account, since confirm is the only step
// that touches the ledger.
func (s *Store) AbortWithdrawal(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var state string
		err := tx.QueryRow(ctx, `SELECT state FROM withdrawal_ops WHERE withdrawal_id=$1 FOR UPDATE`, id).Scan(&state)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		switch domain.WithdrawalState(state) {
		case domain.WithdrawalAborted:
			return nil // idempotent
		case domain.WithdrawalConfirmed:
			return ErrWithdrawalWrongState
		}
		_, err = tx.Exec(ctx, `UPDATE withdrawal_ops SET state=$1 WHERE withdrawal_id=$2`, string(domain.WithdrawalAborted), id)
		return err
	})
}

// ConfirmWithdrawalResult reports whether the transfer to the exchange
// happened immediately or is waiting on a TAN challenge the caller must
// solve first.
type ConfirmWithdrawalResult struct {
	Confirmed   bool
	ChallengeID int64
	TanChannel  domain.TanChannel
}

// ConfirmWithdrawal implements Withdrawals.confirm: it resolves the wallet's
// selected exchange to a local account and transfers the withdrawn amount
// to it, using the reserve public key as the transaction subject. The
// account's balance is only checked here, against the debit threshold,
// since a withdrawal reserves no funds at creation. When the account has a
// TAN channel configured, the transfer is deferred until the challenge
// this raises is solved (see SolveChallenge's domain.OpWithdrawal case).
func (s *Store) ConfirmWithdrawal(ctx context.Context, id uuid.UUID) (ConfirmWithdrawalResult, error) {
	var login string
	var result ConfirmWithdrawalResult
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var state string
		err := tx.QueryRow(ctx, `SELECT state, login FROM withdrawal_ops WHERE withdrawal_id=$1 FOR UPDATE`, id).Scan(&state, &login)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		switch domain.WithdrawalState(state) {
		case domain.WithdrawalConfirmed:
			result.Confirmed = true
			return nil // idempotent
		case domain.WithdrawalAborted, domain.WithdrawalPending:
			return ErrWithdrawalWrongState
		}

		var challengeID int64
		var channel string
		err = tx.QueryRow(ctx, `
			SELECT challenge_id, channel FROM challenges
			WHERE op_kind=$1 AND op_ref=$2 AND confirmed_at IS NULL ORDER BY challenge_id DESC LIMIT 1`,
			string(domain.OpWithdrawal), id.String(),
		).Scan(&challengeID, &channel)
		if err == nil {
			result.ChallengeID = challengeID
			result.TanChannel = domain.TanChannel(channel)
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var tanChannel *string
		if err := tx.QueryRow(ctx, `SELECT tan_channel FROM accounts WHERE login=$1`, login).Scan(&tanChannel); err != nil {
			return err
		}
		if tanChannel == nil || *tanChannel == "" {
			if err := s.confirmWithdrawalLocked(ctx, tx, id); err != nil {
				return err
			}
			result.Confirmed = true
			return nil
		}

		code, err := randomDigits(8)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO challenges(login, op_kind, op_ref, code, channel, expires_at, remaining_retries, payload_json, payload_canonical)
			VALUES ($1,$2,$3,$4,$5, now() + interval '15 minutes', 3, '{}'::jsonb, '{}')
			RETURNING challenge_id`,
			login, string(domain.OpWithdrawal), id.String(), code, *tanChannel,
		).Scan(&challengeID)
		if err != nil {
			return err
		}
		result.ChallengeID = challengeID
		result.TanChannel = domain.TanChannel(*tanChannel)
		return nil
	})
	if err != nil {
		return ConfirmWithdrawalResult{}, err
	}
	if result.Confirmed {
		s.notify.Publish(login)
	}
	return result, nil
}

// confirmWithdrawalLocked performs the ledger transfer to the selected
// exchange once a withdrawal's TAN gate, if any, has cleared. Called either
// directly by ConfirmWithdrawal when the account has no TAN channel, or by
// SolveChallenge on a successful domain.OpWithdrawal challenge.
func (s *Store) confirmWithdrawalLocked(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var state, login string
	var exchangePayto *string
	var reservePub []byte
	var value, frac uint64
	err := tx.QueryRow(ctx, `
		SELECT state, login, amount_value, amount_frac, selected_exchange_payto, reserve_pub
		FROM withdrawal_ops WHERE withdrawal_id=$1 FOR UPDATE`, id,
	).Scan(&state, &login, &value, &frac, &exchangePayto, &reservePub)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if domain.WithdrawalState(state) == domain.WithdrawalConfirmed {
		return nil // idempotent
	}
	if domain.WithdrawalState(state) != domain.WithdrawalSelected || exchangePayto == nil {
		return ErrWithdrawalWrongState
	}

	p, err := payto.Parse(*exchangePayto)
	if err != nil {
		return err
	}
	exchangeLogin, err := s.resolveLocalLogin(ctx, p)
	if err != nil {
		return err
	}
	var isExchange bool
	if err := tx.QueryRow(ctx, `SELECT is_taler_exchange FROM accounts WHERE login=$1`, exchangeLogin).Scan(&isExchange); err != nil {
		return err
	}
	if !isExchange {
		return ErrAccountIsNotExchange
	}

	amount, err := money.New(s.Currency, value, frac)
	if err != nil {
		return err
	}
	if err := s.transferLocked(ctx, tx, login, exchangeLogin, amount, hex.EncodeToString(reservePub), "", false); err != nil {
		return err
	}

	var rowID int64
	if err := tx.QueryRow(ctx, `
		SELECT row_id FROM bank_transactions WHERE account_login=$1 AND counterparty_login=$2 AND direction='debit' ORDER BY row_id DESC LIMIT 1`,
		login, exchangeLogin,
	).Scan(&rowID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE withdrawal_ops SET state=$1, tx_row_id=$2 WHERE withdrawal_id=$3`, string(domain.WithdrawalConfirmed), rowID, id)
	return err
}
