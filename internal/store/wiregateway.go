package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/payto"
)

var (
	ErrReservePubAlreadyUsed  = errors.New("store: reserve public key already credited")
	ErrWireTransferUIDReused  = errors.New("store: request_uid reused with a different transfer")
)

// WireTransferRequest implements WireGateway.transfer: the
// exchange debits its own account and credits an arbitrary local payto
// URI, keyed by request_uid for exactly-once delivery.
type WireTransferRequest struct {
	RequestUID      string
	Amount          money.Amount
	ExchangeBaseURL string
	WTID            string
	CreditPaytoURI  string
}

// WireTransfer debits exchangeLogin's account and credits CreditPaytoURI,
// recording the transfer under request_uid so a retried
// call with the same body is a no-op.
func (s *Store) WireTransfer(ctx context.Context, exchangeLogin string, req WireTransferRequest) (int64, error) {
	p, err := payto.Parse(req.CreditPaytoURI)
	if err != nil {
		return 0, err
	}
	creditLogin, err := s.resolveLocalLogin(ctx, p)
	if err != nil {
		return 0, err
	}

	var rowID int64
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		var existing int64
		var exAmountValue, exAmountFrac uint64
		var exCreditLogin, exExchangeBaseURL, exWTID string
		err := tx.QueryRow(ctx, `
			SELECT tx_row_id, amount_value, amount_frac, credit_login, exchange_base_url, wtid
			FROM wire_transfer_log WHERE request_uid=$1`, req.RequestUID,
		).Scan(&existing, &exAmountValue, &exAmountFrac, &exCreditLogin, &exExchangeBaseURL, &exWTID)
		if err == nil {
			if exAmountValue != req.Amount.Value || exAmountFrac != req.Amount.Frac ||
				exCreditLogin != creditLogin || exExchangeBaseURL != req.ExchangeBaseURL || exWTID != req.WTID {
				return ErrWireTransferUIDReused
			}
			rowID = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if err := s.transferLocked(ctx, tx, exchangeLogin, creditLogin, req.Amount, req.WTID, req.RequestUID, false); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			SELECT row_id FROM bank_transactions WHERE account_login=$1 AND request_uid=$2 AND direction='debit'`,
			exchangeLogin, req.RequestUID,
		).Scan(&rowID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO wire_transfer_log(request_uid, amount_value, amount_frac, credit_login, exchange_base_url, wtid, tx_row_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			req.RequestUID, req.Amount.Value, req.Amount.Frac, creditLogin, req.ExchangeBaseURL, req.WTID, rowID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify.Publish(exchangeLogin)
	s.notify.Publish(creditLogin)
	return rowID, nil
}

// AddIncomingRequest implements WireGateway.add_incoming: a reserve
// top-up credited to the exchange's own account, keyed by the one-time
// reserve public key rather than a request_uid.
type AddIncomingRequest struct {
	Amount        money.Amount
	ReservePub    []byte
	DebitPaytoURI string
}

func (s *Store) AddIncoming(ctx context.Context, exchangeLogin string, req AddIncomingRequest) (int64, error) {
	p, err := payto.Parse(req.DebitPaytoURI)
	if err != nil {
		return 0, err
	}
	debitLogin, err := s.resolveLocalLogin(ctx, p)
	if err != nil {
		return 0, err
	}

	var rowID int64
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wire_incoming_log WHERE reserve_pub=$1)`, req.ReservePub).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrReservePubAlreadyUsed
		}

		if err := s.transferLocked(ctx, tx, debitLogin, exchangeLogin, req.Amount, "Incoming reserve top-up.", "", false); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			SELECT row_id FROM bank_transactions WHERE account_login=$1 AND direction='credit' ORDER BY row_id DESC LIMIT 1`,
			exchangeLogin,
		).Scan(&rowID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO wire_incoming_log(reserve_pub, tx_row_id) VALUES ($1,$2)`, req.ReservePub, rowID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify.Publish(exchangeLogin)
	s.notify.Publish(debitLogin)
	return rowID, nil
}

// ResolveLocalLogin maps a payto URI onto the local account login that
// issued it, used by both the ledger and wire gateway to turn a
// caller-supplied payto URI into an internal account reference.
func (s *Store) ResolveLocalLogin(ctx context.Context, p payto.Payto) (string, error) {
	return s.resolveLocalLogin(ctx, p)
}

func (s *Store) resolveLocalLogin(ctx context.Context, p payto.Payto) (string, error) {
	var login string
	err := s.db.QueryRow(ctx, `SELECT login FROM accounts WHERE internal_payto_uri=$1`, p.Canonical()).Scan(&login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return login, nil
}

// OutgoingHistory implements WireGateway.history/outgoing: every transfer
// the named exchange account has sent.
func (s *Store) OutgoingHistory(ctx context.Context, exchangeLogin string, start int64, delta int) ([]OutgoingEntry, error) {
	desc := delta < 0
	limit := delta
	if desc {
		limit = -limit
	}
	if limit == 0 || limit > 1000 {
		limit = 1000
	}
	op := ">"
	order := "ASC"
	if desc {
		op = "<"
		order = "DESC"
	}
	rows, err := s.db.Query(ctx, `
		SELECT w.tx_row_id, w.created_at, t.amount_value, t.amount_frac, t.counterparty_login, w.wtid, w.exchange_base_url
		FROM wire_transfer_log w JOIN bank_transactions t ON t.row_id = w.tx_row_id
		WHERE t.account_login=$1 AND w.tx_row_id `+op+` $2 ORDER BY w.tx_row_id `+order+` LIMIT $3`,
		exchangeLogin, start, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutgoingEntry
	for rows.Next() {
		var e OutgoingEntry
		if err := rows.Scan(&e.RowID, &e.At, &e.Amount.Value, &e.Amount.Frac, &e.CreditLogin, &e.WTID, &e.ExchangeBaseURL); err != nil {
			return nil, err
		}
		e.Amount.Currency = s.Currency
		out = append(out, e)
	}
	return out, rows.Err()
}

// OutgoingEntry is a denormalized view joining wire_transfer_log and
// bank_transactions, shaped for the Wire Gateway history response.
type OutgoingEntry struct {
	RowID           int64
	At              time.Time
	Amount          money.Amount
	CreditLogin     string
	WTID            string
	ExchangeBaseURL string
}

// IncomingHistory implements WireGateway.history/incoming: every reserve
// top-up the named exchange account has received.
func (s *Store) IncomingHistory(ctx context.Context, exchangeLogin string, start int64, delta int) ([]IncomingEntry, error) {
	desc := delta < 0
	limit := delta
	if desc {
		limit = -limit
	}
	if limit == 0 || limit > 1000 {
		limit = 1000
	}
	op := ">"
	order := "ASC"
	if desc {
		op = "<"
		order = "DESC"
	}
	rows, err := s.db.Query(ctx, `
		SELECT w.tx_row_id, w.created_at, t.amount_value, t.amount_frac, t.counterparty_login, w.reserve_pub
		FROM wire_incoming_log w JOIN bank_transactions t ON t.row_id = w.tx_row_id
		WHERE t.account_login=$1 AND w.tx_row_id `+op+` $2 ORDER BY w.tx_row_id `+order+` LIMIT $3`,
		exchangeLogin, start, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncomingEntry
	for rows.Next() {
		var e IncomingEntry
		if err := rows.Scan(&e.RowID, &e.At, &e.Amount.Value, &e.Amount.Frac, &e.DebitLogin, &e.ReservePub); err != nil {
			return nil, err
		}
		e.Amount.Currency = s.Currency
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncomingEntry mirrors a single wire_incoming_log row joined with its
// ledger counterpart.
type IncomingEntry struct {
	RowID      int64
	At         time.Time
	Amount     money.Amount
	DebitLogin string
	ReservePub []byte
}
