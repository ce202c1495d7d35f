package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
)

// Account mirrors the accounts table, decoded into typed Amounts.
type Account struct {
	Login            string
	LegalName        string
	PasswordHash     string
	InternalPaytoURI string
	CashoutPaytoURI  string
	ContactEmail     string
	ContactPhone     string
	IsPublic         bool
	IsTalerExchange  bool
	IsAdmin          bool
	DebitThreshold   money.Amount
	MinCashout       *money.Amount
	TanChannel       string
	Balance          money.Signed
	CreatedAt        time.Time
}

// TxRow mirrors one side (debit or credit) of a bank_transactions row.
type TxRow struct {
	RowID         int64
	TxGroup       uuid.UUID
	AccountLogin  string
	Counterparty  string
	Direction     string // "debit" | "credit"
	Amount        money.Amount
	Subject       string
	RequestUID    string
	HappenedAt    time.Time
}

// Token mirrors the tokens table.
type Token struct {
	Bytes       []byte
	Login       string
	Scope       domain.TokenScope
	Refreshable bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Withdrawal mirrors withdrawal_ops.
type Withdrawal struct {
	ID               uuid.UUID
	Login            string
	Amount           money.Amount
	State            domain.WithdrawalState
	SelectedExchange string
	ReservePub       []byte
	TxRowID          *int64
	CreatedAt        time.Time
}

// Cashout mirrors cashout_ops.
type Cashout struct {
	ID             int64
	Login          string
	RequestUID     string
	Debit          money.Amount
	Credit         money.Amount
	Subject        string
	State          domain.CashoutState
	ChallengeID    *int64
	TxRowID        *int64
	CreatedAt      time.Time
}

// Challenge mirrors the challenges table.
type Challenge struct {
	ID                      int64
	Login                   string
	OpKind                  domain.SensitiveOp
	OpRef                   string
	Code                    string
	Channel                 domain.TanChannel
	CreatedAt               time.Time
	LastSentAt              *time.Time
	RetransmissionDeadline  *time.Time
	ExpiresAt               time.Time
	RemainingRetries        int
	ConfirmedAt             *time.Time
	PayloadJSON             []byte
}

// ConversionRate mirrors conversion_rate (single row).
type ConversionRate struct {
	FiatCurrency     string
	CashinRatioNum   int64
	CashinRatioDen   int64
	CashoutRatioNum  int64
	CashoutRatioDen  int64
	CashinFee        money.Amount
	CashoutFee       money.Amount
	CashinMin        money.Amount
	CashoutMin       money.Amount
	CashinTiny       money.Amount
	CashoutTiny      money.Amount
	RoundingMode     domain.RoundingMode
}
