package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/payto"
)

// CreateAccountRequest carries everything Accounts.Create
// needs; zero-value optional fields mean "use server default / generate".
type CreateAccountRequest struct {
	Login            string
	Password         string
	LegalName        string
	IsPublic         bool
	IsTalerExchange  bool
	InternalPaytoURI string // empty = generate
	CashoutPaytoURI  string
	ContactEmail     string
	ContactPhone     string
	DebitThreshold   *money.Amount // nil = bank default
	MinCashout       *money.Amount
	TanChannel       string
}

type CreateAccountResult struct {
	InternalPaytoURI string
}

var (
	ErrLoginReuse               = errors.New("store: login already in use")
	ErrPaytoReuse                = errors.New("store: payto uri already in use")
	ErrReservedUsername          = errors.New("store: reserved username")
	ErrNonAdminFieldForbidden    = errors.New("store: non-admin may not set this field")
	ErrBonusBalanceInsufficient  = errors.New("store: admin balance insufficient for registration bonus")
	ErrOldPasswordMismatch       = errors.New("store: old password mismatch")
	ErrAccountBalanceNotZero     = errors.New("store: account balance is not zero")
	ErrAccountIsNotExchange      = errors.New("store: account is not an exchange")
)

// defaultDebitThreshold and registrationBonus are injected by the service
// wiring layer (cmd/bankctl) rather than hard-coded, but Store keeps a
// copy so Create/Patch can apply bank policy without threading config
// through every call site.
type Policy struct {
	AllowRegistrations       bool
	AllowDeletions           bool
	AllowConversion          bool
	AllowEditName            bool
	AllowEditCashoutPaytoURI bool
	DefaultDebitThreshold    money.Amount
	RegistrationBonus        *money.Amount
	TokenDefaultTTL          func() int64 // seconds; injected to avoid importing time config here
}

func (s *Store) SetPolicy(p Policy) { s.policy = p }

// CreateAccount implements Accounts.create.
func (s *Store) CreateAccount(ctx context.Context, req CreateAccountRequest, isAdmin bool) (CreateAccountResult, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" || strings.TrimSpace(req.LegalName) == "" {
		return CreateAccountResult{}, ErrValidation
	}
	if domain.IsReservedLogin(login, s.policy.AllowConversion) {
		if !(login == domain.LoginExchange && req.IsTalerExchange) {
			return CreateAccountResult{}, ErrReservedUsername
		}
	}
	if !isAdmin {
		if req.DebitThreshold != nil || req.MinCashout != nil || req.TanChannel != "" {
			return CreateAccountResult{}, ErrNonAdminFieldForbidden
		}
		if !s.policy.AllowRegistrations {
			return CreateAccountResult{}, fmt.Errorf("%w: registrations disabled", ErrConflict)
		}
	}

	threshold := s.policy.DefaultDebitThreshold
	if req.DebitThreshold != nil {
		threshold = *req.DebitThreshold
	}

	hash, err := auth.HashPassword(req.Password, auth.DefaultPasswordParams())
	if err != nil {
		return CreateAccountResult{}, err
	}

	internalPayto := req.InternalPaytoURI
	if internalPayto == "" {
		internalPayto, err = s.generateInternalPayto(ctx, login)
		if err != nil {
			return CreateAccountResult{}, err
		}
	}

	bonus := s.policy.RegistrationBonus
	applyBonus := bonus != nil && !req.IsTalerExchange

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts(
				login, legal_name, password_hash, internal_payto_uri, cashout_payto_uri,
				contact_email, contact_phone, is_public, is_taler_exchange, is_admin,
				debit_threshold_value, debit_threshold_frac, min_cashout_value, min_cashout_frac,
				tan_channel
			) VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,$9,$10,$11,$12,$13,$14,NULLIF($15,''))`,
			login, req.LegalName, hash, internalPayto, req.CashoutPaytoURI,
			req.ContactEmail, req.ContactPhone, req.IsPublic, req.IsTalerExchange, login == domain.LoginAdmin,
			threshold.Value, threshold.Frac, minCashoutValue(req.MinCashout), minCashoutFrac(req.MinCashout),
			req.TanChannel,
		)
		if err != nil {
			if isUniqueViolation(err, "accounts_pkey") {
				return ErrLoginReuse
			}
			if isUniqueViolation(err, "accounts_internal_payto_uri_key") {
				return ErrPaytoReuse
			}
			return err
		}

		if applyBonus {
			if err := s.transferLocked(ctx, tx, domain.LoginAdmin, login, *bonus, "Registration bonus.", "", false); err != nil {
				if errors.Is(err, ErrBalanceInsufficient) {
					return ErrBonusBalanceInsufficient
				}
				return err
			}
		}

		return insertEvent(ctx, tx, "ACCOUNT_CREATED", "ACCOUNT", login, login, map[string]any{
			"login": login, "internal_payto_uri": internalPayto,
		})
	})
	if err != nil {
		return CreateAccountResult{}, err
	}
	return CreateAccountResult{InternalPaytoURI: internalPayto}, nil
}

func minCashoutValue(a *money.Amount) any {
	if a == nil {
		return nil
	}
	return a.Value
}
func minCashoutFrac(a *money.Amount) any {
	if a == nil {
		return nil
	}
	return a.Frac
}

// generateInternalPayto allocates a fresh, checksummed IBAN payto URI,
// retrying on collision
func (s *Store) generateInternalPayto(ctx context.Context, login string) (string, error) {
	const maxRetries = 8
	for i := 0; i < maxRetries; i++ {
		bban, err := randomDigits(17)
		if err != nil {
			return "", err
		}
		iban, err := payto.GenerateIBAN("XT", bban)
		if err != nil {
			return "", err
		}
		p := payto.Payto{Kind: payto.KindIBAN, IBAN: iban}
		canon := p.Canonical()

		var exists bool
		err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE internal_payto_uri=$1)`, canon).Scan(&exists)
		if err != nil {
			return "", err
		}
		if !exists {
			return canon, nil
		}
	}
	return "", fmt.Errorf("%w: exhausted IBAN generation retries", ErrConflict)
}

// GetAccount fetches a single account by login.
func (s *Store) GetAccount(ctx context.Context, login string) (Account, error) {
	var a Account
	var minV, minF *int64
	err := s.db.QueryRow(ctx, `
		SELECT login, legal_name, password_hash, internal_payto_uri, COALESCE(cashout_payto_uri,''),
		       COALESCE(contact_email,''), COALESCE(contact_phone,''), is_public, is_taler_exchange, is_admin,
		       debit_threshold_value, debit_threshold_frac, min_cashout_value, min_cashout_frac,
		       COALESCE(tan_channel,''), balance_value, balance_frac, balance_has_debt, created_at
		FROM accounts WHERE login=$1`, login,
	).Scan(
		&a.Login, &a.LegalName, &a.PasswordHash, &a.InternalPaytoURI, &a.CashoutPaytoURI,
		&a.ContactEmail, &a.ContactPhone, &a.IsPublic, &a.IsTalerExchange, &a.IsAdmin,
		&a.DebitThreshold.Value, &a.DebitThreshold.Frac, &minV, &minF,
		&a.TanChannel, &a.Balance.Amount.Value, &a.Balance.Amount.Frac, &a.Balance.HasDebt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.DebitThreshold.Currency = s.Currency
	a.Balance.Amount.Currency = s.Currency
	if minV != nil && minF != nil {
		m, _ := money.New(s.Currency, uint64(*minV), uint64(*minF))
		a.MinCashout = &m
	}
	return a, nil
}

// PasswordHashFor implements auth.Lookups for the Basic-auth path.
func (s *Store) PasswordHashFor(ctx context.Context, login string) (string, bool, error) {
	var hash string
	var isAdmin bool
	err := s.db.QueryRow(ctx, `SELECT password_hash, is_admin FROM accounts WHERE login=$1`, login).Scan(&hash, &isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, ErrNotFound
		}
		return "", false, err
	}
	return hash, isAdmin, nil
}

// AccountPatch carries the already-decoded, already-authorized fields for
// Accounts.patch. Option wrappers preserve tri-state PATCH
// semantics (absent/null/set).
type AccountPatch struct {
	Name            domain.Option[string]
	CashoutPaytoURI domain.Option[string]
	ContactEmail    domain.Option[string]
	ContactPhone    domain.Option[string]
	IsPublic        domain.Option[bool]
	DebitThreshold  domain.Option[money.Amount]
	MinCashout      domain.Option[money.Amount]
	TanChannel      domain.Option[string]
	IsTalerExchange domain.Option[bool]
}

// PatchAccount applies a patch within admin/self policy rules; the
// non-admin field restrictions are enforced here.
func (s *Store) PatchAccount(ctx context.Context, login string, patch AccountPatch, isAdmin bool) error {
	if !isAdmin {
		if patch.Name.Set() && !s.policy.AllowEditName {
			return ErrNonAdminFieldForbidden
		}
		if patch.CashoutPaytoURI.Set() && !s.policy.AllowEditCashoutPaytoURI {
			return ErrNonAdminFieldForbidden
		}
		if patch.DebitThreshold.Set() || patch.MinCashout.Set() {
			return ErrNonAdminFieldForbidden
		}
	}
	if login == domain.LoginAdmin {
		if patch.IsPublic.Set() && patch.IsPublic.Value() {
			return ErrReservedUsername
		}
		if patch.IsTalerExchange.Set() && patch.IsTalerExchange.Value() {
			return ErrReservedUsername
		}
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		sets := []string{}
		args := []any{}
		addSet := func(col string, v any) {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
		}

		if patch.Name.Set() {
			addSet("legal_name", patch.Name.Value())
		}
		if patch.CashoutPaytoURI.Null() {
			addSet("cashout_payto_uri", nil)
		} else if patch.CashoutPaytoURI.Set() {
			addSet("cashout_payto_uri", patch.CashoutPaytoURI.Value())
		}
		if patch.ContactEmail.Null() {
			addSet("contact_email", nil)
		} else if patch.ContactEmail.Set() {
			addSet("contact_email", patch.ContactEmail.Value())
		}
		if patch.ContactPhone.Null() {
			addSet("contact_phone", nil)
		} else if patch.ContactPhone.Set() {
			addSet("contact_phone", patch.ContactPhone.Value())
		}
		if patch.IsPublic.Set() {
			addSet("is_public", patch.IsPublic.Value())
		}
		if patch.IsTalerExchange.Set() {
			addSet("is_taler_exchange", patch.IsTalerExchange.Value())
		}
		if patch.DebitThreshold.Set() {
			v := patch.DebitThreshold.Value()
			addSet("debit_threshold_value", v.Value)
			addSet("debit_threshold_frac", v.Frac)
		}
		if patch.MinCashout.Null() {
			addSet("min_cashout_value", nil)
			addSet("min_cashout_frac", nil)
		} else if patch.MinCashout.Set() {
			v := patch.MinCashout.Value()
			addSet("min_cashout_value", v.Value)
			addSet("min_cashout_frac", v.Frac)
		}
		if patch.TanChannel.Null() {
			addSet("tan_channel", nil)
		} else if patch.TanChannel.Set() {
			addSet("tan_channel", patch.TanChannel.Value())
		}

		if len(sets) == 0 {
			return nil
		}
		args = append(args, login)
		q := fmt.Sprintf("UPDATE accounts SET %s WHERE login=$%d", strings.Join(sets, ", "), len(args))
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertEvent(ctx, tx, "ACCOUNT_RECONFIGURED", "ACCOUNT", login, login, map[string]any{"login": login})
	})
}

// PatchPassword implements Accounts.patch_password.
func (s *Store) PatchPassword(ctx context.Context, login, newPassword, oldPassword string, isAdmin bool) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var currentHash string
		err := tx.QueryRow(ctx, `SELECT password_hash FROM accounts WHERE login=$1 FOR UPDATE`, login).Scan(&currentHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !isAdmin {
			if oldPassword == "" {
				return ErrOldPasswordMismatch
			}
			ok, err := auth.VerifyPassword(oldPassword, currentHash)
			if err != nil {
				return err
			}
			if !ok {
				return ErrOldPasswordMismatch
			}
		}
		newHash, err := auth.HashPassword(newPassword, auth.DefaultPasswordParams())
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE accounts SET password_hash=$1 WHERE login=$2`, newHash, login)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, "ACCOUNT_AUTH_RECONFIGURED", "ACCOUNT", login, login, map[string]any{"login": login})
	})
}

// DeleteAccount implements Accounts.delete.
func (s *Store) DeleteAccount(ctx context.Context, login string) error {
	if domain.IsReservedLogin(login, true) {
		return ErrReservedUsername
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var value, frac int64
		err := tx.QueryRow(ctx, `SELECT balance_value, balance_frac FROM accounts WHERE login=$1 FOR UPDATE`, login).Scan(&value, &frac)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if value != 0 || frac != 0 {
			return ErrAccountBalanceNotZero
		}

		if _, err := tx.Exec(ctx, `UPDATE withdrawal_ops SET state='aborted' WHERE login=$1 AND state IN ('pending','selected')`, login); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE cashout_ops SET state='aborted' WHERE login=$1 AND state='pending-tan'`, login); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE login=$1`, login); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM challenges WHERE login=$1`, login); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE login=$1`, login)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertEvent(ctx, tx, "ACCOUNT_DELETED", "ACCOUNT", login, login, map[string]any{"login": login})
	})
}

// ListParams paginates account listings.
type ListParams struct {
	LoginFilter string
	Limit       int
	Offset      int
}

// ListPublic implements Accounts.get_public.
func (s *Store) ListPublic(ctx context.Context, p ListParams) ([]Account, error) {
	return s.listAccounts(ctx, p, true)
}

// ListAdmin implements Accounts.get_admin.
func (s *Store) ListAdmin(ctx context.Context, p ListParams) ([]Account, error) {
	return s.listAccounts(ctx, p, false)
}

func (s *Store) listAccounts(ctx context.Context, p ListParams, publicOnly bool) ([]Account, error) {
	if p.Limit <= 0 || p.Limit > 1000 {
		p.Limit = 100
	}
	q := `SELECT login, legal_name, internal_payto_uri, is_public FROM accounts WHERE ($1 = '' OR login ILIKE '%' || $1 || '%')`
	if publicOnly {
		q += ` AND is_public = TRUE`
	}
	q += ` ORDER BY login LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, q, p.LoginFilter, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Login, &a.LegalName, &a.InternalPaytoURI, &a.IsPublic); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	e, ok := asPgError(err)
	if !ok {
		return false
	}
	return e.Code == "23505" && (constraint == "" || e.ConstraintName == constraint)
}
