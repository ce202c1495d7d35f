package store

import (
	"context"
	"errors"
	"math/big"

	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
)

var ErrConversionDisabled = errors.New("store: fiat conversion is not configured")

// GetConversionRate fetches the bank's single conversion configuration row.
func (s *Store) GetConversionRate(ctx context.Context) (ConversionRate, error) {
	var c ConversionRate
	var rounding string
	err := s.db.QueryRow(ctx, `
		SELECT fiat_currency, cashin_ratio_num, cashin_ratio_den, cashout_ratio_num, cashout_ratio_den,
		       cashin_fee_value, cashin_fee_frac, cashout_fee_value, cashout_fee_frac,
		       cashin_min_value, cashin_min_frac, cashout_min_value, cashout_min_frac,
		       cashin_tiny_value, cashin_tiny_frac, cashout_tiny_value, cashout_tiny_frac, rounding_mode
		FROM conversion_rate WHERE id=1`,
	).Scan(
		&c.FiatCurrency, &c.CashinRatioNum, &c.CashinRatioDen, &c.CashoutRatioNum, &c.CashoutRatioDen,
		&c.CashinFee.Value, &c.CashinFee.Frac, &c.CashoutFee.Value, &c.CashoutFee.Frac,
		&c.CashinMin.Value, &c.CashinMin.Frac, &c.CashoutMin.Value, &c.CashoutMin.Frac,
		&c.CashinTiny.Value, &c.CashinTiny.Frac, &c.CashoutTiny.Value, &c.CashoutTiny.Frac, &rounding,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConversionRate{}, ErrConversionDisabled
		}
		return ConversionRate{}, err
	}
	c.RoundingMode = domain.RoundingMode(rounding)
	c.CashinFee.Currency = s.Currency
	c.CashoutFee.Currency = s.Currency
	c.CashinMin.Currency = c.FiatCurrency
	c.CashoutMin.Currency = s.Currency
	c.CashinTiny.Currency = s.Currency
	c.CashoutTiny.Currency = c.FiatCurrency
	return c, nil
}

// SetConversionRate implements the admin-only conversion-rate configuration
// endpoint, upserting the single row.
func (s *Store) SetConversionRate(ctx context.Context, c ConversionRate) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversion_rate(
				id, fiat_currency, cashin_ratio_num, cashin_ratio_den, cashout_ratio_num, cashout_ratio_den,
				cashin_fee_value, cashin_fee_frac, cashout_fee_value, cashout_fee_frac,
				cashin_min_value, cashin_min_frac, cashout_min_value, cashout_min_frac,
				cashin_tiny_value, cashin_tiny_frac, cashout_tiny_value, cashout_tiny_frac, rounding_mode
			) VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			ON CONFLICT (id) DO UPDATE SET
				fiat_currency=EXCLUDED.fiat_currency,
				cashin_ratio_num=EXCLUDED.cashin_ratio_num, cashin_ratio_den=EXCLUDED.cashin_ratio_den,
				cashout_ratio_num=EXCLUDED.cashout_ratio_num, cashout_ratio_den=EXCLUDED.cashout_ratio_den,
				cashin_fee_value=EXCLUDED.cashin_fee_value, cashin_fee_frac=EXCLUDED.cashin_fee_frac,
				cashout_fee_value=EXCLUDED.cashout_fee_value, cashout_fee_frac=EXCLUDED.cashout_fee_frac,
				cashin_min_value=EXCLUDED.cashin_min_value, cashin_min_frac=EXCLUDED.cashin_min_frac,
				cashout_min_value=EXCLUDED.cashout_min_value, cashout_min_frac=EXCLUDED.cashout_min_frac,
				cashin_tiny_value=EXCLUDED.cashin_tiny_value, cashin_tiny_frac=EXCLUDED.cashin_tiny_frac,
				cashout_tiny_value=EXCLUDED.cashout_tiny_value, cashout_tiny_frac=EXCLUDED.cashout_tiny_frac,
				rounding_mode=EXCLUDED.rounding_mode`,
			c.FiatCurrency, c.CashinRatioNum, c.CashinRatioDen, c.CashoutRatioNum, c.CashoutRatioDen,
			c.CashinFee.Value, c.CashinFee.Frac, c.CashoutFee.Value, c.CashoutFee.Frac,
			c.CashinMin.Value, c.CashinMin.Frac, c.CashoutMin.Value, c.CashoutMin.Frac,
			c.CashinTiny.Value, c.CashinTiny.Frac, c.CashoutTiny.Value, c.CashoutTiny.Frac, string(c.RoundingMode),
		)
		return err
	})
}

// roundToTiny rounds a tiny-unit amount to a multiple of the configured
// tiny_amount unit: down for RoundZero, up for RoundUp, and to the nearest
// multiple for RoundNearest (a remainder of exactly half rounds up).
func roundToTiny(tiny, tinyUnit *big.Int, mode domain.RoundingMode) *big.Int {
	if tinyUnit.Sign() <= 0 {
		return new(big.Int).Set(tiny)
	}
	q, r := new(big.Int), new(big.Int)
	q.DivMod(tiny, tinyUnit, r) // r in [0, tinyUnit)
	if r.Sign() == 0 {
		return new(big.Int).Mul(q, tinyUnit)
	}
	switch mode {
	case domain.RoundUp:
		q.Add(q, big.NewInt(1))
	case domain.RoundNearest:
		twice := new(big.Int).Lsh(r, 1)
		if twice.Cmp(tinyUnit) >= 0 {
			q.Add(q, big.NewInt(1))
		}
	case domain.RoundZero:
		// floor, already in q
	}
	return q.Mul(q, tinyUnit)
}

// ConvertCashout computes the fiat amount credited to the cashout address
// for a given regional-currency debit: apply the cashout ratio, subtract
// the flat fee, then round to the tiny unit. A fee larger than the converted
// amount yields a zero result rather than an error.
func ConvertCashout(c ConversionRate, debit money.Amount) (money.Amount, error) {
	gross, err := debit.MulDiv(c.CashoutRatioNum, c.CashoutRatioDen)
	if err != nil {
		return money.Amount{}, err
	}
	net, err := gross.Sub(c.CashoutFee)
	if err != nil {
		// fee exceeds gross: clamp to zero rather than surfacing underflow,
		// the caller checks IsZero() against the configured minimum.
		net = money.Zero(c.FiatCurrency)
	}
	tiny := net.ToTiny()
	rounded := roundToTiny(tiny, c.CashoutTiny.ToTiny(), c.RoundingMode)
	return money.FromTiny(c.FiatCurrency, rounded)
}

// ConvertCashin computes the regional-currency amount credited for an
// incoming fiat wire, the inverse direction of ConvertCashout.
func ConvertCashin(c ConversionRate, incoming money.Amount) (money.Amount, error) {
	gross, err := incoming.MulDiv(c.CashinRatioNum, c.CashinRatioDen)
	if err != nil {
		return money.Amount{}, err
	}
	gross.Currency = c.CashinFee.Currency // the converted amount is regional
	net, err := gross.Sub(c.CashinFee)
	if err != nil {
		net = money.Zero(c.CashinFee.Currency)
	}
	tiny := net.ToTiny()
	rounded := roundToTiny(tiny, c.CashinTiny.ToTiny(), c.RoundingMode)
	return money.FromTiny(c.CashinFee.Currency, rounded)
}
