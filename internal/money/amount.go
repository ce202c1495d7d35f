// Package money implements the fixed-point Amount type used across the
// ledger: an integer value part, an eight-digit fractional part, and a
// currency tag, following the GNU Taler wire-amount convention.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	// FracBase is the denominator of the fractional part: 10^8.
	FracBase = 100_000_000
	// MaxValue is the largest integer part an Amount may carry (2^52).
	MaxValue = uint64(1) << 52
)

var (
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrOverflow         = errors.New("money: value overflow")
	ErrMalformed        = errors.New("money: malformed amount")
	ErrNegative         = errors.New("money: negative amount not representable")
)

// Amount is an unsigned fixed-point value tagged with a currency. Sign is
// carried separately by callers that need signed balances (see Signed).
type Amount struct {
	Currency string
	Value    uint64 // integer part, 0 <= Value <= MaxValue
	Frac     uint64 // fractional part in units of 1e-8, 0 <= Frac < FracBase
}

func isValidCurrency(cur string) bool {
	if len(cur) < 1 || len(cur) > 11 {
		return false
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// New constructs an Amount, normalizing frac overflow into value and
// validating the currency tag and bounds.
func New(currency string, value, frac uint64) (Amount, error) {
	if !isValidCurrency(currency) {
		return Amount{}, fmt.Errorf("%w: bad currency tag %q", ErrMalformed, currency)
	}
	value += frac / FracBase
	frac = frac % FracBase
	if value > MaxValue {
		return Amount{}, ErrOverflow
	}
	return Amount{Currency: currency, Value: value, Frac: frac}, nil
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Amount {
	a, _ := New(currency, 0, 0)
	return a
}

// Parse reads the canonical "CUR:v[.frac]" representation. Up to eight
// fractional digits are accepted; fewer are right-padded with zeros.
func Parse(s string) (Amount, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Amount{}, fmt.Errorf("%w: missing currency separator in %q", ErrMalformed, s)
	}
	currency, rest := parts[0], parts[1]
	if !isValidCurrency(currency) {
		return Amount{}, fmt.Errorf("%w: bad currency tag %q", ErrMalformed, currency)
	}

	intPart, fracPart, hasFrac := rest, "", false
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		intPart, fracPart, hasFrac = rest[:i], rest[i+1:], true
	}
	if intPart == "" {
		return Amount{}, fmt.Errorf("%w: empty integer part in %q", ErrMalformed, s)
	}
	value, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: bad integer part: %v", ErrMalformed, err)
	}
	if value > MaxValue {
		return Amount{}, ErrOverflow
	}

	var frac uint64
	if hasFrac {
		if len(fracPart) == 0 || len(fracPart) > 8 {
			return Amount{}, fmt.Errorf("%w: fractional part must be 1-8 digits", ErrMalformed)
		}
		for _, r := range fracPart {
			if r < '0' || r > '9' {
				return Amount{}, fmt.Errorf("%w: non-digit in fractional part", ErrMalformed)
			}
		}
		padded := fracPart + strings.Repeat("0", 8-len(fracPart))
		frac, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return Amount{}, fmt.Errorf("%w: bad fractional part: %v", ErrMalformed, err)
		}
	}
	return Amount{Currency: currency, Value: value, Frac: frac}, nil
}

// String renders the canonical form, trimming trailing fractional zeros.
func (a Amount) String() string {
	if a.Frac == 0 {
		return fmt.Sprintf("%s:%d", a.Currency, a.Value)
	}
	digits := fmt.Sprintf("%08d", a.Frac)
	digits = strings.TrimRight(digits, "0")
	return fmt.Sprintf("%s:%d.%s", a.Currency, a.Value, digits)
}

// IsZero reports whether the amount is exactly zero (currency-agnostic).
func (a Amount) IsZero() bool { return a.Value == 0 && a.Frac == 0 }

// Equal compares two amounts component-wise, including currency.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value == b.Value && a.Frac == b.Frac
}

// Cmp returns -1, 0 or 1 comparing a to b. Panics if currencies differ;
// compare the Currency fields first if that is not already guaranteed.
func (a Amount) Cmp(b Amount) int {
	if a.Currency != b.Currency {
		panic(ErrCurrencyMismatch)
	}
	if a.Value != b.Value {
		if a.Value < b.Value {
			return -1
		}
		return 1
	}
	if a.Frac != b.Frac {
		if a.Frac < b.Frac {
			return -1
		}
		return 1
	}
	return 0
}

// Add returns a+b. Fails on currency mismatch or overflow of the result.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}
	frac := a.Frac + b.Frac
	value := a.Value + b.Value
	if value < a.Value { // uint64 wraparound
		return Amount{}, ErrOverflow
	}
	value += frac / FracBase
	frac = frac % FracBase
	if value > MaxValue {
		return Amount{}, ErrOverflow
	}
	return Amount{Currency: a.Currency, Value: value, Frac: frac}, nil
}

// Sub returns a-b, requiring a >= b. Fails on currency mismatch or
// underflow; use Signed arithmetic for values that may go negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}
	if a.Cmp(b) < 0 {
		return Amount{}, ErrNegative
	}
	value := a.Value
	frac := a.Frac
	if frac < b.Frac {
		frac += FracBase
		value--
	}
	frac -= b.Frac
	value -= b.Value
	return Amount{Currency: a.Currency, Value: value, Frac: frac}, nil
}

// toTiny converts the amount to a single big.Int counted in units of
// 1e-8, for exact ratio arithmetic (see internal/store/conversion.go).
func (a Amount) toTiny() *big.Int {
	v := new(big.Int).SetUint64(a.Value)
	v.Mul(v, big.NewInt(FracBase))
	v.Add(v, new(big.Int).SetUint64(a.Frac))
	return v
}

// ToTiny exposes toTiny for packages that need to do their own big.Int
// arithmetic on amounts, such as fiat conversion rounding.
func (a Amount) ToTiny() *big.Int { return a.toTiny() }

// FromTiny rebuilds an Amount from a non-negative tiny-unit count.
func FromTiny(currency string, tiny *big.Int) (Amount, error) {
	if tiny.Sign() < 0 {
		return Amount{}, ErrNegative
	}
	base := big.NewInt(FracBase)
	value := new(big.Int)
	frac := new(big.Int)
	value.DivMod(tiny, base, frac)
	if !value.IsUint64() || value.Uint64() > MaxValue {
		return Amount{}, ErrOverflow
	}
	return New(currency, value.Uint64(), frac.Uint64())
}

// MulDiv computes floor(a * num / den) as an Amount in a's currency, using
// a 128-bit-equivalent big.Int intermediate so the multiplication cannot
// overflow before the division, per spec's money-arithmetic note.
func (a Amount) MulDiv(num, den int64) (Amount, error) {
	if den == 0 {
		return Amount{}, fmt.Errorf("%w: division by zero", ErrMalformed)
	}
	tiny := a.toTiny()
	tiny.Mul(tiny, big.NewInt(num))
	tiny.Div(tiny, big.NewInt(den))
	return FromTiny(a.Currency, tiny)
}

// Signed pairs an Amount with a sign flag, matching the data model's
// (magnitude, has_debt) balance representation.
type Signed struct {
	Amount  Amount
	HasDebt bool
}

// SignedZero is a zero, non-debt balance in the given currency.
func SignedZero(currency string) Signed { return Signed{Amount: Zero(currency)} }

// Apply applies a credit (positive) or debit (negative, via debit=true) to a
// signed balance, returning the new signed balance.
func (s Signed) Apply(delta Amount, debit bool) (Signed, error) {
	if debit {
		return s.applySigned(delta, true)
	}
	return s.applySigned(delta, false)
}

func (s Signed) applySigned(delta Amount, debit bool) (Signed, error) {
	// Represent s as a signed tiny-unit integer and delta likewise, then
	// renormalize into (magnitude, has_debt).
	mag := s.Amount.toTiny()
	if s.HasDebt {
		mag.Neg(mag)
	}
	d := delta.toTiny()
	if debit {
		d.Neg(d)
	}
	mag.Add(mag, d)

	hasDebt := mag.Sign() < 0
	if hasDebt {
		mag.Neg(mag)
	}
	amt, err := FromTiny(s.Amount.Currency, mag)
	if err != nil {
		return Signed{}, err
	}
	return Signed{Amount: amt, HasDebt: hasDebt}, nil
}

// WithinDebitLimit reports whether this signed balance respects a debit
// ceiling: has_debt=false is always fine; has_debt=true requires
// magnitude <= threshold.
func (s Signed) WithinDebitLimit(threshold Amount) bool {
	if !s.HasDebt {
		return true
	}
	if s.Amount.Currency != threshold.Currency {
		return false
	}
	return s.Amount.Cmp(threshold) <= 0
}
