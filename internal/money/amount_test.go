package money_test

import (
	"testing"

	"github.com/libeufin-go/corebank/internal/money"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{
		"KUDOS:0",
		"KUDOS:100",
		"KUDOS:5.5",
		"EUR:1.00000001",
		"EUR:2",
	}
	for _, c := range cases {
		a, err := money.Parse(c)
		require.NoError(t, err)
		require.Equal(t, c, a.String())
	}
}

func TestParseTrimsTrailingZerosOnFormat(t *testing.T) {
	a, err := money.Parse("KUDOS:5.50")
	require.NoError(t, err)
	require.Equal(t, "KUDOS:5.5", a.String())
}

func TestParseRejectsBadCurrency(t *testing.T) {
	_, err := money.Parse("kudos:1")
	require.Error(t, err)
	_, err = money.Parse("TOOLONGCURRENCY:1")
	require.Error(t, err)
}

func TestAddOverflowNormalizesFrac(t *testing.T) {
	a, _ := money.New("KUDOS", 1, 60_000_000)
	b, _ := money.New("KUDOS", 1, 60_000_000)
	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, uint64(3), sum.Value)
	require.Equal(t, uint64(20_000_000), sum.Frac)
}

func TestAddCurrencyMismatch(t *testing.T) {
	a, _ := money.New("KUDOS", 1, 0)
	b, _ := money.New("EUR", 1, 0)
	_, err := a.Add(b)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestSubUnderflow(t *testing.T) {
	a, _ := money.New("KUDOS", 1, 0)
	b, _ := money.New("KUDOS", 2, 0)
	_, err := a.Sub(b)
	require.ErrorIs(t, err, money.ErrNegative)
}

func TestSignedApplyDebitCrossesZero(t *testing.T) {
	bal := money.SignedZero("KUDOS")
	ten, _ := money.New("KUDOS", 10, 0)
	bal, err := bal.Apply(ten, true) // debit 10 from 0
	require.NoError(t, err)
	require.True(t, bal.HasDebt)
	require.Equal(t, ten, bal.Amount)

	bal, err = bal.Apply(ten, false) // credit 10 back
	require.NoError(t, err)
	require.False(t, bal.HasDebt)
	require.True(t, bal.Amount.IsZero())
}

func TestWithinDebitLimit(t *testing.T) {
	threshold, _ := money.New("KUDOS", 10, 0)
	over, _ := money.New("KUDOS", 11, 0)
	within := money.Signed{Amount: threshold, HasDebt: true}
	require.True(t, within.WithinDebitLimit(threshold))

	beyond := money.Signed{Amount: over, HasDebt: true}
	require.False(t, beyond.WithinDebitLimit(threshold))

	notDebt := money.Signed{Amount: over, HasDebt: false}
	require.True(t, notDebt.WithinDebitLimit(threshold))
}

func TestMulDivTruncates(t *testing.T) {
	a, _ := money.New("EUR", 10, 0)
	// 10 * 1 / 3 = 3.33333333...
	out, err := a.MulDiv(1, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), out.Value)
	require.Equal(t, uint64(33_333_333), out.Frac)
}
