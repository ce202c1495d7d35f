package payto_test

import (
	"testing"

	"github.com/libeufin-go/corebank/internal/payto"
	"github.com/stretchr/testify/require"
)

func TestParseIBAN(t *testing.T) {
	p, err := payto.Parse("payto://iban/CH9300762011623852957?amount=KUDOS:5&message=hi")
	require.NoError(t, err)
	require.Equal(t, payto.KindIBAN, p.Kind)
	require.Equal(t, "CH9300762011623852957", p.IBAN)
	require.Equal(t, "KUDOS:5", p.Amount)
	require.Equal(t, "payto://iban/CH9300762011623852957", p.Canonical())
}

func TestParseIBANWithBIC(t *testing.T) {
	p, err := payto.Parse("payto://iban/SOMEBIC/CH9300762011623852957")
	require.NoError(t, err)
	require.Equal(t, "SOMEBIC", p.BIC)
	require.Equal(t, "payto://iban/SOMEBIC/CH9300762011623852957", p.Canonical())
}

func TestParseXTalerBank(t *testing.T) {
	p, err := payto.Parse("payto://x-taler-bank/bank.example.com/alice")
	require.NoError(t, err)
	require.Equal(t, payto.KindXTalerBank, p.Kind)
	require.Equal(t, "bank.example.com", p.Host)
	require.Equal(t, "alice", p.Username)
}

func TestParseRejectsBadChecksum(t *testing.T) {
	_, err := payto.Parse("payto://iban/CH0000000000000000000")
	require.ErrorIs(t, err, payto.ErrBadChecksum)
}

func TestParseRejectsUnsupportedAuthority(t *testing.T) {
	_, err := payto.Parse("payto://bic/FOO")
	require.ErrorIs(t, err, payto.ErrUnsupported)
}

func TestCanonicalEquality(t *testing.T) {
	a, err := payto.Parse("payto://iban/CH93-0076-2011-6238-5295-7")
	require.NoError(t, err)
	b, err := payto.Parse("payto://iban/ch9300762011623852957?amount=KUDOS:1")
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestValidateIBANRejectsGarbage(t *testing.T) {
	require.False(t, payto.ValidateIBAN("NOTANIBAN"))
}

func TestGenerateIBANRoundTrips(t *testing.T) {
	iban, err := payto.GenerateIBAN("CH", "93000000000000000")
	require.NoError(t, err)
	require.True(t, payto.ValidateIBAN(iban))
}
