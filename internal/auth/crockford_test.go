package auth_test

import (
	"testing"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestCrockfordRoundTrip(t *testing.T) {
	raw, err := auth.NewTokenBytes()
	require.NoError(t, err)

	encoded := auth.EncodeCrockford(raw)
	decoded, err := auth.DecodeCrockford(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestTokenWireFormRoundTrip(t *testing.T) {
	raw, err := auth.NewTokenBytes()
	require.NoError(t, err)

	wire := auth.EncodeToken(raw)
	require.Contains(t, wire, auth.TokenSecretPrefix)

	decoded, err := auth.DecodeToken(wire)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestDecodeTokenRejectsMissingPrefix(t *testing.T) {
	_, err := auth.DecodeToken("not-a-token")
	require.ErrorIs(t, err, auth.ErrBadEncoding)
}

func TestDecodeCrockfordToleratesAmbiguousGlyphs(t *testing.T) {
	a, err := auth.DecodeCrockford("O")
	require.NoError(t, err)
	b, err := auth.DecodeCrockford("0")
	require.NoError(t, err)
	require.Equal(t, b, a)
}
