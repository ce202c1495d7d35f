package auth_test

import (
	"testing"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	// Cheap params so the unit test stays fast.
	params := auth.PasswordParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, err := auth.HashPassword("correct horse", params)
	require.NoError(t, err)

	ok, err := auth.VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = auth.VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPasswordProducesDistinctSalts(t *testing.T) {
	params := auth.PasswordParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	a, err := auth.HashPassword("same password", params)
	require.NoError(t, err)
	b, err := auth.HashPassword("same password", params)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
