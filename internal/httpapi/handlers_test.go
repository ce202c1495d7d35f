package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   domain.TalerErrorCode
	}{
		{"validation", store.ErrValidation, http.StatusBadRequest, domain.ErrGenericParameterMalformed},
		{"notfound", store.ErrNotFound, http.StatusNotFound, domain.ErrGenericNotFound},
		{"idempotency", store.ErrIdempotencyConflict, http.StatusConflict, domain.ErrBankTransactionRequestUIDReused},
		{"balance", store.ErrBalanceInsufficient, http.StatusConflict, domain.ErrBankUnallowedDebit},
		{"login-reuse", store.ErrLoginReuse, http.StatusConflict, domain.ErrBankLoginReuse},
		{"challenge-expired", store.ErrChallengeExpired, http.StatusGone, domain.ErrBankTanChallengeExpired},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, domain.ErrGenericInternalInvariant},
		{"canceled", context.Canceled, http.StatusRequestTimeout, domain.ErrGenericInternalInvariant},
		{"other", errors.New("boom"), http.StatusInternalServerError, domain.ErrGenericInternalInvariant},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}

func TestSplitBearer(t *testing.T) {
	_, rest, ok := splitBearer("Bearer secret-token:ABC")
	assert.True(t, ok)
	assert.Equal(t, "secret-token:ABC", rest)

	_, _, ok = splitBearer("Basic Zm9vOmJhcg==")
	assert.False(t, ok)

	_, _, ok = splitBearer("")
	assert.False(t, ok)
}

func TestParseRatio(t *testing.T) {
	num, den, err := parseRatio("1:2")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), num)
	assert.Equal(t, int64(2), den)

	_, _, err = parseRatio("bad")
	assert.Error(t, err)

	_, _, err = parseRatio("1:0")
	assert.Error(t, err)
}
