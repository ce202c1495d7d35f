package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/payto"
	"github.com/libeufin-go/corebank/internal/store"
	"github.com/libeufin-go/corebank/internal/tan"
)

// decodeJSON enforces strict decoding: unknown fields are a client error,
// not silently ignored.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTalerError renders the canonical {code, hint?, detail?} envelope
// and maps err to both an HTTP status and a TalerErrorCode.
func writeTalerError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, domain.ErrorEnvelope{Code: code, Hint: err.Error()})
}

func classify(err error) (int, domain.TalerErrorCode) {
	switch {
	case err == nil:
		return http.StatusOK, domain.ErrNone

	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, domain.ErrGenericParameterMalformed
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, domain.ErrGenericNotFound
	case errors.Is(err, store.ErrIdempotencyConflict):
		return http.StatusConflict, domain.ErrBankTransactionRequestUIDReused
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, domain.ErrGenericBadRequest
	case errors.Is(err, store.ErrSoft):
		return http.StatusServiceUnavailable, domain.ErrBankSoftException

	case errors.Is(err, store.ErrBalanceInsufficient):
		return http.StatusConflict, domain.ErrBankUnallowedDebit
	case errors.Is(err, store.ErrAdminCreditorDisallowed):
		return http.StatusConflict, domain.ErrBankAdminCreditorDisallowed
	case errors.Is(err, store.ErrLoginReuse):
		return http.StatusConflict, domain.ErrBankLoginReuse
	case errors.Is(err, store.ErrPaytoReuse):
		return http.StatusConflict, domain.ErrBankPaytoUriReuse
	case errors.Is(err, store.ErrReservedUsername):
		return http.StatusConflict, domain.ErrBankReservedUsername
	case errors.Is(err, store.ErrNonAdminFieldForbidden):
		return http.StatusForbidden, domain.ErrBankNonAdminPatchRefused
	case errors.Is(err, store.ErrBonusBalanceInsufficient):
		return http.StatusConflict, domain.ErrBankBonusBalanceInsufficient
	case errors.Is(err, store.ErrOldPasswordMismatch):
		return http.StatusForbidden, domain.ErrBankOldPasswordMismatch
	case errors.Is(err, store.ErrAccountBalanceNotZero):
		return http.StatusConflict, domain.ErrBankAccountBalanceNotZero
	case errors.Is(err, store.ErrAccountIsNotExchange):
		return http.StatusConflict, domain.ErrBankAccountIsNotExchange

	case errors.Is(err, store.ErrWithdrawalWrongState):
		return http.StatusConflict, domain.ErrBankConfirmAbortConflict
	case errors.Is(err, store.ErrReservePubReused), errors.Is(err, store.ErrReservePubAlreadyUsed):
		return http.StatusConflict, domain.ErrBankDuplicateReservePub
	case errors.Is(err, store.ErrWireTransferUIDReused):
		return http.StatusConflict, domain.ErrBankWireTransferRequestUIDReused

	case errors.Is(err, store.ErrCashoutBelowMinimum):
		return http.StatusBadRequest, domain.ErrBankBadConversion
	case errors.Is(err, store.ErrCashoutWrongState):
		return http.StatusConflict, domain.ErrBankConfirmAbortConflict
	case errors.Is(err, store.ErrNoTanChannel):
		return http.StatusBadRequest, domain.ErrBankTanRequired
	case errors.Is(err, store.ErrCashoutCreditMismatch):
		return http.StatusConflict, domain.ErrBankBadConversion
	case errors.Is(err, store.ErrConversionDisabled):
		return http.StatusNotFound, domain.ErrBankConversionDisabled

	case errors.Is(err, store.ErrChallengeExpired):
		return http.StatusGone, domain.ErrBankTanChallengeExpired
	case errors.Is(err, store.ErrChallengeCodeMismatch):
		return http.StatusForbidden, domain.ErrBankTanUnknown
	case errors.Is(err, store.ErrChallengeRetriesExceeded):
		return http.StatusForbidden, domain.ErrBankTanRateLimited
	case errors.Is(err, store.ErrChallengeRetransmitTooSoon):
		return http.StatusConflict, domain.ErrBankTanRateLimited
	case errors.Is(err, tan.ErrScriptFailed):
		return http.StatusBadGateway, domain.ErrBankTanChannelScriptFailed

	case errors.Is(err, payto.ErrMalformed), errors.Is(err, payto.ErrUnsupported), errors.Is(err, payto.ErrBadChecksum):
		return http.StatusBadRequest, domain.ErrGenericParameterMalformed
	case errors.Is(err, money.ErrMalformed), errors.Is(err, money.ErrCurrencyMismatch), errors.Is(err, money.ErrOverflow), errors.Is(err, money.ErrNegative):
		return http.StatusBadRequest, domain.ErrGenericParameterMalformed

	case errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrBadScheme):
		return http.StatusUnauthorized, domain.ErrGenericUnauthorized
	case errors.Is(err, auth.ErrUnknownAccount), errors.Is(err, auth.ErrBadPassword), errors.Is(err, auth.ErrUnknownToken), errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, domain.ErrGenericUnauthorized
	case errors.Is(err, auth.ErrScopeInsufficient):
		return http.StatusForbidden, domain.ErrGenericForbidden
	case errors.Is(err, auth.ErrCrossUserForbidden):
		return http.StatusForbidden, domain.ErrGenericForbidden

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrGenericInternalInvariant
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, domain.ErrGenericInternalInvariant

	default:
		return http.StatusInternalServerError, domain.ErrGenericInternalInvariant
	}
}
