package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
)

// CreateWithdrawal implements POST /accounts/{USERNAME}/withdrawals.
func (h *Handlers) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.WithdrawalCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeTalerError(w, err)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	id, err := h.st.CreateWithdrawal(ctx, login, amount)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WithdrawalCreateResponse{
		WithdrawalID:     id.String(),
		TalerWithdrawURI: "taler://withdraw/" + h.cfg.BaseURL + "/" + id.String(),
	})
}

// GetWithdrawal implements GET /withdrawals/{WID} (Integration API).
func (h *Handlers) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "WID"))
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	wd, err := h.st.GetWithdrawal(ctx, id)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	resp := domain.WithdrawalStatus{
		WithdrawalID: wd.ID.String(), Amount: wd.Amount.String(),
		Aborted:   wd.State == domain.WithdrawalAborted,
		Confirmed: wd.State == domain.WithdrawalConfirmed,
		Selected:  wd.State == domain.WithdrawalSelected || wd.State == domain.WithdrawalConfirmed,
	}
	if wd.SelectedExchange != "" {
		resp.SelectedExchange = wd.SelectedExchange
	}
	if len(wd.ReservePub) > 0 {
		resp.ReservePub = hex.EncodeToString(wd.ReservePub)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SelectWithdrawal implements POST /withdrawals/{WID}/selected_details.
func (h *Handlers) SelectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "WID"))
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	var req domain.WithdrawalSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	reservePub, err := hex.DecodeString(req.ReservePub)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.SelectWithdrawal(ctx, id, req.SelectedExchange, reservePub); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AbortWithdrawal implements POST /withdrawals/{WID}/abort.
func (h *Handlers) AbortWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "WID"))
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.AbortWithdrawal(ctx, id); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmWithdrawal implements POST /withdrawals/{WID}/confirm. The route
// carries no USERNAME segment, so ownership is established by looking up
// the withdrawal first and authenticating against its owning login.
func (h *Handlers) ConfirmWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "WID"))
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()

	wd, err := h.st.GetWithdrawal(ctx, id)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	if _, err := h.authenticate(r, wd.Login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}

	res, err := h.st.ConfirmWithdrawal(ctx, id)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	if !res.Confirmed {
		if err := h.st.SendChallenge(ctx, res.ChallengeID); err != nil {
			h.log.WithError(err).Warn("withdrawal TAN dispatch failed")
		}
		writeJSON(w, http.StatusAccepted, domain.TanTransmission{ChallengeID: res.ChallengeID, TanChannel: res.TanChannel})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
