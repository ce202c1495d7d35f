package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
)

// CreateCashout implements POST /accounts/{USERNAME}/cashouts: computes the
// fiat credit, records the cashout without moving funds, and raises a TAN
// challenge; the account is debited once that challenge is solved.
func (h *Handlers) CreateCashout(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.CashoutCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	debit, err := money.Parse(req.AmountDebit)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	credit, err := money.Parse(req.AmountCredit)
	if err != nil {
		writeTalerError(w, err)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	expectedCredit, err := h.st.QuoteCashout(ctx, debit)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	if !credit.Equal(expectedCredit) {
		writeTalerError(w, store.ErrCashoutCreditMismatch)
		return
	}

	res, err := h.st.CreateCashout(ctx, store.CreateCashoutRequest{
		Login: login, RequestUID: req.RequestUID, Debit: debit, Subject: req.Subject,
	})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	if err := h.st.SendChallenge(ctx, res.ChallengeID); err != nil {
		h.log.WithError(err).Warn("cashout TAN dispatch failed")
	}
	writeJSON(w, http.StatusAccepted, domain.CashoutCreateResponse{CashoutID: res.CashoutID})
}

// GetCashout implements GET /accounts/{USERNAME}/cashouts/{CID}.
func (h *Handlers) GetCashout(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "CID"), 10, 64)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	c, err := h.st.GetCashout(ctx, login, id)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CashoutStatusResponse{
		CashoutID: c.ID, AmountDebit: c.Debit.String(), AmountCredit: c.Credit.String(),
		Subject: c.Subject, CreationTime: c.CreatedAt, Status: c.State,
	})
}

// ListCashouts implements GET /accounts/{USERNAME}/cashouts.
func (h *Handlers) ListCashouts(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	list, err := h.st.ListCashouts(ctx, login)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	resp := domain.CashoutsListResponse{}
	for _, c := range list {
		resp.Cashouts = append(resp.Cashouts, domain.CashoutStatusResponse{
			CashoutID: c.ID, AmountDebit: c.Debit.String(), AmountCredit: c.Credit.String(),
			Subject: c.Subject, CreationTime: c.CreatedAt, Status: c.State,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AbortCashout implements POST /accounts/{USERNAME}/cashouts/{CID}/abort.
func (h *Handlers) AbortCashout(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "CID"), 10, 64)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.AbortCashout(ctx, id); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SolveChallenge implements POST /accounts/{USERNAME}/challenge/{CHALLENGE_ID}
//: verifies the TAN and finalizes whatever operation it gates.
func (h *Handlers) SolveChallenge(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "CHALLENGE_ID"), 10, 64)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	var req domain.ChallengeConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.SolveChallenge(ctx, id, req.TAN); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendChallenge implements POST /accounts/{USERNAME}/challenge/{CHALLENGE_ID}/resend.
func (h *Handlers) SendChallenge(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "CHALLENGE_ID"), 10, 64)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.SendChallenge(ctx, id); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
