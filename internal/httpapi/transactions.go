package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/payto"
	"github.com/libeufin-go/corebank/internal/store"
)

// CreateTransaction implements POST /accounts/{USERNAME}/transactions: a
// local transfer from the path account to whatever local account the
// supplied payto URI resolves to.
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	p, err := payto.Parse(req.PaytoURI)
	if err != nil {
		writeTalerError(w, err)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	creditLogin, err := h.st.ResolveLocalLogin(ctx, p)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	rowID, err := h.st.CreateTransaction(ctx, store.CreateTransactionRequest{
		DebitAccount: login, CreditAccount: creditLogin, Amount: amount, Subject: req.Subject, RequestUID: req.RequestUID,
	})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CreateTransactionResponse{RowID: rowID})
}

// GetTransaction implements GET /accounts/{USERNAME}/transactions/{T_ID}.
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	rowID, err := strconv.ParseInt(chi.URLParam(r, "T_ID"), 10, 64)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	t, err := h.st.GetTransaction(ctx, login, rowID)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.BankAccountTransactionInfo{
		RowID: t.RowID, Amount: t.Amount.String(), Subject: t.Subject, Direction: t.Direction,
		CounterpartyPaytoURI: t.Counterparty, Timestamp: t.HappenedAt,
	})
}

// History implements GET /accounts/{USERNAME}/transactions, including the
// long_poll_ms parameter.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	longPollMs := queryInt(r, "long_poll_ms", 0)
	ctx, cancel := requestCtx(r, time.Duration(longPollMs)*time.Millisecond)
	defer cancel()

	rows, err := h.st.History(ctx, store.HistoryParams{
		Login: login, Start: queryInt(r, "start", 0), Delta: int(queryInt(r, "delta", 20)), LongPollMs: int(longPollMs),
	})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	resp := domain.TransactionsHistoryResponse{}
	for _, t := range rows {
		resp.Transactions = append(resp.Transactions, domain.BankAccountTransactionInfo{
			RowID: t.RowID, Amount: t.Amount.String(), Subject: t.Subject, Direction: t.Direction,
			CounterpartyPaytoURI: t.Counterparty, Timestamp: t.HappenedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
