package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
)

// WireGatewayConfig implements GET /accounts/{USERNAME}/taler-wire-gateway/config.
func (h *Handlers) WireGatewayConfig(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WireGatewayConfigResponse{Currency: h.cfg.Currency})
}

// Transfer implements POST .../taler-wire-gateway/transfer:
// the exchange pays out to an arbitrary local payto URI.
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.TransferRequest
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
	rowID, err := h.st.WireTransfer(ctx, login, store.WireTransferRequest{
		RequestUID: req.RequestUID, Amount: amount, ExchangeBaseURL: req.ExchangeBaseURL,
		WTID: req.WTID, CreditPaytoURI: req.CreditAccount,
	})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TransferResponse{RowID: rowID})
}

// AddIncoming implements POST .../taler-wire-gateway/admin/add-incoming: a
// reserve top-up keyed by its one-time reserve public key.
func (h *Handlers) AddIncoming(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.AddIncomingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	reservePub, err := hex.DecodeString(req.ReservePub)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rowID, err := h.st.AddIncoming(ctx, login, store.AddIncomingRequest{
		Amount: amount, ReservePub: reservePub, DebitPaytoURI: req.DebitAccount,
	})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.AddIncomingResponse{RowID: rowID})
}

// OutgoingHistory implements GET .../taler-wire-gateway/history/outgoing.
func (h *Handlers) OutgoingHistory(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rows, err := h.st.OutgoingHistory(ctx, login, queryInt(r, "start", 0), int(queryInt(r, "delta", 20)))
	if err != nil {
		writeTalerError(w, err)
		return
	}
	resp := domain.OutgoingHistoryResponse{}
	for _, e := range rows {
		resp.OutgoingTransactions = append(resp.OutgoingTransactions, domain.OutgoingHistoryEntry{
			RowID: e.RowID, DateTime: e.At, Amount: e.Amount.String(), CreditAccount: e.CreditLogin,
			WTID: e.WTID, ExchangeBaseURL: e.ExchangeBaseURL,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// IncomingHistory implements GET .../taler-wire-gateway/history/incoming.
func (h *Handlers) IncomingHistory(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rows, err := h.st.IncomingHistory(ctx, login, queryInt(r, "start", 0), int(queryInt(r, "delta", 20)))
	if err != nil {
		writeTalerError(w, err)
		return
	}
	resp := domain.IncomingHistoryResponse{}
	for _, e := range rows {
		resp.IncomingTransactions = append(resp.IncomingTransactions, domain.IncomingHistoryEntry{
			RowID: e.RowID, DateTime: e.At, Amount: e.Amount.String(), DebitAccount: e.DebitLogin,
			ReservePub: hex.EncodeToString(e.ReservePub),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
