package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
)

// Config implements GET /config: unauthenticated bank
// metadata every wallet needs before it can do anything else.
func (h *Handlers) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.ConfigResponse{
		BankName: h.cfg.BankName,
		BaseURL:  h.cfg.BaseURL,
		Currency: h.cfg.Currency,
		CurrencySpecification: domain.CurrencySpecification{
			Name:                      h.cfg.Currency,
			NumFractionalInputDigits:  2,
			NumFractionalNormalDigits: 2,
		},
		AllowConversion:          h.cfg.AllowConversion,
		AllowRegistrations:       h.cfg.AllowRegistrations,
		AllowDeletions:           h.cfg.AllowDeletions,
		DefaultDebitThreshold:    h.cfg.DefaultDebitThreshold,
		SupportedTanChannels:     h.cfg.SupportedTanChannels,
		AllowEditName:            h.cfg.AllowEditName,
		AllowEditCashoutPaytoURI: h.cfg.AllowEditCashoutPaytoURI,
		WireType:                 "iban",
	})
}

// RegisterAccount implements POST /accounts. An
// authenticated admin may set admin-only fields; anonymous self
// registration is allowed when the bank's policy permits it.
func (h *Handlers) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	isAdmin := h.optionalAdmin(r)

	storeReq := store.CreateAccountRequest{
		Login: req.Login, Password: req.Password, LegalName: req.Name,
		IsPublic: req.IsPublic, IsTalerExchange: req.IsTalerExchange,
		InternalPaytoURI: req.InternalPaytoURI, CashoutPaytoURI: req.CashoutPaytoURI,
		ContactEmail: req.ContactEmail, ContactPhone: req.ContactPhone, TanChannel: req.TanChannel,
	}
	if req.DebitThreshold != "" {
		a, err := money.Parse(req.DebitThreshold)
		if err != nil {
			writeTalerError(w, err)
			return
		}
		storeReq.DebitThreshold = &a
	}
	if req.MinCashout != "" {
		a, err := money.Parse(req.MinCashout)
		if err != nil {
			writeTalerError(w, err)
			return
		}
		storeReq.MinCashout = &a
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	res, err := h.st.CreateAccount(ctx, storeReq, isAdmin)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RegisterAccountResponse{InternalPaytoURI: res.InternalPaytoURI})
}

// GetAccount implements GET /accounts/{USERNAME}.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadOnly, false); err != nil {
		writeTalerError(w, err)
		return
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	acc, err := h.st.GetAccount(ctx, login)
	if err != nil {
		writeTalerError(w, err)
		return
	}

	resp := domain.AccountData{
		Login: acc.Login, Name: acc.LegalName, InternalPaytoURI: acc.InternalPaytoURI,
		CashoutPaytoURI: acc.CashoutPaytoURI, ContactEmail: acc.ContactEmail, ContactPhone: acc.ContactPhone,
		Balance:         domain.BalanceDTO{Amount: acc.Balance.Amount.String(), Credit: !acc.Balance.HasDebt},
		DebitThreshold:  acc.DebitThreshold.String(),
		IsPublic:        acc.IsPublic, IsTalerExchange: acc.IsTalerExchange, TanChannel: acc.TanChannel,
	}
	if acc.MinCashout != nil {
		resp.MinCashout = acc.MinCashout.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListPublicAccounts implements GET /public-accounts.
func (h *Handlers) ListPublicAccounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	accs, err := h.st.ListPublic(ctx, store.ListParams{LoginFilter: r.URL.Query().Get("filter_name")})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicAccountsResponse(accs))
}

// ListAdminAccounts implements GET /accounts (admin listing).
func (h *Handlers) ListAdminAccounts(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r, "", domain.ScopeReadOnly, true); err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	accs, err := h.st.ListAdmin(ctx, store.ListParams{LoginFilter: r.URL.Query().Get("filter_name")})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicAccountsResponse(accs))
}

func toPublicAccountsResponse(accs []store.Account) domain.PublicAccountsResponse {
	out := domain.PublicAccountsResponse{}
	for _, a := range accs {
		out.Accounts = append(out.Accounts, domain.PublicAccountEntry{Login: a.Login, Name: a.LegalName, InternalPaytoURI: a.InternalPaytoURI})
	}
	return out
}

// PatchAccount implements PATCH /accounts/{USERNAME}.
func (h *Handlers) PatchAccount(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	id, err := h.authenticate(r, login, domain.ScopeReadWrite, false)
	if err != nil {
		writeTalerError(w, err)
		return
	}

	var req domain.AccountPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}

	patch := store.AccountPatch{
		Name: req.Name, CashoutPaytoURI: req.CashoutPaytoURI, ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone, IsPublic: req.IsPublic, TanChannel: req.TanChannel,
		IsTalerExchange: req.IsTalerExchange,
	}
	if req.DebitThreshold.Set() {
		a, err := money.Parse(req.DebitThreshold.Value())
		if err != nil {
			writeTalerError(w, err)
			return
		}
		patch.DebitThreshold = domain.OptionOf(a)
	}
	if req.MinCashout.Set() {
		a, err := money.Parse(req.MinCashout.Value())
		if err != nil {
			writeTalerError(w, err)
			return
		}
		patch.MinCashout = domain.OptionOf(a)
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.PatchAccount(ctx, login, patch, id.IsAdmin); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatchAccountAuth implements PATCH /accounts/{USERNAME}/auth.
func (h *Handlers) PatchAccountAuth(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	id, err := h.authenticate(r, login, domain.ScopeReadWrite, false)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.AccountAuthPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.PatchPassword(ctx, login, req.NewPassword, req.OldPassword, id.IsAdmin); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount implements DELETE /accounts/{USERNAME}.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, true); err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.DeleteAccount(ctx, login); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateToken implements POST /accounts/{USERNAME}/token.
func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	id, err := h.authenticate(r, login, domain.ScopeReadWrite, false)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.TokenCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	dur := h.cfg.TokenDefaultTTL
	if req.Duration != nil {
		dur = time.Duration(*req.Duration) * time.Second
	}
	scope := req.Scope
	if scope == "" {
		scope = domain.ScopeReadWrite
	}

	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	res, err := h.st.CreateToken(ctx, store.CreateTokenRequest{Login: id.Login, Scope: scope, Duration: dur, Refreshable: req.Refreshable})
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenSuccessResponse{AccessToken: res.Secret, Expiration: res.ExpiresAt})
}

// DeleteToken implements DELETE /accounts/{USERNAME}/token: a bearer token
// may only delete itself, so the raw bytes come from the same header the
// gate just authenticated with.
func (h *Handlers) DeleteToken(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "USERNAME")
	if _, err := h.authenticate(r, login, domain.ScopeReadWrite, false); err != nil {
		writeTalerError(w, err)
		return
	}
	_, wire, ok := splitBearer(r.Header.Get("Authorization"))
	if !ok {
		writeTalerError(w, store.ErrValidation)
		return
	}
	raw, err := auth.DecodeToken(wire)
	if err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.DeleteToken(ctx, raw); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
