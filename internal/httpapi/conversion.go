package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
)

// ConversionConfig implements GET /conversion-info/config:
// the currently configured cashin/cashout ratios, fees and rounding rule.
func (h *Handlers) ConversionConfig(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AllowConversion {
		writeTalerError(w, store.ErrConversionDisabled)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rate, err := h.st.GetConversionRate(ctx)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionConfigResponse(rate))
}

func conversionConfigResponse(rate store.ConversionRate) domain.ConversionConfigResponse {
	return domain.ConversionConfigResponse{
		CashinRatio:  ratioString(rate.CashinRatioNum, rate.CashinRatioDen),
		CashoutRatio: ratioString(rate.CashoutRatioNum, rate.CashoutRatioDen),
		CashinFee:    rate.CashinFee.String(),
		CashoutFee:   rate.CashoutFee.String(),
		CashinMin:    rate.CashinMin.String(),
		CashoutMin:   rate.CashoutMin.String(),
		CashinTiny:   rate.CashinTiny.String(),
		CashoutTiny:  rate.CashoutTiny.String(),
		RoundingMode: rate.RoundingMode,
	}
}

// ConversionQuoteCashout implements GET /conversion-info/cashout-rate: a
// read-only preview of what a given debit amount would convert to.
func (h *Handlers) ConversionQuoteCashout(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AllowConversion {
		writeTalerError(w, store.ErrConversionDisabled)
		return
	}
	debit, err := money.Parse(r.URL.Query().Get("amount_debit"))
	if err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rate, err := h.st.GetConversionRate(ctx)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	credit, err := store.ConvertCashout(rate, debit)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ConversionRateQuoteResponse{AmountDebit: debit.String(), AmountCredit: credit.String()})
}

// ConversionQuoteCashin implements GET /conversion-info/cashin-rate.
func (h *Handlers) ConversionQuoteCashin(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AllowConversion {
		writeTalerError(w, store.ErrConversionDisabled)
		return
	}
	incoming, err := money.Parse(r.URL.Query().Get("amount_debit"))
	if err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	rate, err := h.st.GetConversionRate(ctx)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	credit, err := store.ConvertCashin(rate, incoming)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ConversionRateQuoteResponse{AmountDebit: incoming.String(), AmountCredit: credit.String()})
}

// SetConversionRate implements the admin-only PATCH /conversion-info/config.
func (h *Handlers) SetConversionRate(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r, "", domain.ScopeReadWrite, true); err != nil {
		writeTalerError(w, err)
		return
	}
	var req domain.ConversionRateUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeTalerError(w, store.ErrValidation)
		return
	}
	rate, err := parseConversionRate(req)
	if err != nil {
		writeTalerError(w, err)
		return
	}
	ctx, cancel := requestCtx(r, 0)
	defer cancel()
	if err := h.st.SetConversionRate(ctx, rate); err != nil {
		writeTalerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseConversionRate(req domain.ConversionRateUpdateRequest) (store.ConversionRate, error) {
	var rate store.ConversionRate
	fields := []struct {
		s   string
		out *money.Amount
	}{
		{req.CashinFee, &rate.CashinFee}, {req.CashoutFee, &rate.CashoutFee},
		{req.CashinMin, &rate.CashinMin}, {req.CashoutMin, &rate.CashoutMin},
		{req.CashinTiny, &rate.CashinTiny}, {req.CashoutTiny, &rate.CashoutTiny},
	}
	for _, f := range fields {
		a, err := money.Parse(f.s)
		if err != nil {
			return store.ConversionRate{}, err
		}
		*f.out = a
	}
	rate.FiatCurrency = rate.CashinMin.Currency
	rate.RoundingMode = req.RoundingMode

	var err error
	rate.CashinRatioNum, rate.CashinRatioDen, err = parseRatio(req.CashinRatio)
	if err != nil {
		return store.ConversionRate{}, err
	}
	rate.CashoutRatioNum, rate.CashoutRatioDen, err = parseRatio(req.CashoutRatio)
	if err != nil {
		return store.ConversionRate{}, err
	}
	return rate, nil
}

// ratioString/parseRatio render a num/den pair as "num:den" on the wire.
func ratioString(num, den int64) string {
	return strconv.FormatInt(num, 10) + ":" + strconv.FormatInt(den, 10)
}

func parseRatio(s string) (num, den int64, err error) {
	numStr, denStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, store.ErrValidation
	}
	num, err = strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, 0, store.ErrValidation
	}
	den, err = strconv.ParseInt(denStr, 10, 64)
	if err != nil || den == 0 {
		return 0, 0, store.ErrValidation
	}
	return num, den, nil
}
