package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"
)

// Router wires the Core Bank, Integration, Wire Gateway and Revenue APIs
// onto a chi mux. A body-size cap and a semaphore-based concurrency limit
// sit in front of every route so a saturated database fails fast instead
// of queueing requests without bound.
func Router(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withBodyLimit(h.cfg.MaxBodyBytes))
	r.Use(withConcurrencyLimit(h.cfg.MaxInflightRequests))

	r.Get("/healthz", h.Healthz)
	r.Get("/config", h.Config)

	r.Get("/public-accounts", h.ListPublicAccounts)

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.RegisterAccount)
		r.Get("/", h.ListAdminAccounts)

		r.Route("/{USERNAME}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Patch("/", h.PatchAccount)
			r.Delete("/", h.DeleteAccount)
			r.Patch("/auth", h.PatchAccountAuth)

			r.Post("/token", h.CreateToken)
			r.Delete("/token", h.DeleteToken)

			r.Post("/transactions", h.CreateTransaction)
			r.Get("/transactions", h.History)
			r.Get("/transactions/{T_ID}", h.GetTransaction)

			r.Post("/withdrawals", h.CreateWithdrawal)

			r.Post("/cashouts", h.CreateCashout)
			r.Get("/cashouts", h.ListCashouts)
			r.Get("/cashouts/{CID}", h.GetCashout)
			r.Post("/cashouts/{CID}/abort", h.AbortCashout)

			r.Post("/challenge/{CHALLENGE_ID}", h.SolveChallenge)
			r.Post("/challenge/{CHALLENGE_ID}/resend", h.SendChallenge)

			r.Get("/taler-wire-gateway/config", h.WireGatewayConfig)
			r.Post("/taler-wire-gateway/transfer", h.Transfer)
			r.Post("/taler-wire-gateway/admin/add-incoming", h.AddIncoming)
			r.Get("/taler-wire-gateway/history/outgoing", h.OutgoingHistory)
			r.Get("/taler-wire-gateway/history/incoming", h.IncomingHistory)
		})
	})

	r.Route("/withdrawals/{WID}", func(r chi.Router) {
		r.Get("/", h.GetWithdrawal)
		r.Post("/selected_details", h.SelectWithdrawal)
		r.Post("/abort", h.AbortWithdrawal)
		r.Post("/confirm", h.ConfirmWithdrawal)
	})

	r.Route("/conversion-info", func(r chi.Router) {
		r.Get("/config", h.ConversionConfig)
		r.Patch("/config", h.SetConversionRate)
		r.Get("/cashout-rate", h.ConversionQuoteCashout)
		r.Get("/cashin-rate", h.ConversionQuoteCashin)
	})

	return r
}

// withBodyLimit caps request bodies so a malicious or buggy client cannot
// force unbounded allocation before the handler ever runs.
func withBodyLimit(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = 4096
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

// withConcurrencyLimit uses golang.org/x/sync/semaphore to fail fast with
// 503 instead of queueing once the database's effective capacity is
// exceeded.
func withConcurrencyLimit(max int) func(http.Handler) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := semaphore.NewWeighted(int64(max))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sem.TryAcquire(1) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server busy"})
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
