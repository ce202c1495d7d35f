// Package httpapi exposes the Core Bank, Integration, Wire Gateway and
// Revenue APIs over HTTP: a decodeJSON/writeJSON/status-mapping handler
// pattern built on go-chi routing and the Taler error envelope.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/config"
	"github.com/libeufin-go/corebank/internal/domain"
	"github.com/libeufin-go/corebank/internal/store"
)

type Handlers struct {
	st   *store.Store
	gate *auth.Gate
	cfg  config.Config
	log  *logrus.Logger
}

func NewHandlers(st *store.Store, gate *auth.Gate, cfg config.Config, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.New()
	}
	return &Handlers{st: st, gate: gate, cfg: cfg, log: log}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestCtx bounds every handler's store call to a fixed budget. longPoll
// extends the budget for endpoints that block on notify.Hub.
func requestCtx(r *http.Request, longPoll time.Duration) (context.Context, func()) {
	d := 10 * time.Second
	if longPoll > d {
		d = longPoll + 5*time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

// authenticate enforces the USERNAME-ownership/admin-override rule shared
// by every account-scoped route: pathLogin empty means the
// route is not scoped to one account (admin listings, config).
func (h *Handlers) authenticate(r *http.Request, pathLogin string, scope domain.TokenScope, requireAdmin bool) (auth.Identity, error) {
	return h.gate.Authenticate(r.Context(), r, auth.Policy{
		RequiredScope: scope,
		PathLogin:     pathLogin,
		AllowAdmin:    true,
		RequireAdmin:  requireAdmin,
	})
}

// optionalAdmin authenticates the caller if credentials are present, used
// by registration to let an authenticated admin set admin-only fields
// while still allowing anonymous self-registration.
func (h *Handlers) optionalAdmin(r *http.Request) bool {
	if r.Header.Get("Authorization") == "" {
		return false
	}
	id, err := h.gate.Authenticate(r.Context(), r, auth.Policy{RequiredScope: domain.ScopeReadWrite})
	return err == nil && id.IsAdmin
}

// splitBearer separates the scheme from a raw Authorization header value,
// returning ok=false unless the scheme is exactly "Bearer".
func splitBearer(header string) (scheme, rest string, ok bool) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", "", false
	}
	return scheme, rest, true
}

func queryInt(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
