// Package httpapi exposes the REST surface: realm administration,
// tenant-scoped identity management and the login/refresh/authorize
// endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"realmgate.org/internal/auth"
	"realmgate.org/internal/obs"
	"realmgate.org/internal/realm"
	"realmgate.org/internal/tenant"
)

// ReadyProbe reports whether the backing database is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Auth      *auth.Service
	Directory *realm.Directory
	Router    *tenant.Router
	Ready     ReadyProbe
	Version   string

	// MasterRealm is the public UUID of the control-plane realm. When
	// set, administration endpoints require a bearer token issued by
	// that realm. Empty disables the guard (tests, local bootstrap).
	MasterRealm string
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
}

// New wires all routes onto a fresh mux.
func New(deps Deps) *API {
	a := &API{mux: http.NewServeMux(), deps: deps}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.readyz)
	a.mux.HandleFunc("/version", a.version)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/realms", a.handleRealms)
	a.mux.HandleFunc("/v1/realms/", a.handleRealmScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = obs.Instrument(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "realmgate-api",
		"version": a.deps.Version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "realmgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
