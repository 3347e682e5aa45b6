package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"realmgate.org/internal/audit"
	"realmgate.org/internal/auth"
	"realmgate.org/internal/realm"
)

type createRealmRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	AccessTTLSecs  int64  `json:"access_token_ttl_seconds"`
	RefreshTTLSecs int64  `json:"refresh_token_ttl_seconds"`
	SigningSecret  string `json:"signing_secret"`
	PublicUUID     string `json:"public_uuid"`
}

type updateRealmRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	AccessTTLSecs  *int64  `json:"access_token_ttl_seconds"`
	RefreshTTLSecs *int64  `json:"refresh_token_ttl_seconds"`
	SigningSecret  *string `json:"signing_secret"`
}

func (a *API) handleRealms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRealm(w, r)
	case http.MethodGet:
		a.listRealms(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRealm(w http.ResponseWriter, r *http.Request) {
	r, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createRealmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	params := realm.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		PublicUUID:  req.PublicUUID,
	}
	if req.SigningSecret != "" || req.AccessTTLSecs > 0 || req.RefreshTTLSecs > 0 {
		params.Signing = &realm.SigningConfig{
			Secret:          req.SigningSecret,
			AccessTokenTTL:  time.Duration(req.AccessTTLSecs) * time.Second,
			RefreshTokenTTL: time.Duration(req.RefreshTTLSecs) * time.Second,
		}
	}
	created, err := a.deps.Directory.Create(r.Context(), params)
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "realm.create", withActor(r.Context(), map[string]any{"realm": created.PublicUUID, "name": created.Name}))
	w.Header().Set("Location", fmt.Sprintf("/v1/realms/%s", created.PublicUUID))
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listRealms(w http.ResponseWriter, r *http.Request) {
	r, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	realms, err := a.deps.Directory.List(r.Context())
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"realms": realms})
}

// handleRealmScoped dispatches /v1/realms/{uuid}/... paths.
func (a *API) handleRealmScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/realms/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	realmUUID := parts[0]

	if len(parts) == 1 {
		a.handleRealmResource(w, r, realmUUID)
		return
	}
	switch parts[1] {
	case "login":
		a.handleLogin(w, r, realmUUID)
	case "refresh":
		a.handleRefresh(w, r, realmUUID)
	case "authorize":
		a.handleAuthorize(w, r, realmUUID)
	case "accounts", "groups", "roles", "policies":
		a.handleIdentity(w, r, realmUUID, parts[1:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRealmResource(w http.ResponseWriter, r *http.Request, realmUUID string) {
	switch r.Method {
	case http.MethodGet:
		r, ok := a.requireAdmin(w, r)
		if !ok {
			return
		}
		found, err := a.deps.Directory.FindByPublicUUID(r.Context(), realmUUID)
		if err != nil {
			handleIAMError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		a.updateRealm(w, r, realmUUID)
	case http.MethodDelete:
		a.deleteRealm(w, r, realmUUID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateRealm(w http.ResponseWriter, r *http.Request, realmUUID string) {
	r, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req updateRealmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	found, err := a.deps.Directory.FindByPublicUUID(r.Context(), realmUUID)
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	upd := realm.Update{Name: req.Name, Description: req.Description}
	if req.SigningSecret != nil || req.AccessTTLSecs != nil || req.RefreshTTLSecs != nil {
		signing := found.Signing
		if req.SigningSecret != nil {
			signing.Secret = *req.SigningSecret
		}
		if req.AccessTTLSecs != nil {
			signing.AccessTokenTTL = time.Duration(*req.AccessTTLSecs) * time.Second
		}
		if req.RefreshTTLSecs != nil {
			signing.RefreshTokenTTL = time.Duration(*req.RefreshTTLSecs) * time.Second
		}
		upd.Signing = &signing
	}
	updated, err := a.deps.Directory.Update(r.Context(), found.ID, upd)
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "realm.update", withActor(r.Context(), map[string]any{"realm": realmUUID}))
	writeJSON(w, http.StatusOK, updated)
}

// deleteRealm removes the realm and destroys its storage namespace.
func (a *API) deleteRealm(w http.ResponseWriter, r *http.Request, realmUUID string) {
	r, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	found, err := a.deps.Directory.FindByPublicUUID(r.Context(), realmUUID)
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	if err := a.deps.Directory.DeleteRealmAndDB(r.Context(), found.ID); err != nil {
		handleIAMError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "realm.delete", withActor(r.Context(), map[string]any{"realm": realmUUID}))
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin enforces a master-realm bearer token on administration
// endpoints and returns a request carrying the authenticated principal.
// Disabled when no master realm is configured.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if a.deps.MasterRealm == "" {
		return r, true
	}
	principal, ok := a.authenticate(r, a.deps.MasterRealm)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return r, false
	}
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)), true
}

// requireRealmAccess enforces a bearer token for the managed realm; a
// master-realm token also passes. Returns a request carrying the
// authenticated principal.
func (a *API) requireRealmAccess(w http.ResponseWriter, r *http.Request, realmUUID string) (*http.Request, bool) {
	if a.deps.MasterRealm == "" {
		return r, true
	}
	if principal, ok := a.authenticate(r, realmUUID); ok {
		return r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)), true
	}
	if principal, ok := a.authenticate(r, a.deps.MasterRealm); ok {
		return r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)), true
	}
	writeError(w, r, http.StatusUnauthorized, "unauthorized")
	return r, false
}

func (a *API) authenticate(r *http.Request, realmUUID string) (auth.Principal, bool) {
	token := bearerToken(r)
	if token == "" {
		return auth.Principal{}, false
	}
	principal, err := a.deps.Auth.Authenticate(r.Context(), realmUUID, token)
	if err != nil {
		return auth.Principal{}, false
	}
	return principal, true
}
