package httpapi

import (
	"fmt"
	"net/http"

	"realmgate.org/internal/audit"
	"realmgate.org/internal/auth"
	"realmgate.org/internal/identity"
	"realmgate.org/internal/policy"
)

type createAccountRequest struct {
	Emails   []identity.Email `json:"emails"`
	Password string           `json:"password"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (a *API) identityStore(r *http.Request, realmUUID string) (*identity.Store, error) {
	rec, err := a.deps.Directory.FindByPublicUUID(r.Context(), realmUUID)
	if err != nil {
		return nil, err
	}
	h, err := a.deps.Router.Handle(rec.StorageNamespace)
	if err != nil {
		return nil, err
	}
	return identity.NewStore(h), nil
}

// handleIdentity dispatches tenant-scoped resources. parts starts with
// the resource kind: accounts | groups | roles | policies.
func (a *API) handleIdentity(w http.ResponseWriter, r *http.Request, realmUUID string, parts []string) {
	r, ok := a.requireRealmAccess(w, r, realmUUID)
	if !ok {
		return
	}
	store, err := a.identityStore(r, realmUUID)
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	switch parts[0] {
	case "accounts":
		a.handleAccounts(w, r, realmUUID, store, parts[1:])
	case "groups":
		a.handleGroups(w, r, realmUUID, store, parts[1:])
	case "roles":
		a.handleRoles(w, r, realmUUID, store, parts[1:])
	case "policies":
		a.handlePolicies(w, r, realmUUID, store, parts[1:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request, realmUUID string, store *identity.Store, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			var req createAccountRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			hash := ""
			if req.Password != "" {
				var err error
				hash, err = auth.HashPassword(req.Password)
				if err != nil {
					handleIAMError(w, r, err)
					return
				}
			}
			acct, err := store.CreateAccount(ctx, req.Emails, hash)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			audit.LogEvent(ctx, "account.create", withActor(ctx, map[string]any{"realm": realmUUID, "account_id": acct.ID}))
			w.Header().Set("Location", fmt.Sprintf("/v1/realms/%s/accounts/%s", realmUUID, acct.ID))
			writeJSON(w, http.StatusCreated, acct)
		case http.MethodGet:
			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
	case len(rest) == 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			acct, err := store.GetAccount(ctx, id)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, acct)
		case http.MethodDelete:
			if err := store.DeactivateAccount(ctx, id); err != nil {
				handleIAMError(w, r, err)
				return
			}
			audit.LogEvent(ctx, "account.deactivate", withActor(ctx, map[string]any{"realm": realmUUID, "account_id": id}))
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(rest) == 2 && rest[1] == "password":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req updatePasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			handleIAMError(w, r, err)
			return
		}
		if err := store.UpdateAccountPassword(ctx, rest[0], hash); err != nil {
			handleIAMError(w, r, err)
			return
		}
		audit.LogEvent(ctx, "account.password", withActor(ctx, map[string]any{"realm": realmUUID, "account_id": rest[0]}))
		w.WriteHeader(http.StatusNoContent)
	case len(rest) == 3:
		a.handleAccountEdge(w, r, store, rest)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAccountEdge(w http.ResponseWriter, r *http.Request, store *identity.Store, rest []string) {
	ctx := r.Context()
	accountID, other := rest[0], rest[2]
	type edgeOps struct {
		attach func() error
		detach func() error
	}
	var ops edgeOps
	switch rest[1] {
	case "roles":
		ops = edgeOps{
			attach: func() error { return store.AttachAccountRole(ctx, accountID, other) },
			detach: func() error { return store.DetachAccountRole(ctx, accountID, other) },
		}
	case "groups":
		ops = edgeOps{
			attach: func() error { return store.AttachAccountGroup(ctx, accountID, other) },
			detach: func() error { return store.DetachAccountGroup(ctx, accountID, other) },
		}
	case "policies":
		ops = edgeOps{
			attach: func() error { return store.AttachAccountPolicy(ctx, accountID, other) },
			detach: func() error { return store.DetachAccountPolicy(ctx, accountID, other) },
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	a.runEdge(w, r, ops.attach, ops.detach)
}

func (a *API) runEdge(w http.ResponseWriter, r *http.Request, attach, detach func() error) {
	var err error
	switch r.Method {
	case http.MethodPut:
		err = attach()
	case http.MethodDelete:
		err = detach()
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	if err != nil {
		handleIAMError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request, realmUUID string, store *identity.Store, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			var req createGroupRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			group, err := store.CreateGroup(ctx, req.Name, req.Description)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			audit.LogEvent(ctx, "group.create", withActor(ctx, map[string]any{"realm": realmUUID, "group_id": group.ID}))
			w.Header().Set("Location", fmt.Sprintf("/v1/realms/%s/groups/%s", realmUUID, group.ID))
			writeJSON(w, http.StatusCreated, group)
		case http.MethodGet:
			groups, err := store.ListGroups(ctx)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			group, err := store.GetGroup(ctx, rest[0])
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, group)
		case http.MethodDelete:
			if err := store.DeleteGroup(ctx, rest[0]); err != nil {
				handleIAMError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(rest) == 3 && rest[1] == "roles":
		a.runEdge(w, r,
			func() error { return store.AttachGroupRole(ctx, rest[0], rest[2]) },
			func() error { return store.DetachGroupRole(ctx, rest[0], rest[2]) })
	case len(rest) == 3 && rest[1] == "policies":
		a.runEdge(w, r,
			func() error { return store.AttachGroupPolicy(ctx, rest[0], rest[2]) },
			func() error { return store.DetachGroupPolicy(ctx, rest[0], rest[2]) })
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request, realmUUID string, store *identity.Store, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			var req createRoleRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			role, err := store.CreateRole(ctx, req.Name, req.Description, req.Permissions)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			audit.LogEvent(ctx, "role.create", withActor(ctx, map[string]any{"realm": realmUUID, "role_id": role.ID}))
			w.Header().Set("Location", fmt.Sprintf("/v1/realms/%s/roles/%s", realmUUID, role.ID))
			writeJSON(w, http.StatusCreated, role)
		case http.MethodGet:
			roles, err := store.ListRoles(ctx)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			role, err := store.GetRole(ctx, rest[0])
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, role)
		case http.MethodDelete:
			if err := store.DeleteRole(ctx, rest[0]); err != nil {
				handleIAMError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(rest) == 3 && rest[1] == "policies":
		a.runEdge(w, r,
			func() error { return store.AttachRolePolicy(ctx, rest[0], rest[2]) },
			func() error { return store.DetachRolePolicy(ctx, rest[0], rest[2]) })
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePolicies(w http.ResponseWriter, r *http.Request, realmUUID string, store *identity.Store, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodPost:
			var req policy.Policy
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			created, err := store.CreatePolicy(ctx, req)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			audit.LogEvent(ctx, "policy.create", withActor(ctx, map[string]any{"realm": realmUUID, "policy_id": created.ID}))
			w.Header().Set("Location", fmt.Sprintf("/v1/realms/%s/policies/%s", realmUUID, created.ID))
			writeJSON(w, http.StatusCreated, created)
		case http.MethodGet:
			policies, err := store.ListPolicies(ctx)
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			p, err := store.GetPolicy(ctx, rest[0])
			if err != nil {
				handleIAMError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodDelete:
			if err := store.DeletePolicy(ctx, rest[0]); err != nil {
				handleIAMError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
