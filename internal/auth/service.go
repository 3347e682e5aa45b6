// Package auth is the request-facing entry point: it resolves the realm,
// routes to that tenant's storage, and composes the identity, policy and
// token layers into login, refresh and authorize flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"realmgate.org/internal/audit"
	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/identity"
	"realmgate.org/internal/obs"
	"realmgate.org/internal/policy"
	"realmgate.org/internal/realm"
	"realmgate.org/internal/tenant"
	"realmgate.org/internal/token"
)

// Service wires realm lookup, tenant routing and token signing together.
type Service struct {
	directory *realm.Directory
	router    *tenant.Router
	tokens    *token.Service
}

// NewService constructs the auth entry point.
func NewService(directory *realm.Directory, router *tenant.Router, tokens *token.Service) *Service {
	return &Service{directory: directory, router: router, tokens: tokens}
}

// identities resolves the realm row and a tenant-scoped identity store in
// one step. Every flow starts here.
func (s *Service) identities(ctx context.Context, realmUUID string) (realm.Realm, *identity.Store, error) {
	r, err := s.directory.FindByPublicUUID(ctx, realmUUID)
	if err != nil {
		return realm.Realm{}, nil, err
	}
	h, err := s.router.Handle(r.StorageNamespace)
	if err != nil {
		return realm.Realm{}, nil, err
	}
	return r, identity.NewStore(h), nil
}

// Login authenticates an account by email and password within a realm and
// issues a token pair. Unknown realm surfaces as NotFound; every
// credential failure collapses into ErrUnauthorized so callers cannot
// distinguish a missing account from a wrong password.
func (s *Service) Login(ctx context.Context, realmUUID, email, password string) (token.Pair, identity.Account, error) {
	r, store, err := s.identities(ctx, realmUUID)
	if err != nil {
		return token.Pair{}, identity.Account{}, err
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return token.Pair{}, identity.Account{}, iamerr.ErrUnauthorized
	}
	acct, err := store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, iamerr.ErrNotFound) {
			return token.Pair{}, identity.Account{}, iamerr.ErrUnauthorized
		}
		return token.Pair{}, identity.Account{}, err
	}
	if !acct.IsActive {
		return token.Pair{}, identity.Account{}, iamerr.ErrUnauthorized
	}
	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		audit.LogEvent(ctx, "login.denied", map[string]any{"realm": realmUUID, "account_id": acct.ID})
		return token.Pair{}, identity.Account{}, iamerr.ErrUnauthorized
	}

	pair, err := s.tokens.IssuePair(r, acct.ID)
	if err != nil {
		return token.Pair{}, identity.Account{}, err
	}
	audit.LogEvent(ctx, "login.ok", map[string]any{"realm": realmUUID, "account_id": acct.ID})
	return pair, acct, nil
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *Service) Refresh(ctx context.Context, realmUUID, refreshToken string) (token.Pair, error) {
	r, err := s.directory.FindByPublicUUID(ctx, realmUUID)
	if err != nil {
		return token.Pair{}, err
	}
	return s.tokens.Refresh(r, refreshToken)
}

// AuthorizeRequest is one access-control question.
type AuthorizeRequest struct {
	AccessToken string            `json:"access_token"`
	Action      string            `json:"action"`
	Resource    string            `json:"resource"`
	Context     map[string]string `json:"context,omitempty"`
}

// Authorize verifies the access token, gathers every policy reachable
// from the subject account, and evaluates the request against them.
// An invalid token is ErrUnauthorized; a valid token with no granting
// policy is a deny decision, not an error.
func (s *Service) Authorize(ctx context.Context, realmUUID string, req AuthorizeRequest) (policy.Decision, error) {
	r, store, err := s.identities(ctx, realmUUID)
	if err != nil {
		return policy.Decision{}, err
	}
	if strings.TrimSpace(req.Action) == "" || strings.TrimSpace(req.Resource) == "" {
		return policy.Decision{}, fmt.Errorf("%w: action and resource are required", iamerr.ErrInvalidInput)
	}

	claims, err := s.tokens.Verify(r, req.AccessToken)
	if err != nil {
		return policy.Decision{}, err
	}
	acct, err := store.GetAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, iamerr.ErrNotFound) {
			return policy.Decision{}, iamerr.ErrUnauthorized
		}
		return policy.Decision{}, err
	}
	if !acct.IsActive {
		return policy.Decision{}, iamerr.ErrUnauthorized
	}

	policies, err := store.ResolvePolicies(ctx, acct.ID)
	if err != nil {
		return policy.Decision{}, err
	}
	decision := policy.Evaluate(policies, req.Action, req.Resource, req.Context)
	obs.ObserveDecision(decision.Allowed)
	audit.LogEvent(ctx, "authorize", map[string]any{
		"realm":      realmUUID,
		"account_id": acct.ID,
		"action":     req.Action,
		"resource":   req.Resource,
		"allowed":    decision.Allowed,
	})
	return decision, nil
}

// Principal identifies the verified subject of a request.
type Principal struct {
	RealmUUID string
	AccountID string
}

// Authenticate verifies an access token and returns the principal it
// names. Handlers use this for admin endpoints that need a subject but
// no policy decision.
func (s *Service) Authenticate(ctx context.Context, realmUUID, accessToken string) (Principal, error) {
	r, err := s.directory.FindByPublicUUID(ctx, realmUUID)
	if err != nil {
		if errors.Is(err, iamerr.ErrNotFound) {
			return Principal{}, iamerr.ErrUnauthorized
		}
		return Principal{}, err
	}
	claims, err := s.tokens.Verify(r, accessToken)
	if err != nil {
		return Principal{}, err
	}
	return Principal{RealmUUID: r.PublicUUID, AccountID: claims.Subject}, nil
}

// BootstrapParams configures the master realm created at startup.
type BootstrapParams struct {
	MasterRealm  string
	MasterSecret string
}

// Bootstrap ensures the master realm exists. A concurrent or previous
// bootstrap wins silently; any other failure is fatal to startup.
func (s *Service) Bootstrap(ctx context.Context, p BootstrapParams) (realm.Realm, error) {
	name := strings.TrimSpace(p.MasterRealm)
	if name == "" {
		name = "master"
	}
	var signing *realm.SigningConfig
	if strings.TrimSpace(p.MasterSecret) != "" {
		signing = &realm.SigningConfig{Secret: p.MasterSecret}
	}
	created, err := s.directory.Create(ctx, realm.CreateParams{
		Name:        name,
		Description: "control-plane realm",
		Signing:     signing,
	})
	if err == nil {
		obs.Logger().Info().Str("realm", created.PublicUUID).Msg("master realm bootstrapped")
		return created, nil
	}
	if !errors.Is(err, iamerr.ErrConflict) {
		return realm.Realm{}, err
	}
	r, err := s.directory.FindByName(ctx, name)
	if err != nil {
		return realm.Realm{}, fmt.Errorf("bootstrap: resolve existing master realm: %w", err)
	}
	return r, nil
}
