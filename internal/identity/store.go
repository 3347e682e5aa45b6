package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/ids"
	"realmgate.org/internal/policy"
	"realmgate.org/internal/tenant"
)

const (
	pgErrUniqueViolation = "23505"
)

// Store reads and writes one tenant's identity records through a
// namespace handle.
type Store struct {
	h *tenant.Handle
}

// NewStore binds a store to a tenant handle.
func NewStore(h *tenant.Handle) *Store {
	return &Store{h: h}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// --- accounts -------------------------------------------------------------

func normalizeEmails(emails []Email) ([]Email, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	primaries := 0
	out := make([]Email, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		addr := strings.TrimSpace(strings.ToLower(e.Email))
		if addr == "" {
			return nil, fmt.Errorf("%w: empty email address", iamerr.ErrInvalidInput)
		}
		if _, ok := seen[addr]; ok {
			return nil, fmt.Errorf("%w: duplicate email %s", iamerr.ErrInvalidInput, addr)
		}
		seen[addr] = struct{}{}
		if e.IsPrimary {
			primaries++
		}
		out = append(out, Email{Email: addr, IsPrimary: e.IsPrimary})
	}
	if primaries != 1 {
		return nil, fmt.Errorf("%w: exactly one primary email is required", iamerr.ErrInvalidInput)
	}
	return out, nil
}

// CreateAccount inserts an active account.
func (s *Store) CreateAccount(ctx context.Context, emails []Email, passwordHash string) (Account, error) {
	normalized, err := normalizeEmails(emails)
	if err != nil {
		return Account{}, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return Account{}, err
	}
	acct := Account{ID: ids.New(), Emails: normalized, PasswordHash: passwordHash, IsActive: true}
	err = s.h.DB().QueryRowContext(ctx, `
		insert into `+s.h.Rel("accounts")+` (id, emails, password_hash, is_active)
		values ($1, $2, $3, true)
		returning created_at, updated_at
	`, acct.ID, raw, nullIfEmpty(passwordHash)).Scan(&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(ctx context.Context, id string) (Account, error) {
	return s.scanAccount(s.h.DB().QueryRowContext(ctx, `
		select id, emails, password_hash, is_active, created_at, updated_at
		from `+s.h.Rel("accounts")+` where id = $1
	`, id))
}

// FindAccountByEmail locates an account by any of its addresses.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.scanAccount(s.h.DB().QueryRowContext(ctx, `
		select id, emails, password_hash, is_active, created_at, updated_at
		from `+s.h.Rel("accounts")+` a
		where exists (
			select 1 from jsonb_array_elements(a.emails) e
			where e->>'email' = $1
		)
	`, email))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanAccount(row rowScanner) (Account, error) {
	var (
		acct Account
		raw  []byte
		hash sql.NullString
	)
	err := row.Scan(&acct.ID, &raw, &hash, &acct.IsActive, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, iamerr.ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	if hash.Valid {
		acct.PasswordHash = hash.String
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &acct.Emails); err != nil {
			return Account{}, fmt.Errorf("decode emails: %w", err)
		}
	}
	return acct, nil
}

// ListAccounts returns every account in the tenant.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.h.DB().QueryContext(ctx, `
		select id, emails, password_hash, is_active, created_at, updated_at
		from `+s.h.Rel("accounts")+` order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acct, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateAccountPassword replaces the stored hash.
func (s *Store) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.h.DB().ExecContext(ctx, `
		update `+s.h.Rel("accounts")+`
		set password_hash = $2, updated_at = now()
		where id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeactivateAccount soft-deletes: emails and password are cleared and the
// row stays so edges referencing the id remain structurally valid.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	res, err := s.h.DB().ExecContext(ctx, `
		update `+s.h.Rel("accounts")+`
		set emails = '[]', password_hash = null, is_active = false, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- groups ---------------------------------------------------------------

// CreateGroup inserts a group; duplicate names conflict.
func (s *Store) CreateGroup(ctx context.Context, name, description string) (Group, error) {
	g := Group{ID: ids.New(), Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	_, err := s.h.DB().ExecContext(ctx, `
		insert into `+s.h.Rel("groups")+` (id, name, description)
		values ($1, $2, $3)
	`, g.ID, g.Name, nullIfEmpty(g.Description))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return Group{}, fmt.Errorf("%w: group %s", iamerr.ErrConflict, g.Name)
		}
		return Group{}, err
	}
	return g, nil
}

// GetGroup returns the group with the given id.
func (s *Store) GetGroup(ctx context.Context, id string) (Group, error) {
	var (
		g    Group
		desc sql.NullString
	)
	err := s.h.DB().QueryRowContext(ctx, `
		select id, name, description from `+s.h.Rel("groups")+` where id = $1
	`, id).Scan(&g.ID, &g.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, iamerr.ErrNotFound
	}
	if err != nil {
		return Group{}, err
	}
	if desc.Valid {
		g.Description = desc.String
	}
	return g, nil
}

// ListGroups returns every group ordered by name.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.h.DB().QueryContext(ctx, `
		select id, name, description from `+s.h.Rel("groups")+` order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var (
			g    Group
			desc sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &desc); err != nil {
			return nil, err
		}
		if desc.Valid {
			g.Description = desc.String
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes a group row. Edges referencing the group are left
// in place; deletion does not cascade.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.h.DB().ExecContext(ctx, `delete from `+s.h.Rel("groups")+` where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- roles ----------------------------------------------------------------

// CreateRole inserts a role; duplicate names conflict.
func (s *Store) CreateRole(ctx context.Context, name, description string, permissions []string) (Role, error) {
	if permissions == nil {
		permissions = []string{}
	}
	raw, err := json.Marshal(permissions)
	if err != nil {
		return Role{}, err
	}
	r := Role{ID: ids.New(), Name: strings.TrimSpace(name), Description: strings.TrimSpace(description), Permissions: permissions}
	_, err = s.h.DB().ExecContext(ctx, `
		insert into `+s.h.Rel("roles")+` (id, name, description, permissions)
		values ($1, $2, $3, $4)
	`, r.ID, r.Name, nullIfEmpty(r.Description), raw)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return Role{}, fmt.Errorf("%w: role %s", iamerr.ErrConflict, r.Name)
		}
		return Role{}, err
	}
	return r, nil
}

// GetRole returns the role with the given id.
func (s *Store) GetRole(ctx context.Context, id string) (Role, error) {
	var (
		r    Role
		desc sql.NullString
		raw  []byte
	)
	err := s.h.DB().QueryRowContext(ctx, `
		select id, name, description, permissions from `+s.h.Rel("roles")+` where id = $1
	`, id).Scan(&r.ID, &r.Name, &desc, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, iamerr.ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	if desc.Valid {
		r.Description = desc.String
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Permissions); err != nil {
			return Role{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return r, nil
}

// ListRoles returns every role ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.h.DB().QueryContext(ctx, `
		select id, name, description, permissions from `+s.h.Rel("roles")+` order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var (
			r    Role
			desc sql.NullString
			raw  []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &raw); err != nil {
			return nil, err
		}
		if desc.Valid {
			r.Description = desc.String
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Permissions); err != nil {
				return nil, err
			}
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// DeleteRole removes a role row without cascading to edges.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.h.DB().ExecContext(ctx, `delete from `+s.h.Rel("roles")+` where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- policies -------------------------------------------------------------

// CreatePolicy inserts a policy document; names are unique per tenant.
func (s *Store) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if !p.Effect.Valid() {
		return policy.Policy{}, fmt.Errorf("%w: effect must be Allow or Deny", iamerr.ErrInvalidInput)
	}
	if len(p.Actions) == 0 || len(p.Resources) == 0 {
		return policy.Policy{}, fmt.Errorf("%w: actions and resources must be non-empty", iamerr.ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.Version == "" {
		p.Version = "2012-10-17"
	}
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return policy.Policy{}, err
	}
	resources, err := json.Marshal(p.Resources)
	if err != nil {
		return policy.Policy{}, err
	}
	var conditions any
	if len(p.Conditions) > 0 {
		raw, err := json.Marshal(p.Conditions)
		if err != nil {
			return policy.Policy{}, err
		}
		conditions = raw
	}
	_, err = s.h.DB().ExecContext(ctx, `
		insert into `+s.h.Rel("policies")+` (id, version, name, description, effect, actions, resources, conditions)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Version, p.Name, nullIfEmpty(p.Description), string(p.Effect), actions, resources, conditions)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return policy.Policy{}, fmt.Errorf("%w: policy %s", iamerr.ErrConflict, p.Name)
		}
		return policy.Policy{}, err
	}
	return p, nil
}

// GetPolicy returns the policy with the given id.
func (s *Store) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	row := s.h.DB().QueryRowContext(ctx, `
		select id, version, name, description, effect, actions, resources, conditions
		from `+s.h.Rel("policies")+` where id = $1
	`, id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, iamerr.ErrNotFound
	}
	return p, err
}

// ListPolicies returns every policy ordered by name.
func (s *Store) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.h.DB().QueryContext(ctx, `
		select id, version, name, description, effect, actions, resources, conditions
		from `+s.h.Rel("policies")+` order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeletePolicy removes a policy row without cascading to edges.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.h.DB().ExecContext(ctx, `delete from `+s.h.Rel("policies")+` where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanPolicy(row rowScanner) (policy.Policy, error) {
	var (
		p          policy.Policy
		desc       sql.NullString
		effect     string
		actions    []byte
		resources  []byte
		conditions []byte
	)
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &desc, &effect, &actions, &resources, &conditions); err != nil {
		return policy.Policy{}, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	p.Effect = policy.Effect(effect)
	if err := json.Unmarshal(actions, &p.Actions); err != nil {
		return policy.Policy{}, fmt.Errorf("decode actions: %w", err)
	}
	if err := json.Unmarshal(resources, &p.Resources); err != nil {
		return policy.Policy{}, fmt.Errorf("decode resources: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
			return policy.Policy{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	return p, nil
}

// --- association edges ----------------------------------------------------

// edge names one of the six association tables by its column pair.
type edge struct {
	rel  string
	colA string
	colB string
}

var (
	edgeAccountRole   = edge{"account_roles", "account_id", "role_id"}
	edgeAccountGroup  = edge{"account_groups", "account_id", "group_id"}
	edgeAccountPolicy = edge{"account_policies", "account_id", "policy_id"}
	edgeGroupRole     = edge{"group_roles", "group_id", "role_id"}
	edgeGroupPolicy   = edge{"group_policies", "group_id", "policy_id"}
	edgeRolePolicy    = edge{"role_policies", "role_id", "policy_id"}
)

func (s *Store) attach(ctx context.Context, e edge, a, b string) error {
	_, err := s.h.DB().ExecContext(ctx, fmt.Sprintf(`
		insert into %s (%s, %s) values ($1, $2)
	`, s.h.Rel(e.rel), e.colA, e.colB), a, b)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s %s/%s", iamerr.ErrConflict, e.rel, a, b)
		}
		return err
	}
	return nil
}

func (s *Store) detach(ctx context.Context, e edge, a, b string) error {
	res, err := s.h.DB().ExecContext(ctx, fmt.Sprintf(`
		delete from %s where %s = $1 and %s = $2
	`, s.h.Rel(e.rel), e.colA, e.colB), a, b)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// AttachAccountRole links an account to a role. Duplicate edges conflict.
func (s *Store) AttachAccountRole(ctx context.Context, accountID, roleID string) error {
	return s.attach(ctx, edgeAccountRole, accountID, roleID)
}

// DetachAccountRole removes the link; missing edges are NotFound.
func (s *Store) DetachAccountRole(ctx context.Context, accountID, roleID string) error {
	return s.detach(ctx, edgeAccountRole, accountID, roleID)
}

// AttachAccountGroup links an account to a group.
func (s *Store) AttachAccountGroup(ctx context.Context, accountID, groupID string) error {
	return s.attach(ctx, edgeAccountGroup, accountID, groupID)
}

// DetachAccountGroup removes the link.
func (s *Store) DetachAccountGroup(ctx context.Context, accountID, groupID string) error {
	return s.detach(ctx, edgeAccountGroup, accountID, groupID)
}

// AttachAccountPolicy links an account directly to a policy.
func (s *Store) AttachAccountPolicy(ctx context.Context, accountID, policyID string) error {
	return s.attach(ctx, edgeAccountPolicy, accountID, policyID)
}

// DetachAccountPolicy removes the link.
func (s *Store) DetachAccountPolicy(ctx context.Context, accountID, policyID string) error {
	return s.detach(ctx, edgeAccountPolicy, accountID, policyID)
}

// AttachGroupRole links a group to a role.
func (s *Store) AttachGroupRole(ctx context.Context, groupID, roleID string) error {
	return s.attach(ctx, edgeGroupRole, groupID, roleID)
}

// DetachGroupRole removes the link.
func (s *Store) DetachGroupRole(ctx context.Context, groupID, roleID string) error {
	return s.detach(ctx, edgeGroupRole, groupID, roleID)
}

// AttachGroupPolicy links a group to a policy.
func (s *Store) AttachGroupPolicy(ctx context.Context, groupID, policyID string) error {
	return s.attach(ctx, edgeGroupPolicy, groupID, policyID)
}

// DetachGroupPolicy removes the link.
func (s *Store) DetachGroupPolicy(ctx context.Context, groupID, policyID string) error {
	return s.detach(ctx, edgeGroupPolicy, groupID, policyID)
}

// AttachRolePolicy links a role to a policy.
func (s *Store) AttachRolePolicy(ctx context.Context, roleID, policyID string) error {
	return s.attach(ctx, edgeRolePolicy, roleID, policyID)
}

// DetachRolePolicy removes the link.
func (s *Store) DetachRolePolicy(ctx context.Context, roleID, policyID string) error {
	return s.detach(ctx, edgeRolePolicy, roleID, policyID)
}

// --- helpers --------------------------------------------------------------

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return iamerr.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
