package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"realmgate.org/internal/policy"
)

// ResolvePolicies computes the membership closure for an account: the
// deduplicated set of policies reachable via direct assignment, group
// assignment, role assignment and group-to-role assignment. An account
// with no memberships resolves to an empty set, not an error.
func (s *Store) ResolvePolicies(ctx context.Context, accountID string) ([]policy.Policy, error) {
	paths := []string{
		// direct
		`select policy_id from ` + s.h.Rel("account_policies") + ` where account_id = $1`,
		// account -> group -> policy
		`select gp.policy_id
		 from ` + s.h.Rel("account_groups") + ` ag
		 join ` + s.h.Rel("group_policies") + ` gp on gp.group_id = ag.group_id
		 where ag.account_id = $1`,
		// account -> role -> policy
		`select rp.policy_id
		 from ` + s.h.Rel("account_roles") + ` ar
		 join ` + s.h.Rel("role_policies") + ` rp on rp.role_id = ar.role_id
		 where ar.account_id = $1`,
		// account -> group -> role -> policy
		`select rp.policy_id
		 from ` + s.h.Rel("account_groups") + ` ag
		 join ` + s.h.Rel("group_roles") + ` gr on gr.group_id = ag.group_id
		 join ` + s.h.Rel("role_policies") + ` rp on rp.role_id = gr.role_id
		 where ag.account_id = $1`,
	}

	seen := make(map[string]struct{})
	for _, q := range paths {
		if err := s.collectPolicyIDs(ctx, q, accountID, seen); err != nil {
			return nil, err
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	ordered := make([]string, 0, len(seen))
	for id := range seen {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	return s.policiesByID(ctx, ordered)
}

func (s *Store) collectPolicyIDs(ctx context.Context, query, accountID string, into map[string]struct{}) error {
	rows, err := s.h.DB().QueryContext(ctx, query, accountID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		into[id] = struct{}{}
	}
	return rows.Err()
}

func (s *Store) policiesByID(ctx context.Context, ids []string) ([]policy.Policy, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.h.DB().QueryContext(ctx, `
		select id, version, name, description, effect, actions, resources, conditions
		from `+s.h.Rel("policies")+`
		where id in (`+strings.Join(placeholders, ", ")+`)
		order by id
	`, args...)
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
