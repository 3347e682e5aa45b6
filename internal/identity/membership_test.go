package identity

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"realmgate.org/internal/policy"
	"realmgate.org/internal/tenant"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h, err := tenant.NewRouter(db).Handle("tenant_a")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return NewStore(h), mock, func() { db.Close() }
}

func policyRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"policy_id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func TestResolvePoliciesDeduplicates(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	// The same policy is reachable directly and through a group; the
	// closure must contain it exactly once.
	mock.ExpectQuery(`select policy_id from "tenant_a".account_policies`).
		WithArgs("acct-1").
		WillReturnRows(policyRows("pz"))
	mock.ExpectQuery(`join "tenant_a".group_policies`).
		WithArgs("acct-1").
		WillReturnRows(policyRows("pz", "p2"))
	mock.ExpectQuery(`join "tenant_a".role_policies rp on rp.role_id = ar.role_id`).
		WithArgs("acct-1").
		WillReturnRows(policyRows())
	mock.ExpectQuery(`join "tenant_a".group_roles`).
		WithArgs("acct-1").
		WillReturnRows(policyRows())

	mock.ExpectQuery(`from "tenant_a".policies`).
		WithArgs("p2", "pz").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "version", "name", "description", "effect", "actions", "resources", "conditions",
		}).
			AddRow("p2", "2012-10-17", "deny-all", nil, "Deny", []byte(`["iam:*:*"]`), []byte(`["*:*"]`), nil).
			AddRow("pz", "2012-10-17", "read-accounts", nil, "Allow", []byte(`["iam:accounts:read"]`), []byte(`["grn:*"]`), nil))

	policies, err := store.ResolvePolicies(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ResolvePolicies: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
	count := 0
	for _, p := range policies {
		if p.ID == "pz" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected pz exactly once, got %d", count)
	}
	if policies[0].Effect != policy.EffectDeny {
		t.Fatalf("unexpected effect: %s", policies[0].Effect)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePoliciesAllFourPaths(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`select policy_id from "tenant_a".account_policies`).
		WithArgs("acct-1").WillReturnRows(policyRows("p1"))
	mock.ExpectQuery(`join "tenant_a".group_policies`).
		WithArgs("acct-1").WillReturnRows(policyRows("p2"))
	mock.ExpectQuery(`join "tenant_a".role_policies rp on rp.role_id = ar.role_id`).
		WithArgs("acct-1").WillReturnRows(policyRows("p3"))
	mock.ExpectQuery(`join "tenant_a".group_roles`).
		WithArgs("acct-1").WillReturnRows(policyRows("p4"))

	rows := sqlmock.NewRows([]string{
		"id", "version", "name", "description", "effect", "actions", "resources", "conditions",
	})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		rows.AddRow(id, "2012-10-17", "policy-"+id, nil, "Allow", []byte(`["a:b"]`), []byte(`["r:s"]`), nil)
	}
	mock.ExpectQuery(`from "tenant_a".policies`).
		WithArgs("p1", "p2", "p3", "p4").
		WillReturnRows(rows)

	policies, err := store.ResolvePolicies(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ResolvePolicies: %v", err)
	}
	if len(policies) != 4 {
		t.Fatalf("expected 4 policies, got %d", len(policies))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePoliciesNoMemberships(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`select policy_id from "tenant_a".account_policies`).
		WithArgs("lonely").WillReturnRows(policyRows())
	mock.ExpectQuery(`join "tenant_a".group_policies`).
		WithArgs("lonely").WillReturnRows(policyRows())
	mock.ExpectQuery(`join "tenant_a".role_policies rp on rp.role_id = ar.role_id`).
		WithArgs("lonely").WillReturnRows(policyRows())
	mock.ExpectQuery(`join "tenant_a".group_roles`).
		WithArgs("lonely").WillReturnRows(policyRows())

	policies, err := store.ResolvePolicies(context.Background(), "lonely")
	if err != nil {
		t.Fatalf("ResolvePolicies: %v", err)
	}
	if len(policies) != 0 {
		t.Fatalf("expected empty set, got %d", len(policies))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
