package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/realm"
	"realmgate.org/internal/tenant"
	"realmgate.org/internal/token"
)

// fakeRealmStore is an in-memory realm.Store for wiring the directory
// without a database.
type fakeRealmStore struct {
	byID map[string]realm.Realm
}

func newFakeRealmStore() *fakeRealmStore {
	return &fakeRealmStore{byID: make(map[string]realm.Realm)}
}

func (f *fakeRealmStore) Insert(_ context.Context, r *realm.Realm) error {
	for _, existing := range f.byID {
		if existing.Name == r.Name || existing.PublicUUID == r.PublicUUID {
			return fmt.Errorf("%w: realm %s", iamerr.ErrConflict, r.Name)
		}
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	f.byID[r.ID] = *r
	return nil
}

func (f *fakeRealmStore) FindByID(_ context.Context, id string) (realm.Realm, error) {
	if r, ok := f.byID[id]; ok {
		return r, nil
	}
	return realm.Realm{}, iamerr.ErrNotFound
}

func (f *fakeRealmStore) FindByPublicUUID(_ context.Context, publicUUID string) (realm.Realm, error) {
	for _, r := range f.byID {
		if r.PublicUUID == publicUUID {
			return r, nil
		}
	}
	return realm.Realm{}, iamerr.ErrNotFound
}

func (f *fakeRealmStore) FindByName(_ context.Context, name string) (realm.Realm, error) {
	for _, r := range f.byID {
		if r.Name == name {
			return r, nil
		}
	}
	return realm.Realm{}, iamerr.ErrNotFound
}

func (f *fakeRealmStore) List(_ context.Context) ([]realm.Realm, error) {
	out := make([]realm.Realm, 0, len(f.byID))
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRealmStore) Update(_ context.Context, id string, upd realm.Update) (realm.Realm, error) {
	r, ok := f.byID[id]
	if !ok {
		return realm.Realm{}, iamerr.ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	f.byID[id] = r
	return r, nil
}

func (f *fakeRealmStore) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return iamerr.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type noopNamespaces struct{}

func (noopNamespaces) Create(context.Context, string) error { return nil }
func (noopNamespaces) Drop(context.Context, string) error   { return nil }

type fixture struct {
	svc   *Service
	realm realm.Realm
	mock  sqlmock.Sqlmock
	done  func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}

	store := newFakeRealmStore()
	directory := realm.NewDirectory(store, noopNamespaces{})
	r, err := directory.Create(context.Background(), realm.CreateParams{
		Name:             "acme",
		StorageNamespace: "tenant_a",
	})
	if err != nil {
		t.Fatalf("create realm: %v", err)
	}

	svc := NewService(directory, tenant.NewRouter(db), token.NewService())
	return &fixture{svc: svc, realm: r, mock: mock, done: func() { db.Close() }}
}

func accountRow(t *testing.T, id, email, password string, active bool) *sqlmock.Rows {
	t.Helper()
	hash := ""
	if password != "" {
		var err error
		hash, err = HashPassword(password)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
	}
	emails, err := json.Marshal([]map[string]any{{"email": email, "isPrimary": true}})
	if err != nil {
		t.Fatalf("marshal emails: %v", err)
	}
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "emails", "password_hash", "is_active", "created_at", "updated_at"}).
		AddRow(id, emails, hash, active, now, now)
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("alice@acme.io").
		WillReturnRows(accountRow(t, "acct-1", "alice@acme.io", "s3cret", true))

	pair, acct, err := f.svc.Login(context.Background(), f.realm.PublicUUID, "Alice@ACME.io", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if acct.ID != "acct-1" {
		t.Fatalf("account id = %q", acct.ID)
	}

	claims, err := token.NewService().Verify(f.realm, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("alice@acme.io").
		WillReturnRows(accountRow(t, "acct-1", "alice@acme.io", "s3cret", true))

	_, _, err := f.svc.Login(context.Background(), f.realm.PublicUUID, "alice@acme.io", "wrong")
	if !errors.Is(err, iamerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginUnknownAccountUnauthorized(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("ghost@acme.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "emails", "password_hash", "is_active", "created_at", "updated_at"}))

	_, _, err := f.svc.Login(context.Background(), f.realm.PublicUUID, "ghost@acme.io", "whatever")
	if !errors.Is(err, iamerr.ErrUnauthorized) {
		t.Fatalf("missing account err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginDeactivatedAccountUnauthorized(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("alice@acme.io").
		WillReturnRows(accountRow(t, "acct-1", "alice@acme.io", "", false))

	_, _, err := f.svc.Login(context.Background(), f.realm.PublicUUID, "alice@acme.io", "s3cret")
	if !errors.Is(err, iamerr.ErrUnauthorized) {
		t.Fatalf("inactive err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginUnknownRealmNotFound(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	_, _, err := f.svc.Login(context.Background(), "00000000-0000-0000-0000-000000000000", "a@b.io", "pw")
	if !errors.Is(err, iamerr.ErrNotFound) {
		t.Fatalf("unknown realm err = %v, want ErrNotFound", err)
	}
}

func TestAuthorizeAllow(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	access, _, err := token.NewService().IssueAccessToken(f.realm, "acct-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("acct-1").
		WillReturnRows(accountRow(t, "acct-1", "alice@acme.io", "s3cret", true))
	f.mock.ExpectQuery(`select policy_id from "tenant_a".account_policies`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow("p1"))
	f.mock.ExpectQuery(`join "tenant_a".group_policies`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}))
	f.mock.ExpectQuery(`join "tenant_a".role_policies rp on rp.role_id = ar.role_id`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}))
	f.mock.ExpectQuery(`join "tenant_a".group_roles`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}))
	f.mock.ExpectQuery(`from "tenant_a".policies`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "version", "name", "description", "effect", "actions", "resources", "conditions",
		}).AddRow("p1", "2012-10-17", "read-accounts", nil, "Allow",
			[]byte(`["iam:accounts:read"]`), []byte(`["grn:iam:accounts/*"]`), nil))

	decision, err := f.svc.Authorize(context.Background(), f.realm.PublicUUID, AuthorizeRequest{
		AccessToken: access,
		Action:      "iam:accounts:read",
		Resource:    "grn:iam:accounts/123",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected allow decision")
	}
	if len(decision.Matched) != 1 || decision.Matched[0] != "p1" {
		t.Fatalf("matched = %v", decision.Matched)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthorizeNoPoliciesDeniesWithoutError(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	access, _, err := token.NewService().IssueAccessToken(f.realm, "acct-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	f.mock.ExpectQuery(`from "tenant_a".accounts`).
		WithArgs("acct-1").
		WillReturnRows(accountRow(t, "acct-1", "alice@acme.io", "s3cret", true))
	for _, q := range []string{
		`select policy_id from "tenant_a".account_policies`,
		`join "tenant_a".group_policies`,
		`join "tenant_a".role_policies rp on rp.role_id = ar.role_id`,
		`join "tenant_a".group_roles`,
	} {
		f.mock.ExpectQuery(q).WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows([]string{"policy_id"}))
	}

	decision, err := f.svc.Authorize(context.Background(), f.realm.PublicUUID, AuthorizeRequest{
		AccessToken: access,
		Action:      "iam:accounts:read",
		Resource:    "grn:iam:accounts/123",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected default deny")
	}
}

func TestAuthorizeInvalidTokenUnauthorized(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	_, err := f.svc.Authorize(context.Background(), f.realm.PublicUUID, AuthorizeRequest{
		AccessToken: "not-a-token",
		Action:      "iam:accounts:read",
		Resource:    "grn:iam:accounts/123",
	})
	if !errors.Is(err, iamerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t)
	defer f.done()

	first, err := f.svc.Bootstrap(context.Background(), BootstrapParams{MasterRealm: "master"})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	second, err := f.svc.Bootstrap(context.Background(), BootstrapParams{MasterRealm: "master"})
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("bootstrap created a second master realm: %s != %s", first.ID, second.ID)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "nope"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if err := VerifyPassword("", "s3cret"); !errors.Is(err, iamerr.ErrUnauthorized) {
		t.Fatalf("empty hash err = %v, want ErrUnauthorized", err)
	}
}
