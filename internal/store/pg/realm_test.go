package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/realm"
)

func TestInsertRealmConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	r := realm.Realm{
		ID:               "01TESTID",
		PublicUUID:       "7a4e2f9c-0000-4000-8000-000000000001",
		StorageNamespace: "tenant_acme",
		Name:             "acme",
		Signing: realm.SigningConfig{
			Secret:          "s3cret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 14 * 24 * time.Hour,
		},
	}

	mock.ExpectQuery("insert into core.realms").
		WithArgs(r.ID, r.PublicUUID, r.StorageNamespace, r.Name, sqlmock.AnyArg(),
			r.Signing.Secret, int64(900), int64(1209600)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	if err := store.Insert(context.Background(), &r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Second create with the same name hits the unique index.
	mock.ExpectQuery("insert into core.realms").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "realms_name_key"})

	dup := r
	dup.ID = "01TESTID2"
	dup.PublicUUID = "7a4e2f9c-0000-4000-8000-000000000002"
	if err := store.Insert(context.Background(), &dup); !errors.Is(err, iamerr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByPublicUUIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("select .* from core.realms where public_uuid").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.FindByPublicUUID(context.Background(), "missing")
	if !errors.Is(err, iamerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByPublicUUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	now := time.Now()
	mock.ExpectQuery("select .* from core.realms where public_uuid").
		WithArgs("uuid-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "public_uuid", "storage_namespace", "name", "description",
			"signing_secret", "access_token_ttl_seconds", "refresh_token_ttl_seconds",
			"created_at", "updated_at",
		}).AddRow("01X", "uuid-1", "tenant_acme", "acme", nil, "s3cret", int64(900), int64(1209600), now, now))

	r, err := store.FindByPublicUUID(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("FindByPublicUUID: %v", err)
	}
	if r.StorageNamespace != "tenant_acme" {
		t.Fatalf("unexpected namespace: %s", r.StorageNamespace)
	}
	if r.Signing.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", r.Signing.AccessTokenTTL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRealmNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectExec("delete from core.realms").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "gone"); !errors.Is(err, iamerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
