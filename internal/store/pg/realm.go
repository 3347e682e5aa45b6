package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/realm"
)

var _ realm.Store = (*Store)(nil)

const realmColumns = `id, public_uuid, storage_namespace, name, description,
	signing_secret, access_token_ttl_seconds, refresh_token_ttl_seconds,
	created_at, updated_at`

// Insert adds a directory row. Uniqueness of public_uuid, name and
// storage_namespace is enforced by the database; a violation maps to
// iamerr.ErrConflict so concurrent colliding creates see exactly one
// success.
func (s *Store) Insert(ctx context.Context, r *realm.Realm) error {
	if s.db == nil {
		return fmt.Errorf("%w: database connection unavailable", iamerr.ErrInternal)
	}
	err := s.db.QueryRowContext(ctx, `
		insert into core.realms (id, public_uuid, storage_namespace, name, description,
			signing_secret, access_token_ttl_seconds, refresh_token_ttl_seconds)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, r.ID, r.PublicUUID, r.StorageNamespace, r.Name, nullIfEmpty(r.Description),
		r.Signing.Secret, int64(r.Signing.AccessTokenTTL/time.Second), int64(r.Signing.RefreshTokenTTL/time.Second),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: realm %s", iamerr.ErrConflict, r.Name)
		}
		return err
	}
	return nil
}

// FindByID returns the realm with the given internal id.
func (s *Store) FindByID(ctx context.Context, id string) (realm.Realm, error) {
	return s.findRealm(ctx, `id = $1`, id)
}

// FindByPublicUUID returns the realm with the given tenant-facing id.
func (s *Store) FindByPublicUUID(ctx context.Context, publicUUID string) (realm.Realm, error) {
	return s.findRealm(ctx, `public_uuid = $1`, publicUUID)
}

// FindByName returns the realm with the given unique name.
func (s *Store) FindByName(ctx context.Context, name string) (realm.Realm, error) {
	return s.findRealm(ctx, `name = $1`, name)
}

// List returns all realms ordered by name.
func (s *Store) List(ctx context.Context) ([]realm.Realm, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: database connection unavailable", iamerr.ErrInternal)
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+realmColumns+` from core.realms order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []realm.Realm
	for rows.Next() {
		var (
			r          realm.Realm
			desc       sql.NullString
			accessSec  int64
			refreshSec int64
		)
		if err := rows.Scan(&r.ID, &r.PublicUUID, &r.StorageNamespace, &r.Name, &desc,
			&r.Signing.Secret, &accessSec, &refreshSec, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			r.Description = desc.String
		}
		r.Signing.AccessTokenTTL = time.Duration(accessSec) * time.Second
		r.Signing.RefreshTokenTTL = time.Duration(refreshSec) * time.Second
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) findRealm(ctx context.Context, where string, arg any) (realm.Realm, error) {
	if s.db == nil {
		return realm.Realm{}, fmt.Errorf("%w: database connection unavailable", iamerr.ErrInternal)
	}
	var (
		r          realm.Realm
		desc       sql.NullString
		accessSec  int64
		refreshSec int64
	)
	err := s.db.QueryRowContext(ctx,
		`select `+realmColumns+` from core.realms where `+where, arg,
	).Scan(&r.ID, &r.PublicUUID, &r.StorageNamespace, &r.Name, &desc,
		&r.Signing.Secret, &accessSec, &refreshSec, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return realm.Realm{}, iamerr.ErrNotFound
	}
	if err != nil {
		return realm.Realm{}, err
	}
	if desc.Valid {
		r.Description = desc.String
	}
	r.Signing.AccessTokenTTL = time.Duration(accessSec) * time.Second
	r.Signing.RefreshTokenTTL = time.Duration(refreshSec) * time.Second
	return r, nil
}

// Update applies partial changes to a realm row.
func (s *Store) Update(ctx context.Context, id string, upd realm.Update) (realm.Realm, error) {
	if s.db == nil {
		return realm.Realm{}, fmt.Errorf("%w: database connection unavailable", iamerr.ErrInternal)
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if upd.Signing != nil {
		if upd.Signing.Secret != "" {
			sets = append(sets, fmt.Sprintf("signing_secret = $%d", idx))
			args = append(args, upd.Signing.Secret)
			idx++
		}
		if upd.Signing.AccessTokenTTL > 0 {
			sets = append(sets, fmt.Sprintf("access_token_ttl_seconds = $%d", idx))
			args = append(args, int64(upd.Signing.AccessTokenTTL/time.Second))
			idx++
		}
		if upd.Signing.RefreshTokenTTL > 0 {
			sets = append(sets, fmt.Sprintf("refresh_token_ttl_seconds = $%d", idx))
			args = append(args, int64(upd.Signing.RefreshTokenTTL/time.Second))
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update core.realms set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return realm.Realm{}, iamerr.ErrConflict
			}
			return realm.Realm{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return realm.Realm{}, err
		}
		if aff == 0 {
			return realm.Realm{}, iamerr.ErrNotFound
		}
	}
	return s.FindByID(ctx, id)
}

// Delete removes the directory row only.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("%w: database connection unavailable", iamerr.ErrInternal)
	}
	res, err := s.db.ExecContext(ctx, `delete from core.realms where id = $1`, id)
	if err != nil {
		return err
	}
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
