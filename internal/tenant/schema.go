package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/ids"
)

// Namespaces creates and destroys per-tenant schemas. Realm rows live in
// the shared core schema; everything the tenant owns lives here.
type Namespaces struct {
	db *sql.DB
}

// NewNamespaces constructs a Namespaces bootstrapper.
func NewNamespaces(db *sql.DB) *Namespaces {
	return &Namespaces{db: db}
}

// tenantDDL lists the relations provisioned for every tenant. Edge tables
// carry composite primary keys so duplicate assignments violate a unique
// constraint instead of silently duplicating.
var tenantDDL = []string{
	`create table if not exists %[1]q.accounts (
		id            text primary key,
		emails        jsonb not null default '[]',
		password_hash text,
		is_active     boolean not null default true,
		created_at    timestamptz not null default now(),
		updated_at    timestamptz not null default now()
	)`,
	`create table if not exists %[1]q.groups (
		id          text primary key,
		name        text not null unique,
		description text
	)`,
	`create table if not exists %[1]q.roles (
		id          text primary key,
		name        text not null unique,
		description text,
		permissions jsonb not null default '[]'
	)`,
	`create table if not exists %[1]q.policies (
		id          text primary key,
		version     text not null,
		name        text not null unique,
		description text,
		effect      text not null check (effect in ('Allow','Deny')),
		actions     jsonb not null,
		resources   jsonb not null,
		conditions  jsonb,
		created_at  timestamptz not null default now(),
		updated_at  timestamptz not null default now()
	)`,
	`create table if not exists %[1]q.account_roles (
		account_id text not null,
		role_id    text not null,
		created_at timestamptz not null default now(),
		primary key (account_id, role_id)
	)`,
	`create table if not exists %[1]q.account_groups (
		account_id text not null,
		group_id   text not null,
		created_at timestamptz not null default now(),
		primary key (account_id, group_id)
	)`,
	`create table if not exists %[1]q.account_policies (
		account_id text not null,
		policy_id  text not null,
		created_at timestamptz not null default now(),
		primary key (account_id, policy_id)
	)`,
	`create table if not exists %[1]q.group_roles (
		group_id   text not null,
		role_id    text not null,
		created_at timestamptz not null default now(),
		primary key (group_id, role_id)
	)`,
	`create table if not exists %[1]q.group_policies (
		group_id   text not null,
		policy_id  text not null,
		created_at timestamptz not null default now(),
		primary key (group_id, policy_id)
	)`,
	`create table if not exists %[1]q.role_policies (
		role_id    text not null,
		policy_id  text not null,
		created_at timestamptz not null default now(),
		primary key (role_id, policy_id)
	)`,
}

// Create provisions the tenant schema and its relations. Idempotent.
func (n *Namespaces) Create(ctx context.Context, namespace string) error {
	if n.db == nil {
		return fmt.Errorf("%w: physical connection not initialized", iamerr.ErrInternal)
	}
	if !ids.ValidNamespace(namespace) {
		return fmt.Errorf("%w: invalid storage namespace %q", iamerr.ErrInvalidInput, namespace)
	}
	if _, err := n.db.ExecContext(ctx, fmt.Sprintf(`create schema if not exists %q`, namespace)); err != nil {
		return err
	}
	for _, stmt := range tenantDDL {
		if _, err := n.db.ExecContext(ctx, fmt.Sprintf(stmt, namespace)); err != nil {
			return err
		}
	}
	return nil
}

// Drop destroys the tenant schema and everything in it.
func (n *Namespaces) Drop(ctx context.Context, namespace string) error {
	if n.db == nil {
		return fmt.Errorf("%w: physical connection not initialized", iamerr.ErrInternal)
	}
	if !ids.ValidNamespace(namespace) {
		return fmt.Errorf("%w: invalid storage namespace %q", iamerr.ErrInvalidInput, namespace)
	}
	_, err := n.db.ExecContext(ctx, fmt.Sprintf(`drop schema if exists %q cascade`, namespace))
	return err
}
