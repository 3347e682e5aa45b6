// Package realm implements the tenant directory: the registry mapping a
// public tenant identifier onto an isolated storage namespace and the
// tenant's signing configuration.
package realm

import (
	"context"
	"time"
)

const (
	// DefaultAccessTTL applies when a realm is created without explicit
	// signing configuration.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL applies when a realm is created without explicit
	// signing configuration.
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// SigningConfig holds the per-realm token secret and lifetimes.
type SigningConfig struct {
	Secret          string        `json:"-"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
}

// Realm is one isolated tenant scope.
type Realm struct {
	ID               string        `json:"id"`
	PublicUUID       string        `json:"public_uuid"`
	StorageNamespace string        `json:"-"`
	Name             string        `json:"name"`
	Description      string        `json:"description,omitempty"`
	Signing          SigningConfig `json:"signing"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Update carries optional field changes; nil means leave unchanged.
type Update struct {
	Name        *string
	Description *string
	Signing     *SigningConfig
}

// Store describes directory persistence. Uniqueness of name and
// public_uuid is enforced by the storage layer with atomic inserts;
// violations surface as iamerr.ErrConflict.
type Store interface {
	Insert(ctx context.Context, r *Realm) error
	FindByID(ctx context.Context, id string) (Realm, error)
	FindByPublicUUID(ctx context.Context, publicUUID string) (Realm, error)
	FindByName(ctx context.Context, name string) (Realm, error)
	List(ctx context.Context) ([]Realm, error)
	Update(ctx context.Context, id string, upd Update) (Realm, error)
	Delete(ctx context.Context, id string) error
}

// Namespaces provisions and destroys per-tenant storage namespaces.
type Namespaces interface {
	Create(ctx context.Context, namespace string) error
	Drop(ctx context.Context, namespace string) error
}
