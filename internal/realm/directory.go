package realm

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/ids"
	"realmgate.org/internal/obs"
)

// Directory is the realm registry service. It owns directory writes and
// tenant namespace lifecycle; everything else only reads realms.
type Directory struct {
	store      Store
	namespaces Namespaces
}

// NewDirectory constructs a Directory.
func NewDirectory(store Store, namespaces Namespaces) *Directory {
	return &Directory{store: store, namespaces: namespaces}
}

// CreateParams describes a realm to onboard. PublicUUID and
// StorageNamespace are generated when empty.
type CreateParams struct {
	Name             string
	Description      string
	PublicUUID       string
	StorageNamespace string
	Signing          *SigningConfig
}

// Create registers a realm and provisions its storage namespace. Name and
// publicUUID collisions fail with iamerr.ErrConflict.
func (d *Directory) Create(ctx context.Context, p CreateParams) (Realm, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Realm{}, fmt.Errorf("%w: realm name is required", iamerr.ErrInvalidInput)
	}
	publicUUID := strings.TrimSpace(p.PublicUUID)
	if publicUUID == "" {
		publicUUID = uuid.NewString()
	}
	namespace := strings.TrimSpace(p.StorageNamespace)
	if namespace == "" {
		namespace = ids.NewNamespace()
	} else if !ids.ValidNamespace(namespace) {
		// Reject before the insert so a bad namespace cannot leave a
		// directory row behind with no provisioned schema.
		return Realm{}, fmt.Errorf("%w: invalid storage namespace %q", iamerr.ErrInvalidInput, namespace)
	}
	signing := SigningConfig{
		Secret:          randomSecret(),
		AccessTokenTTL:  DefaultAccessTTL,
		RefreshTokenTTL: DefaultRefreshTTL,
	}
	if p.Signing != nil {
		if p.Signing.Secret != "" {
			signing.Secret = p.Signing.Secret
		}
		if p.Signing.AccessTokenTTL > 0 {
			signing.AccessTokenTTL = p.Signing.AccessTokenTTL
		}
		if p.Signing.RefreshTokenTTL > 0 {
			signing.RefreshTokenTTL = p.Signing.RefreshTokenTTL
		}
	}

	r := Realm{
		ID:               ids.New(),
		PublicUUID:       publicUUID,
		StorageNamespace: namespace,
		Name:             name,
		Description:      strings.TrimSpace(p.Description),
		Signing:          signing,
	}
	if err := d.store.Insert(ctx, &r); err != nil {
		return Realm{}, err
	}
	if err := d.namespaces.Create(ctx, namespace); err != nil {
		return Realm{}, fmt.Errorf("%w: provision namespace %s: %v", iamerr.ErrInternal, namespace, err)
	}
	obs.Logger().Info().Str("realm", r.PublicUUID).Str("namespace", namespace).Msg("realm created")
	return r, nil
}

// FindByID returns the realm with the given internal id.
func (d *Directory) FindByID(ctx context.Context, id string) (Realm, error) {
	return d.store.FindByID(ctx, id)
}

// FindByPublicUUID returns the realm with the given tenant-facing id.
func (d *Directory) FindByPublicUUID(ctx context.Context, publicUUID string) (Realm, error) {
	return d.store.FindByPublicUUID(ctx, publicUUID)
}

// FindByName returns the realm with the given unique name.
func (d *Directory) FindByName(ctx context.Context, name string) (Realm, error) {
	return d.store.FindByName(ctx, strings.TrimSpace(name))
}

// List returns all realms ordered by name.
func (d *Directory) List(ctx context.Context) ([]Realm, error) {
	return d.store.List(ctx)
}

// Update applies partial changes to a realm row.
func (d *Directory) Update(ctx context.Context, id string, upd Update) (Realm, error) {
	return d.store.Update(ctx, id, upd)
}

// Remove deletes the directory row only; the tenant namespace survives.
func (d *Directory) Remove(ctx context.Context, id string) error {
	return d.store.Delete(ctx, id)
}

// DeleteRealmAndDB removes the directory row and then destroys the
// tenant's storage namespace. The order is deliberate: once the row is
// gone, lookups fail fast with NotFound even while teardown is in
// progress. A teardown failure after row removal is fatal and is not
// compensated by re-inserting the row.
func (d *Directory) DeleteRealmAndDB(ctx context.Context, id string) error {
	r, err := d.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := d.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := d.namespaces.Drop(ctx, r.StorageNamespace); err != nil {
		obs.Logger().Error().Err(err).Str("namespace", r.StorageNamespace).Msg("namespace teardown failed after row removal")
		return fmt.Errorf("%w: drop namespace %s: %v", iamerr.ErrInternal, r.StorageNamespace, err)
	}
	return nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// StorageNamespace resolves a public UUID to the realm's namespace name.
func (d *Directory) StorageNamespace(ctx context.Context, publicUUID string) (string, error) {
	r, err := d.store.FindByPublicUUID(ctx, publicUUID)
	if err != nil {
		return "", err
	}
	if r.StorageNamespace == "" {
		// Creation invariants guarantee a namespace; an empty value
		// means the row was corrupted out of band.
		return "", fmt.Errorf("%w: realm %s has no storage namespace", iamerr.ErrInternal, publicUUID)
	}
	return r.StorageNamespace, nil
}
