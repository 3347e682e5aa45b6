// Package tenant routes storage-namespace names onto reusable handles
// over one shared physical Postgres connection pool. Each tenant's data
// lives in its own schema; a handle qualifies every relation with the
// tenant schema name.
package tenant

import (
	"database/sql"
	"fmt"
	"sync"

	"realmgate.org/internal/iamerr"
	"realmgate.org/internal/ids"
)

// Handle is a reference to one tenant's logical database. Handles are
// cheap, immutable and shared; they stay valid until the router's
// underlying connection is closed.
type Handle struct {
	db        *sql.DB
	namespace string
}

// DB exposes the shared connection pool.
func (h *Handle) DB() *sql.DB { return h.db }

// Namespace returns the schema name this handle is bound to.
func (h *Handle) Namespace() string { return h.namespace }

// Rel qualifies a relation name with the tenant schema.
func (h *Handle) Rel(name string) string {
	return fmt.Sprintf("%q.%s", h.namespace, name)
}

// Router caches namespace handles. Entries are write-once-per-key;
// sync.Map's LoadOrStore gives the idempotent get-or-create required
// under concurrent first access.
type Router struct {
	db      *sql.DB
	handles sync.Map // namespace -> *Handle
}

// NewRouter constructs a Router over the shared physical connection.
func NewRouter(db *sql.DB) *Router {
	return &Router{db: db}
}

// Handle returns the cached handle for namespace, materializing it on
// first access. Concurrent first access for the same namespace yields the
// same handle.
func (r *Router) Handle(namespace string) (*Handle, error) {
	if r.db == nil {
		return nil, fmt.Errorf("%w: physical connection not initialized", iamerr.ErrInternal)
	}
	// Namespace names come out of the directory, but they still must be
	// safe to splice into DDL/DML as identifiers.
	if !ids.ValidNamespace(namespace) {
		return nil, fmt.Errorf("%w: invalid storage namespace %q", iamerr.ErrInvalidInput, namespace)
	}
	if v, ok := r.handles.Load(namespace); ok {
		return v.(*Handle), nil
	}
	h := &Handle{db: r.db, namespace: namespace}
	actual, _ := r.handles.LoadOrStore(namespace, h)
	return actual.(*Handle), nil
}

// Close shuts down the shared physical connection, invalidating every
// handle at once. Handles are never evicted individually.
func (r *Router) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
