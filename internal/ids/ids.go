package ids

import (
	mathrand "math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// namespaceRe matches names that are safe to splice into SQL as
// schema identifiers.
var namespaceRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewNamespace derives a storage-namespace name from a fresh identifier.
// The result is a valid lower-case SQL identifier.
func NewNamespace() string {
	return "tenant_" + strings.ToLower(New())
}

// ValidNamespace reports whether s may be used as a storage-namespace
// name.
func ValidNamespace(s string) bool {
	return namespaceRe.MatchString(s)
}
