package tenant

import (
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"realmgate.org/internal/iamerr"
)

func TestHandleConcurrentGetOrCreate(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	router := NewRouter(db)

	const workers = 64
	handles := make([]*Handle, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := router.Handle("tenant_alpha")
			if err != nil {
				t.Errorf("Handle: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	// Exactly one logical handle per namespace, even under concurrent
	// first access.
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("handle %d diverged: %p != %p", i, handles[i], handles[0])
		}
	}
}

func TestHandleDistinctNamespaces(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	router := NewRouter(db)
	a, err := router.Handle("tenant_a")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	b, err := router.Handle("tenant_b")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct handles for distinct namespaces")
	}
	if a.Namespace() != "tenant_a" || b.Namespace() != "tenant_b" {
		t.Fatalf("unexpected namespaces: %s, %s", a.Namespace(), b.Namespace())
	}
	if a.DB() != b.DB() {
		t.Fatal("handles must share the one physical connection")
	}
}

func TestHandleUninitializedConnection(t *testing.T) {
	router := NewRouter(nil)
	_, err := router.Handle("tenant_a")
	if !errors.Is(err, iamerr.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestHandleRejectsUnsafeNamespace(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	router := NewRouter(db)
	for _, ns := range []string{"", "Tenant", `x";drop schema core`, "1tenant", "a b"} {
		if _, err := router.Handle(ns); !errors.Is(err, iamerr.ErrInvalidInput) {
			t.Fatalf("namespace %q: expected ErrInvalidInput, got %v", ns, err)
		}
	}
}

func TestRelQualifiesSchema(t *testing.T) {
	h := &Handle{namespace: "tenant_a"}
	if got := h.Rel("accounts"); got != `"tenant_a".accounts` {
		t.Fatalf("unexpected relation: %s", got)
	}
}
