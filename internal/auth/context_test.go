package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no principal")
	}

	p := Principal{RealmUUID: "realm-1", AccountID: "acct-1"}
	got, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), p))
	if !ok {
		t.Fatal("principal not recovered from context")
	}
	if got != p {
		t.Fatalf("principal = %+v, want %+v", got, p)
	}
}
