package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/realms/abc":                    "/v1/realms/:id",
		"/v1/realms/abc/accounts":           "/v1/realms/:id/accounts",
		"/v1/realms/abc/accounts/a1":        "/v1/realms/:id/accounts/:id",
		"/v1/realms/abc/groups/g1/roles":    "/v1/realms/:id/groups/:id/roles",
		"/v1/realms/abc/groups/g1/roles/r9": "/v1/realms/:id/groups/:id/roles/:id",
		"/v1/auth/login":                    "/v1/auth/login",
		"/v1/auth/login?next=x":             "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
