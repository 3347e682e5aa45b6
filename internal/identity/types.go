// Package identity holds per-tenant records: accounts, groups, roles,
// policies and the association edges linking them, together with the
// membership resolver that closes over all policy-assignment paths.
package identity

import "time"

// Email is one address attached to an account. Non-empty address lists
// carry exactly one primary.
type Email struct {
	Email     string `json:"email"`
	IsPrimary bool   `json:"isPrimary"`
}

// Account is a principal. Accounts are soft-deleted: removal clears
// emails and the password hash rather than deleting the row, so edge
// records stay structurally valid and resolve to an inactive principal.
type Account struct {
	ID           string    `json:"id"`
	Emails       []Email   `json:"emails"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PrimaryEmail returns the primary address, or "" for deactivated
// accounts.
func (a Account) PrimaryEmail() string {
	for _, e := range a.Emails {
		if e.IsPrimary {
			return e.Email
		}
	}
	return ""
}

// Group is a named set of accounts.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Role is a named grant bundle. Permissions is a legacy free-form list
// kept for compatibility; the evaluator only considers policies.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}
