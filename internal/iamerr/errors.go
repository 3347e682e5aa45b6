// Package iamerr defines the error taxonomy shared by every identity
// component. Callers classify outcomes with errors.Is against these
// sentinels; the HTTP layer maps them onto status codes.
package iamerr

import "errors"

var (
	// ErrNotFound indicates a missing realm, account, group, role,
	// policy or association edge.
	ErrNotFound = errors.New("iam: not found")

	// ErrConflict indicates a unique-constraint violation on create or
	// update. Exactly one of a set of concurrent colliding creates
	// succeeds; the rest receive this error.
	ErrConflict = errors.New("iam: conflict")

	// ErrUnauthorized covers every token verification failure mode.
	// The cause is deliberately not distinguished.
	ErrUnauthorized = errors.New("iam: unauthorized")

	// ErrInvalidInput indicates a value that violates a data-model
	// invariant before it reaches storage.
	ErrInvalidInput = errors.New("iam: invalid input")

	// ErrInternal marks infrastructure failures that are not retried
	// inside the core: storage unreachable, namespace teardown failure.
	ErrInternal = errors.New("iam: internal error")
)
