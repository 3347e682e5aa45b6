package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"realmgate.org/internal/iamerr"
)

// HashPassword hashes a plaintext password with bcrypt at default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", iamerr.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
// Deactivated accounts carry an empty hash and never verify.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return iamerr.ErrUnauthorized
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
