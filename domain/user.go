package domain

import "strings"

// User is a registered identity. The password hash never leaves the server.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
}

// NormalizeEmail canonicalizes an address for lookup and uniqueness checks.
// Email comparison is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
