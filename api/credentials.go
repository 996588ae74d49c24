package api

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"todo-api/domain"
	"todo-api/storage"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 100
	maxEmailLen    = 256
)

// ErrInvalidCredentials covers both an unknown email and a wrong password.
// The two cases are never distinguished to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// PolicyError reports a password or email that fails the registration
// policy. Its message is safe to show to the client.
type PolicyError struct {
	Reason string
}

func (e PolicyError) Error() string { return e.Reason }

// Credentials issues and verifies user identities against the backing
// store. Passwords are stored as bcrypt hashes and verified on demand.
type Credentials struct {
	store Storage
}

// NewCredentials creates a credential service over the given store.
func NewCredentials(store Storage) *Credentials {
	return &Credentials{store: store}
}

// Register creates an identity for the email. Duplicate emails surface as
// storage.ErrEmailTaken with no state change.
func (c *Credentials) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := c.store.InsertUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate verifies an email/password pair. Unknown email and wrong
// password collapse into the same ErrInvalidCredentials result so the
// response never reveals whether the account exists.
func (c *Credentials) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := c.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen {
		return PolicyError{Reason: "email must be between 1 and 256 characters"}
	}
	at := -1
	for i, r := range email {
		if r == '@' {
			if at >= 0 {
				return PolicyError{Reason: "invalid email format"}
			}
			at = i
		}
	}
	if at <= 0 || at == len(email)-1 {
		return PolicyError{Reason: "invalid email format"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return PolicyError{Reason: fmt.Sprintf("password must be between %d and %d characters", minPasswordLen, maxPasswordLen)}
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return PolicyError{Reason: "password must contain an uppercase letter, a lowercase letter, a digit and a symbol"}
	}
	return nil
}
