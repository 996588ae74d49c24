package api

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"todo-api/domain"
)

// Issuer mints signed, time-limited tokens binding a user identity to its
// claims. Issuing has no side effects; the token is a pure function of the
// user, the clock and the signing config.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration

	now func() time.Time
}

// NewIssuer creates a token issuer. The TTL is expressed in whole minutes
// to match the configuration surface.
func NewIssuer(secret []byte, issuer, audience string, ttlMinutes int) *Issuer {
	return &Issuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		ttl:      time.Duration(ttlMinutes) * time.Minute,
		now:      time.Now,
	}
}

// Issue signs a token for the given user. The subject and name-identifier
// claims both carry the stable user id; the email travels as its own claim.
func (i *Issuer) Issue(user domain.User) (string, error) {
	now := i.now().UTC()
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"email":  user.Email,
		"nameid": user.ID,
		"jti":    uuid.NewString(),
		"iss":    i.issuer,
		"aud":    i.audience,
		"iat":    now.Unix(),
		"exp":    now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
