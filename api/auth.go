package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errInvalidSigningMethod = errors.New("invalid signing method")
	errInvalidClaims        = errors.New("invalid claims")
	errTokenExpired         = errors.New("token expired")
	errTokenNotYetValid     = errors.New("token not valid yet")
	errTokenFromFuture      = errors.New("token used before issued")
	errInvalidAudience      = errors.New("invalid audience")
	errInvalidIssuer        = errors.New("invalid issuer")
	errMissingSubject       = errors.New("missing sub")
)

// Auth validates incoming JWT tokens signed with the shared HMAC secret.
// Claims are verified with zero clock-skew leeway. Callers must surface
// every failure to the client as the same unauthenticated outcome; the
// distinct errors here exist for logging only.
type Auth struct {
	Secret   []byte
	Audience string
	Issuer   string

	parser *jwt.Parser
	now    func() time.Time
}

// NewAuth creates an Auth instance bound to the given secret and expected
// issuer/audience pair.
func NewAuth(secret []byte, audience, issuer string) *Auth {
	return &Auth{
		Secret:   secret,
		Audience: audience,
		Issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromHeader(h)
	if err != nil {
		return "", err
	}
	return a.userIDFromToken(token)
}

func (a *Auth) userIDFromToken(tokenStr string) (string, error) {
	parsedToken, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidSigningMethod
		}
		return a.Secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidClaims
	}

	now := a.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errTokenNotYetValid
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errTokenFromFuture
	}
	if !claims.VerifyAudience(a.Audience, true) {
		return "", errInvalidAudience
	}
	if !claims.VerifyIssuer(a.Issuer, true) {
		return "", errInvalidIssuer
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errMissingSubject
	}

	return sub, nil
}
