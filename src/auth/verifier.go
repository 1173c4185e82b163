package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"market-pulse/src/helpers"
)

// -----------------------------------------------------------------------------
// Verifier resolves bearer tokens to user ids. Tokens are HMAC-signed with
// the shared secret and must carry the user id in the subject claim.
// -----------------------------------------------------------------------------

type Verifier struct {
	secret []byte
}

// -----------------------------------------------------------------------------

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// -----------------------------------------------------------------------------

// Verify validates the token signature and expiry and returns the subject.
func (v *Verifier) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", helpers.NewAuthError("invalid token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", helpers.NewAuthError("invalid token", nil)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", helpers.NewAuthError("token carries no subject", err)
	}
	return subject, nil
}
