// Package auth extracts the caller's user id from the X-Auth-User token.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const Header = "X-Auth-User"

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid auth token")
)

// Resolver reads the subject claim of a JWT. Without a secret the token is
// only decoded: the upstream gateway is trusted to have verified it. With a
// secret, HMAC signatures are checked as well.
type Resolver struct {
	secret []byte
	parser *jwt.Parser
}

func NewResolver(secret string) *Resolver {
	r := &Resolver{parser: jwt.NewParser()}
	if secret != "" {
		r.secret = []byte(secret)
		r.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}
	return r
}

// Subject returns the sub claim of the token in header.
func (r *Resolver) Subject(header string) (string, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}

	var claims jwt.RegisteredClaims
	if r.secret == nil {
		if _, _, err := r.parser.ParseUnverified(token, &claims); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, err := r.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return r.secret, nil
		}); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
