package authservice

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ichigozero/taskkeeper/authsvc"
)

const bearerPrefix = "Bearer "

// Claims is the access token body. The issuer puts the account id in
// "id"; "sub" is accepted as well.
type Claims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

var signingMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// bearerToken extracts the token from an Authorization header of the
// exact form "Bearer <token>".
func bearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", authsvc.ErrNoCredential
	}
	return token, nil
}

// verify checks signature and expiry and returns the subject id.
func verify(cfg authsvc.Config, token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (interface{}, error) { return cfg.AccessSecret, nil },
		jwt.WithValidMethods(signingMethods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", authsvc.ErrCredentialExpired
	default:
		return "", authsvc.ErrInvalidCredential
	}

	id := claims.subject()
	if id == "" {
		return "", authsvc.ErrInvalidCredential
	}
	return id, nil
}
