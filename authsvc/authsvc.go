package authsvc

import (
	"context"
	"errors"
	"time"
)

// Config holds the verification settings shared by every request. It is
// built once at startup and never mutated afterwards.
type Config struct {
	AccessSecret []byte
	Leeway       time.Duration
}

// Principal is the identity a verified bearer token resolves to.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type contextKey string

const PrincipalContextKey contextKey = "Principal"

func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(Principal)
	return p, ok
}

var (
	ErrNoCredential      = errors.New("no bearer credential")
	ErrCredentialExpired = errors.New("credential expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrPrincipalNotFound = errors.New("principal not found")
)

// IsUnauthorized reports whether err is one of the credential failures.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNoCredential) ||
		errors.Is(err, ErrCredentialExpired) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrPrincipalNotFound)
}
