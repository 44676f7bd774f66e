package authservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type userRepository map[string]usersvc.User

func (r userRepository) User(_ context.Context, id string) (usersvc.User, error) {
	u, ok := r[id]
	if !ok {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	return u, nil
}

type failingUserRepository struct{ err error }

func (r failingUserRepository) User(context.Context, string) (usersvc.User, error) {
	return usersvc.User{}, r.err
}

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func expiresIn(d time.Duration) *jwt.NumericDate {
	return jwt.NewNumericDate(time.Now().Add(d))
}

func TestResolve(t *testing.T) {
	users := userRepository{"u1": {ID: "u1", Name: "Ada"}}
	r := New(authsvc.Config{AccessSecret: secret}, users, log.NewNopLogger())

	valid := sign(t, jwt.SigningMethodHS256, secret, Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
	})

	tests := []struct {
		name   string
		header string
		want   authsvc.Principal
		err    error
	}{
		{
			name:   "valid id claim",
			header: "Bearer " + valid,
			want:   authsvc.Principal{ID: "u1", Name: "Ada"},
		},
		{
			name: "valid sub claim",
			header: "Bearer " + sign(t, jwt.SigningMethodHS512, secret, jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: expiresIn(time.Hour),
			}),
			want: authsvc.Principal{ID: "u1", Name: "Ada"},
		},
		{name: "no header", header: "", err: authsvc.ErrNoCredential},
		{name: "wrong scheme", header: "Basic " + valid, err: authsvc.ErrNoCredential},
		{name: "lowercase scheme", header: "bearer " + valid, err: authsvc.ErrNoCredential},
		{name: "scheme only", header: "Bearer ", err: authsvc.ErrNoCredential},
		{name: "extra field", header: "Bearer " + valid + " extra", err: authsvc.ErrNoCredential},
		{name: "garbage token", header: "Bearer not.a.jwt", err: authsvc.ErrInvalidCredential},
		{
			name: "expired",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, secret, Claims{
				UserID:           "u1",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(-time.Minute)},
			}),
			err: authsvc.ErrCredentialExpired,
		},
		{
			name: "expired with wrong secret",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{
				UserID:           "u1",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(-time.Minute)},
			}),
			err: authsvc.ErrInvalidCredential,
		},
		{
			name: "wrong secret",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{
				UserID:           "u1",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
			}),
			err: authsvc.ErrInvalidCredential,
		},
		{
			name: "unsigned",
			header: "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{
				UserID:           "u1",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
			}),
			err: authsvc.ErrInvalidCredential,
		},
		{
			name:   "no expiry",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, secret, Claims{UserID: "u1"}),
			err:    authsvc.ErrInvalidCredential,
		},
		{
			name: "no subject",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, secret, Claims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
			}),
			err: authsvc.ErrInvalidCredential,
		},
		{
			name: "deleted account",
			header: "Bearer " + sign(t, jwt.SigningMethodHS256, secret, Claims{
				UserID:           "gone",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
			}),
			err: authsvc.ErrPrincipalNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(context.Background(), tt.header)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.True(t, authsvc.IsUnauthorized(err))
				assert.Equal(t, authsvc.Principal{}, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestResolve_Leeway(t *testing.T) {
	users := userRepository{"u1": {ID: "u1"}}
	token := sign(t, jwt.SigningMethodHS256, secret, Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(-30 * time.Second)},
	})

	strict := NewBasicResolver(authsvc.Config{AccessSecret: secret}, users)
	_, err := strict.Resolve(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, authsvc.ErrCredentialExpired)

	lenient := NewBasicResolver(authsvc.Config{AccessSecret: secret, Leeway: time.Minute}, users)
	p, err := lenient.Resolve(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
}

func TestResolve_StorageFailure(t *testing.T) {
	cause := errors.New("connection refused")
	r := NewBasicResolver(authsvc.Config{AccessSecret: secret}, failingUserRepository{cause})

	token := sign(t, jwt.SigningMethodHS256, secret, Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expiresIn(time.Hour)},
	})

	_, err := r.Resolve(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, cause)
	assert.False(t, authsvc.IsUnauthorized(err))
}
