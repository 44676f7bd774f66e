package authservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/usersvc"
)

// Resolver turns the raw Authorization header of a request into the
// principal it identifies.
type Resolver interface {
	Resolve(ctx context.Context, header string) (authsvc.Principal, error)
}

func New(cfg authsvc.Config, users usersvc.UserRepository, logger log.Logger) Resolver {
	var r Resolver
	{
		r = NewBasicResolver(cfg, users)
		r = LoggingMiddleware(logger)(r)
	}
	return r
}

type basicResolver struct {
	cfg   authsvc.Config
	users usersvc.UserRepository
}

func NewBasicResolver(cfg authsvc.Config, users usersvc.UserRepository) Resolver {
	return basicResolver{cfg: cfg, users: users}
}

func (r basicResolver) Resolve(ctx context.Context, header string) (authsvc.Principal, error) {
	token, err := bearerToken(header)
	if err != nil {
		return authsvc.Principal{}, err
	}

	id, err := verify(r.cfg, token)
	if err != nil {
		return authsvc.Principal{}, err
	}

	user, err := r.users.User(ctx, id)
	switch {
	case errors.Is(err, usersvc.ErrUserNotFound):
		return authsvc.Principal{}, authsvc.ErrPrincipalNotFound
	case err != nil:
		return authsvc.Principal{}, fmt.Errorf("resolving user: %w", err)
	}

	return authsvc.Principal{ID: user.ID, Name: user.Name}, nil
}
