package authservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskkeeper/authsvc"
)

type Middleware func(Resolver) Resolver

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Resolver) Resolver {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Resolver
}

func (mw loggingMiddleware) Resolve(ctx context.Context, header string) (p authsvc.Principal, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Resolve",
			"user_id", p.ID,
			"err", err,
		)
	}()
	return mw.next.Resolve(ctx, header)
}
