package authtransport

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/ichigozero/taskkeeper/authsvc"
	"github.com/ichigozero/taskkeeper/authsvc/pkg/authservice"
)

// NewAuthenticator resolves the request's Authorization header before
// next runs and stores the principal in the context. The header must
// have been put there by httptransport.PopulateRequestContext.
func NewAuthenticator(r authservice.Resolver) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			header, _ := ctx.Value(httptransport.ContextKeyRequestAuthorization).(string)

			p, err := r.Resolve(ctx, header)
			if err != nil {
				return nil, err
			}

			ctx = authsvc.NewContext(ctx, p)

			return next(ctx, request)
		}
	}
}
