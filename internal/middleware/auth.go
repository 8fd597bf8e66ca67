package middleware

import (
	"context"
	"strings"

	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/router"
	"github.com/gritlabs/backend/pkg/xcontext"
)

// WithAuthentication extracts the access token from the Authorization header
// or the token cookie and puts the verified user id into the context. Requests
// without a token pass through anonymously, handlers that need a user pair it
// with Authenticate.
func WithAuthentication() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		token := ""
		if authorization := xcontext.HTTPRequest(ctx).Header.Get("Authorization"); authorization != "" {
			token = strings.TrimPrefix(authorization, "Bearer ")
		} else {
			cookie, err := xcontext.HTTPRequest(ctx).Cookie(
				xcontext.Configs(ctx).Auth.AccessToken.Name)
			if err == nil {
				token = cookie.Value
			}
		}

		if token == "" {
			return nil, nil
		}

		var info model.AccessToken
		if err := xcontext.TokenEngine(ctx).Verify(token, &info); err != nil {
			return nil, errorx.New(errorx.TokenExpired, "Your session is expired")
		}

		return xcontext.WithRequestUserID(ctx, info.ID), nil
	}
}

// Authenticate rejects anonymous requests.
func Authenticate() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		if xcontext.RequestUserID(ctx) == "" {
			return nil, errorx.New(errorx.Unauthenticated, "You need to authenticate before")
		}

		return nil, nil
	}
}
