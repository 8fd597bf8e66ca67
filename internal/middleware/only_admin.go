package middleware

import (
	"context"

	"github.com/gritlabs/backend/internal/common"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/router"
)

type OnlyAdmin struct {
	allowListVerifier *common.AllowListVerifier
}

func NewOnlyAdmin(principals []string, userRepo repository.UserRepository) *OnlyAdmin {
	return &OnlyAdmin{
		allowListVerifier: common.NewAllowListVerifier(principals, userRepo),
	}
}

func (a *OnlyAdmin) Middleware() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		if err := a.allowListVerifier.Verify(ctx); err != nil {
			return nil, errorx.New(errorx.PermissionDenied, "Permission denied")
		}

		return nil, nil
	}
}
