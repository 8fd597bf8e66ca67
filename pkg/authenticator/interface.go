package authenticator

import (
	"context"
	"time"
)

type OAuth2User struct {
	ID       string
	Username string
}

type IOAuth2Service interface {
	Service() string
	GetUserID(ctx context.Context, accessToken string) (OAuth2User, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (OAuth2User, error)
}

type TokenEngine interface {
	Generate(expiration time.Duration, obj any) (string, error)
	Verify(token string, obj any) error
}
