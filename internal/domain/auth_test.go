package domain

import (
	"context"
	"testing"
	"time"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/authenticator"
	"github.com/gritlabs/backend/pkg/crypto"
	"github.com/gritlabs/backend/pkg/testutil"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

func newTestAuthDomain(oauth2Services ...authenticator.IOAuth2Service) *authDomain {
	return NewAuthDomain(
		repository.NewUserRepository(),
		repository.NewCredentialRepository(),
		repository.NewRefreshTokenRepository(),
		repository.NewOutboxRepository(),
		testutil.NewInMemoryLedger(),
		oauth2Services,
	)
}

func Test_authDomain_OAuth2Verify(t *testing.T) {
	oauth2Service := testutil.NewMockOAuth2("discord")
	oauth2Service.GetUserIDFunc = func(context.Context, string) (authenticator.OAuth2User, error) {
		return authenticator.OAuth2User{ID: "discord-42"}, nil
	}

	ctx := testutil.MockContext()
	domain := newTestAuthDomain(oauth2Service)

	resp, err := domain.OAuth2Verify(ctx, &model.OAuth2VerifyRequest{
		Type:        "discord",
		AccessToken: "foo",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Len(t, resp.User.Credentials, 1)
	require.Equal(t, "discord-42", resp.User.Credentials[0].ServiceUserID)

	// A second sign-in with the same identity lands on the same user.
	again, err := domain.OAuth2Verify(ctx, &model.OAuth2VerifyRequest{
		Type:        "discord",
		AccessToken: "foo",
	})
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, again.User.ID)

	count, err := repository.NewUserRepository().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func Test_authDomain_OAuth2Verify_unsupportedService(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain()

	_, err := domain.OAuth2Verify(ctx, &model.OAuth2VerifyRequest{
		Type:        "myspace",
		AccessToken: "foo",
	})
	require.Error(t, err)
}

func Test_authDomain_OAuth2Link(t *testing.T) {
	oauth2Service := testutil.NewMockOAuth2("google")
	oauth2Service.GetUserIDFunc = func(context.Context, string) (authenticator.OAuth2User, error) {
		return authenticator.OAuth2User{ID: "someone@example.com"}, nil
	}

	ctx := testutil.MockContext()
	domain := newTestAuthDomain(oauth2Service)

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	_, err = domain.OAuth2Link(
		xcontext.WithRequestUserID(ctx, user.ID),
		&model.OAuth2LinkRequest{Type: "google", AccessToken: "foo"})
	require.NoError(t, err)

	credential, err := repository.NewCredentialRepository().
		GetByServiceUserID(ctx, "google", "someone@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, credential.UserID)
}

func Test_authDomain_Refresh(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	refreshTokenObj := model.RefreshToken{
		Family:  "Foo",
		Counter: 0,
	}

	err = domain.refreshTokenRepo.Create(ctx, &entity.RefreshToken{
		UserID:     user.ID,
		Family:     crypto.SHA256([]byte(refreshTokenObj.Family)),
		Counter:    0,
		Expiration: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	refreshToken, err := xcontext.TokenEngine(ctx).Generate(time.Minute, refreshTokenObj)
	require.NoError(t, err)

	// Successfully for the first refresh.
	resp, err := domain.Refresh(ctx, &model.RefreshTokenRequest{RefreshToken: refreshToken})
	require.NoError(t, err)

	// Verify access token.
	accessToken := model.AccessToken{}
	err = xcontext.TokenEngine(ctx).Verify(resp.AccessToken, &accessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, accessToken.ID)

	// Detect stolen for the second refresh, the refresh token will be deleted
	// after this call.
	_, err = domain.Refresh(ctx, &model.RefreshTokenRequest{RefreshToken: refreshToken})
	require.Error(t, err)
	require.Equal(t, "Your refresh token will be revoked because it is detected as stolen", err.Error())

	// Not found refresh token for the third refresh.
	_, err = domain.Refresh(ctx, &model.RefreshTokenRequest{RefreshToken: refreshToken})
	require.Error(t, err)
	require.Equal(t, "Request failed", err.Error())
}
