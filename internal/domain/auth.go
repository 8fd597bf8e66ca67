package domain

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/authenticator"
	"github.com/gritlabs/backend/pkg/crypto"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type AuthDomain interface {
	OAuth2Verify(context.Context, *model.OAuth2VerifyRequest) (*model.OAuth2VerifyResponse, error)
	OAuth2Link(context.Context, *model.OAuth2LinkRequest) (*model.OAuth2LinkResponse, error)
	WalletLogin(context.Context, *model.WalletLoginRequest) (*model.WalletLoginResponse, error)
	WalletVerify(context.Context, *model.WalletVerifyRequest) (*model.WalletVerifyResponse, error)
	WalletLink(context.Context, *model.WalletLinkRequest) (*model.WalletLinkResponse, error)
	Refresh(context.Context, *model.RefreshTokenRequest) (*model.RefreshTokenResponse, error)
}

type authDomain struct {
	hasSuperAdmin      bool
	hasSuperAdminMutex sync.Mutex

	userRepo         repository.UserRepository
	credentialRepo   repository.CredentialRepository
	refreshTokenRepo repository.RefreshTokenRepository
	outboxRepo       repository.OutboxRepository
	ledger           client.Ledger
	oauth2Services   []authenticator.IOAuth2Service
}

func NewAuthDomain(
	userRepo repository.UserRepository,
	credentialRepo repository.CredentialRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	outboxRepo repository.OutboxRepository,
	ledger client.Ledger,
	oauth2Services []authenticator.IOAuth2Service,
) *authDomain {
	return &authDomain{
		userRepo:         userRepo,
		credentialRepo:   credentialRepo,
		refreshTokenRepo: refreshTokenRepo,
		outboxRepo:       outboxRepo,
		ledger:           ledger,
		oauth2Services:   oauth2Services,
	}
}

func (d *authDomain) OAuth2Verify(
	ctx context.Context, req *model.OAuth2VerifyRequest,
) (*model.OAuth2VerifyResponse, error) {
	serviceUser, serviceName, err := d.verifyOAuth2(ctx, req.Type, req.AccessToken, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, err := d.userRepo.GetByServiceUserID(ctx, serviceName, serviceUser.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			xcontext.Logger(ctx).Errorf("Cannot get user by service user id: %v", err)
			return nil, errorx.Unknown
		}

		user = &entity.User{
			Base: entity.Base{ID: uuid.NewString()},
			Name: serviceUser.ID,
		}

		if err := d.createUser(ctx, user); err != nil {
			return nil, err
		}

		_, err = linkCredential(ctx, d.userRepo, d.credentialRepo, d.outboxRepo, d.ledger,
			user, serviceName, serviceUser.ID)
		if err != nil {
			return nil, err
		}
	}

	accessToken, refreshToken, err := d.generateTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	credentials, err := d.credentialRepo.GetAllByUserID(ctx, user.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get credentials: %v", err)
		return nil, errorx.Unknown
	}

	return &model.OAuth2VerifyResponse{
		User:         model.ConvertUser(user, credentials),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (d *authDomain) OAuth2Link(
	ctx context.Context, req *model.OAuth2LinkRequest,
) (*model.OAuth2LinkResponse, error) {
	serviceUser, serviceName, err := d.verifyOAuth2(ctx, req.Type, req.AccessToken, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, err := d.userRepo.GetByID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	_, err = linkCredential(ctx, d.userRepo, d.credentialRepo, d.outboxRepo, d.ledger,
		user, serviceName, serviceUser.ID)
	if err != nil {
		return nil, err
	}

	return &model.OAuth2LinkResponse{}, nil
}

func (d *authDomain) WalletLogin(
	ctx context.Context, req *model.WalletLoginRequest,
) (*model.WalletLoginResponse, error) {
	if !ethcommon.IsHexAddress(req.Address) {
		return nil, errorx.New(errorx.BadRequest, "Invalid wallet address")
	}

	nonce, err := crypto.GenerateRandomString()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate random string: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.saveWalletSession(ctx, req.Address, nonce); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot save wallet session: %v", err)
		return nil, errorx.Unknown
	}

	return &model.WalletLoginResponse{Address: req.Address, Nonce: nonce}, nil
}

func (d *authDomain) WalletVerify(
	ctx context.Context, req *model.WalletVerifyRequest,
) (*model.WalletVerifyResponse, error) {
	address, err := d.verifyWalletAnswer(ctx, req.Signature)
	if err != nil {
		return nil, err
	}

	user, err := d.userRepo.GetByWalletAddress(ctx, address)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			xcontext.Logger(ctx).Errorf("Cannot get user by wallet address: %v", err)
			return nil, errorx.Unknown
		}

		user = &entity.User{
			Base:          entity.Base{ID: uuid.NewString()},
			Name:          address,
			WalletAddress: sql.NullString{Valid: true, String: address},
		}

		if err := d.createUser(ctx, user); err != nil {
			return nil, err
		}
	}

	_, err = linkCredential(ctx, d.userRepo, d.credentialRepo, d.outboxRepo, d.ledger,
		user, entity.WalletService, strings.ToLower(address))
	if err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := d.generateTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	credentials, err := d.credentialRepo.GetAllByUserID(ctx, user.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get credentials: %v", err)
		return nil, errorx.Unknown
	}

	return &model.WalletVerifyResponse{
		User:         model.ConvertUser(user, credentials),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (d *authDomain) WalletLink(
	ctx context.Context, req *model.WalletLinkRequest,
) (*model.WalletLinkResponse, error) {
	address, err := d.verifyWalletAnswer(ctx, req.Signature)
	if err != nil {
		return nil, err
	}

	user, err := d.userRepo.GetByID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	_, err = linkCredential(ctx, d.userRepo, d.credentialRepo, d.outboxRepo, d.ledger,
		user, entity.WalletService, strings.ToLower(address))
	if err != nil {
		return nil, err
	}

	if !user.WalletAddress.Valid {
		err = d.userRepo.UpdateByID(ctx, user.ID, &entity.User{
			WalletAddress: sql.NullString{Valid: true, String: address},
		})
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot link user with address: %v", err)
			return nil, errorx.Unknown
		}
	}

	return &model.WalletLinkResponse{}, nil
}

func (d *authDomain) Refresh(
	ctx context.Context, req *model.RefreshTokenRequest,
) (*model.RefreshTokenResponse, error) {
	// Verify the refresh token from client.
	refreshToken := model.RefreshToken{}
	err := xcontext.TokenEngine(ctx).Verify(req.RefreshToken, &refreshToken)
	if err != nil {
		xcontext.Logger(ctx).Debugf("Failed to verify refresh token: %v", err)
		return nil, errorx.Unknown
	}

	// Load the storage refresh token from database.
	hashedFamily := crypto.SHA256([]byte(refreshToken.Family))
	storageToken, err := d.refreshTokenRepo.Get(ctx, hashedFamily)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get refresh token family %s: %v", refreshToken.Family, err)
		return nil, errorx.Unknown
	}

	// Check the expiration of storage refresh token.
	if storageToken.Expiration.Before(time.Now()) {
		return nil, errorx.New(errorx.TokenExpired, "Your refresh token is expired")
	}

	// Check if refresh token is stolen or invalid.
	// NOTE: DO NOT create transaction here. The delete and rotate query is independent.
	if refreshToken.Counter != storageToken.Counter {
		err = d.refreshTokenRepo.Delete(ctx, hashedFamily)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot delete refresh token: %v", err)
			return nil, errorx.Unknown
		}

		return nil, errorx.New(errorx.StolenDetected,
			"Your refresh token will be revoked because it is detected as stolen")
	}

	// Rotate the refresh token by increasing counter by 1.
	err = d.refreshTokenRepo.Rotate(ctx, hashedFamily)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot rotate the refresh token: %v", err)
		return nil, errorx.Unknown
	}

	newRefreshToken, err := xcontext.TokenEngine(ctx).Generate(
		xcontext.Configs(ctx).Auth.RefreshToken.Expiration,
		model.RefreshToken{
			Family:  refreshToken.Family,
			Counter: refreshToken.Counter + 1,
		})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate refresh token: %v", err)
		return nil, errorx.Unknown
	}

	user, err := d.userRepo.GetByID(ctx, storageToken.UserID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	newAccessToken, err := xcontext.TokenEngine(ctx).Generate(
		xcontext.Configs(ctx).Auth.AccessToken.Expiration,
		model.AccessToken{
			ID:      user.ID,
			Name:    user.Name,
			Address: user.WalletAddress.String,
		})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate access token: %v", err)
		return nil, errorx.Unknown
	}

	return &model.RefreshTokenResponse{
		AccessToken:  newAccessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

func (d *authDomain) verifyOAuth2(
	ctx context.Context, serviceType, accessToken, idToken string,
) (authenticator.OAuth2User, string, error) {
	service, ok := d.getOAuth2Service(serviceType)
	if !ok {
		return authenticator.OAuth2User{}, "",
			errorx.New(errorx.BadRequest, "Unsupported type %s", serviceType)
	}

	var serviceUser authenticator.OAuth2User
	var err error
	var oauth2Method string
	if accessToken != "" {
		oauth2Method = "access token"
		serviceUser, err = service.GetUserID(ctx, accessToken)
	} else if idToken != "" {
		oauth2Method = "id token"
		serviceUser, err = service.VerifyIDToken(ctx, idToken)
	}

	if oauth2Method == "" {
		return authenticator.OAuth2User{}, "",
			errorx.New(errorx.BadRequest, "Please provide at least one method to authorize")
	}

	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot verify %s: %v", oauth2Method, err)
		return authenticator.OAuth2User{}, "", errorx.Unknown
	}

	return serviceUser, service.Service(), nil
}

func (d *authDomain) getOAuth2Service(service string) (authenticator.IOAuth2Service, bool) {
	for i := range d.oauth2Services {
		if d.oauth2Services[i].Service() == service {
			return d.oauth2Services[i], true
		}
	}
	return nil, false
}

func (d *authDomain) generateTokens(ctx context.Context, user *entity.User) (string, string, error) {
	refreshTokenFamily, err := crypto.GenerateRandomString()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate random string: %v", err)
		return "", "", errorx.Unknown
	}

	refreshToken, err := xcontext.TokenEngine(ctx).Generate(
		xcontext.Configs(ctx).Auth.RefreshToken.Expiration,
		model.RefreshToken{
			Family:  refreshTokenFamily,
			Counter: 0,
		})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate refresh token: %v", err)
		return "", "", errorx.Unknown
	}

	err = d.refreshTokenRepo.Create(ctx, &entity.RefreshToken{
		UserID:     user.ID,
		Family:     crypto.SHA256([]byte(refreshTokenFamily)),
		Counter:    0,
		Expiration: time.Now().Add(xcontext.Configs(ctx).Auth.RefreshToken.Expiration),
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot store refresh token: %v", err)
		return "", "", errorx.Unknown
	}

	accessToken, err := xcontext.TokenEngine(ctx).Generate(
		xcontext.Configs(ctx).Auth.AccessToken.Expiration,
		model.AccessToken{
			ID:      user.ID,
			Name:    user.Name,
			Address: user.WalletAddress.String,
		})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate access token: %v", err)
		return "", "", errorx.Unknown
	}

	return accessToken, refreshToken, nil
}

func (d *authDomain) saveWalletSession(ctx context.Context, address, nonce string) error {
	cfg := xcontext.Configs(ctx).Session
	session, _ := xcontext.SessionStore(ctx).Get(xcontext.HTTPRequest(ctx), cfg.Name)
	session.Values["address"] = address
	session.Values["nonce"] = nonce
	return session.Save(xcontext.HTTPRequest(ctx), xcontext.HTTPWriter(ctx))
}

func (d *authDomain) popWalletSession(ctx context.Context) (string, string, error) {
	cfg := xcontext.Configs(ctx).Session
	session, err := xcontext.SessionStore(ctx).Get(xcontext.HTTPRequest(ctx), cfg.Name)
	if err != nil {
		return "", "", err
	}

	address, ok := session.Values["address"].(string)
	if !ok {
		return "", "", errors.New("no address in session")
	}

	nonce, ok := session.Values["nonce"].(string)
	if !ok {
		return "", "", errors.New("no nonce in session")
	}

	// The nonce is single use.
	session.Options.MaxAge = -1
	if err := session.Save(xcontext.HTTPRequest(ctx), xcontext.HTTPWriter(ctx)); err != nil {
		return "", "", err
	}

	return address, nonce, nil
}

// verifyWalletAnswer checks the signature over the session nonce and returns
// the session address on success.
func (d *authDomain) verifyWalletAnswer(ctx context.Context, hexSignature string) (string, error) {
	sessionAddress, sessionNonce, err := d.popWalletSession(ctx)
	if err != nil {
		xcontext.Logger(ctx).Debugf("Cannot load wallet session: %v", err)
		return "", errorx.New(errorx.BadRequest, "You need to request a login nonce first")
	}

	hash := accounts.TextHash([]byte(sessionNonce))
	signature, err := hexutil.Decode(hexSignature)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot decode signature: %v", err)
		return "", errorx.Unknown
	}

	if signature[ethcrypto.RecoveryIDOffset] == 27 || signature[ethcrypto.RecoveryIDOffset] == 28 {
		signature[ethcrypto.RecoveryIDOffset] -= 27 // Transform yellow paper V from 27/28 to 0/1
	}

	recovered, err := ethcrypto.SigToPub(hash, signature)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot recover signature to address: %v", err)
		return "", errorx.Unknown
	}

	recoveredAddr := ethcrypto.PubkeyToAddress(*recovered)
	if !bytes.Equal(recoveredAddr.Bytes(), ethcommon.HexToAddress(sessionAddress).Bytes()) {
		return "", errorx.New(errorx.BadRequest, "Mismatched address")
	}

	return sessionAddress, nil
}

func (d *authDomain) createUser(ctx context.Context, user *entity.User) error {
	user.Role = entity.UserRole

	// The first user ever created becomes the super admin.
	if !d.hasSuperAdmin {
		d.hasSuperAdminMutex.Lock()
		defer d.hasSuperAdminMutex.Unlock()

		if !d.hasSuperAdmin {
			count, err := d.userRepo.Count(ctx)
			if err != nil {
				xcontext.Logger(ctx).Errorf("Cannot count number of user records: %v", err)
				return errorx.Unknown
			}

			if count == 0 {
				user.Role = entity.SuperAdminRole
			}
		}
	}

	if err := d.userRepo.Create(ctx, user); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create user: %v", err)
		return errorx.Unknown
	}

	if !d.hasSuperAdmin {
		d.hasSuperAdmin = true
	}

	return nil
}
