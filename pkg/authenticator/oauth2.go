package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gritlabs/backend/config"
)

type oauth2Service struct {
	name      string
	clientID  string
	verifyURL string
	idField   string

	provider *oidc.Provider
}

// NewOAuth2Service builds a verifier for one OAuth2 identity provider. The
// issuer is optional; without it only the access-token path (GetUserID) is
// available.
func NewOAuth2Service(ctx context.Context, cfg config.OAuth2Config) (IOAuth2Service, error) {
	service := &oauth2Service{
		name:      cfg.Name,
		clientID:  cfg.ClientID,
		verifyURL: cfg.VerifyURL,
		idField:   cfg.IDField,
	}

	if cfg.Issuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}

		service.provider = provider
	}

	return service, nil
}

func (s *oauth2Service) Service() string {
	return s.name
}

// GetUserID calls the provider's identity endpoint with the user's access
// token and extracts the configured id field.
func (s *oauth2Service) GetUserID(ctx context.Context, accessToken string) (OAuth2User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.verifyURL, nil)
	if err != nil {
		return OAuth2User{}, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return OAuth2User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return OAuth2User{}, fmt.Errorf("got status code %d from %s", resp.StatusCode, s.verifyURL)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return OAuth2User{}, err
	}

	return s.userFromProfile(profile)
}

// VerifyIDToken verifies a raw OIDC id token against the provider and
// extracts the configured id field from its claims.
func (s *oauth2Service) VerifyIDToken(ctx context.Context, rawIDToken string) (OAuth2User, error) {
	if s.provider == nil {
		return OAuth2User{}, fmt.Errorf("service %s doesn't support id token", s.name)
	}

	idToken, err := s.provider.Verifier(&oidc.Config{ClientID: s.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return OAuth2User{}, err
	}

	var profile map[string]any
	if err := idToken.Claims(&profile); err != nil {
		return OAuth2User{}, err
	}

	return s.userFromProfile(profile)
}

func (s *oauth2Service) userFromProfile(profile map[string]any) (OAuth2User, error) {
	id, ok := profile[s.idField].(string)
	if !ok {
		return OAuth2User{}, fmt.Errorf("invalid id field %s", s.idField)
	}

	username, _ := profile["username"].(string)

	// Service user ids are prefixed to keep them unique across providers.
	return OAuth2User{ID: s.name + "_" + id, Username: username}, nil
}
