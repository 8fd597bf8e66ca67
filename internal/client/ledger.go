package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/pkg/api"
)

// Account is the canonical identity held by the external points ledger. It is
// never stored locally, local users point at it through AccountRef.
type Account struct {
	ID          string
	Points      int64
	CurrencyRef string
}

// Ledger is the surface of the external account-balance service. Find calls
// return (nil, nil) when the identifier is unknown there, meaning the holder
// is not onboarded yet.
type Ledger interface {
	FindAccountByCredential(ctx context.Context, service, value string) (*Account, error)
	FindAccountByID(ctx context.Context, accountRef string) (*Account, error)
	AdjustBalance(ctx context.Context, accountRef string, delta int64, memo string) (int64, error)
	LinkCredential(ctx context.Context, service, value, accountRef string) error
}

type ledgerEndpoint struct {
	cfg          config.LedgerConfigs
	apiGenerator api.Generator
}

func NewLedger(cfg config.LedgerConfigs) *ledgerEndpoint {
	return &ledgerEndpoint{
		cfg:          cfg,
		apiGenerator: api.NewGenerator(),
	}
}

func (e *ledgerEndpoint) FindAccountByCredential(
	ctx context.Context, service, value string,
) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.apiGenerator.New(e.cfg.BaseURL, "/accounts/by-credential").
		Query(api.Parameter{"type": service, "value": value}).
		GET(ctx, api.OAuth2("Bearer", e.cfg.APIKey))
	if err != nil {
		return nil, err
	}

	return accountFromResponse(resp)
}

func (e *ledgerEndpoint) FindAccountByID(ctx context.Context, accountRef string) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.apiGenerator.New(e.cfg.BaseURL, "/accounts/%s", accountRef).
		GET(ctx, api.OAuth2("Bearer", e.cfg.APIKey))
	if err != nil {
		return nil, err
	}

	return accountFromResponse(resp)
}

// AdjustBalance applies a signed delta atomically at the ledger and returns
// the new balance. A declined adjustment comes back as an error with the
// ledger's own detail, the caller decides whether to compensate.
func (e *ledgerEndpoint) AdjustBalance(
	ctx context.Context, accountRef string, delta int64, memo string,
) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.apiGenerator.New(e.cfg.BaseURL, "/accounts/%s/adjustments", accountRef).
		Body(api.JSON{"delta": delta, "memo": memo}).
		POST(ctx, api.OAuth2("Bearer", e.cfg.APIKey))
	if err != nil {
		return 0, err
	}

	if resp.Code != http.StatusOK {
		return 0, fmt.Errorf("ledger responded with status %d", resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return 0, errors.New("invalid response")
	}

	success, err := body.GetBool("success")
	if err != nil {
		return 0, err
	}

	if !success {
		detail, _ := body.GetString("error")
		return 0, fmt.Errorf("adjustment declined: %s", detail)
	}

	return body.GetInt("new_balance")
}

func (e *ledgerEndpoint) LinkCredential(ctx context.Context, service, value, accountRef string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.apiGenerator.New(e.cfg.BaseURL, "/credentials/link").
		Body(api.JSON{"type": service, "value": value, "account_ref": accountRef}).
		POST(ctx, api.OAuth2("Bearer", e.cfg.APIKey))
	if err != nil {
		return err
	}

	if resp.Code != http.StatusOK {
		return fmt.Errorf("ledger responded with status %d", resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return errors.New("invalid response")
	}

	success, err := body.GetBool("success")
	if err != nil {
		return err
	}

	if !success {
		return errors.New("ledger refused the credential link")
	}

	return nil
}

func accountFromResponse(resp *api.Response) (*Account, error) {
	if resp.Code == http.StatusNotFound {
		return nil, nil
	}

	if resp.Code != http.StatusOK {
		return nil, fmt.Errorf("ledger responded with status %d", resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return nil, errors.New("invalid response")
	}

	id, err := body.GetString("id")
	if err != nil {
		return nil, err
	}

	points, err := body.GetInt("points")
	if err != nil {
		return nil, err
	}

	currencyRef, _ := body.GetString("currency_ref")

	return &Account{ID: id, Points: points, CurrencyRef: currencyRef}, nil
}
