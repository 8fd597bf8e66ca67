package common

import (
	"context"
	"testing"

	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

func Test_AccountResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	var lookedUpService, lookedUpValue, lookedUpID string
	ledger := &testutil.MockLedger{
		FindAccountByCredentialFunc: func(ctx context.Context, service, value string) (*client.Account, error) {
			lookedUpService, lookedUpValue = service, value
			return &client.Account{ID: "acc-wallet"}, nil
		},
		FindAccountByIDFunc: func(ctx context.Context, accountRef string) (*client.Account, error) {
			lookedUpID = accountRef
			return &client.Account{ID: accountRef}, nil
		},
	}

	resolver := NewAccountResolver(ledger)

	// A hex address is classified as a wallet and canonicalized to
	// lowercase before the lookup.
	account, err := resolver.Resolve(ctx, "0xAbCd000000000000000000000000000000001234", "")
	require.NoError(t, err)
	require.Equal(t, "acc-wallet", account.ID)
	require.Equal(t, "wallet", lookedUpService)
	require.Equal(t, "0xabcd000000000000000000000000000000001234", lookedUpValue)

	// Anything else is treated as an account reference.
	account, err = resolver.Resolve(ctx, "acc-123", "")
	require.NoError(t, err)
	require.Equal(t, "acc-123", account.ID)
	require.Equal(t, "acc-123", lookedUpID)

	// An explicit hint overrides classification.
	_, err = resolver.Resolve(ctx, "acc-456", HintAccountID)
	require.NoError(t, err)
	require.Equal(t, "acc-456", lookedUpID)

	// Empty identifiers resolve to no account rather than an error.
	account, err = resolver.Resolve(ctx, "", "")
	require.NoError(t, err)
	require.Nil(t, account)
}
