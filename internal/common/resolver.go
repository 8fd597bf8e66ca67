package common

import (
	"context"
	"strings"

	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/entity"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	HintWallet    = "wallet"
	HintAccountID = "account_id"
)

// AccountResolver maps a user-supplied identifier to the canonical ledger
// account. It never creates anything, so it is safe to call concurrently and
// repeatedly.
type AccountResolver struct {
	ledger client.Ledger
}

func NewAccountResolver(ledger client.Ledger) *AccountResolver {
	return &AccountResolver{ledger: ledger}
}

// Resolve returns (nil, nil) when no ledger account exists for the
// identifier. Callers must treat that as not onboarded, not as a failure.
// Without a hint, a chain-address-shaped identifier is looked up as a wallet
// credential and anything else as an opaque account reference.
func (r *AccountResolver) Resolve(
	ctx context.Context, identifier, hint string,
) (*client.Account, error) {
	if identifier == "" {
		return nil, nil
	}

	asWallet := hint == HintWallet
	if hint == "" {
		asWallet = ethcommon.IsHexAddress(identifier)
	}

	if asWallet {
		return r.ledger.FindAccountByCredential(
			ctx, entity.WalletService, strings.ToLower(identifier))
	}

	return r.ledger.FindAccountByID(ctx, identifier)
}
