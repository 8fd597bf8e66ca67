package common

import (
	"context"
	"errors"
	"strings"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/xcontext"
	"golang.org/x/exp/slices"
)

// AllowListVerifier authorizes admin operations against a set of principal
// identifiers (emails or wallet addresses) injected from configuration at
// startup. Keeping the set out of the domain logic means changing admins is
// a deploy-time concern only.
type AllowListVerifier struct {
	principals []string
	userRepo   repository.UserRepository
}

func NewAllowListVerifier(principals []string, userRepo repository.UserRepository) *AllowListVerifier {
	normalized := make([]string, 0, len(principals))
	for _, p := range principals {
		normalized = append(normalized, strings.ToLower(p))
	}

	return &AllowListVerifier{principals: normalized, userRepo: userRepo}
}

func (verifier *AllowListVerifier) Verify(ctx context.Context) error {
	userID := xcontext.RequestUserID(ctx)
	u, err := verifier.userRepo.GetByID(ctx, userID)
	if err != nil {
		return errors.New("user is not valid")
	}

	if slices.Contains(entity.GlobalAdminRoles, u.Role) {
		return nil
	}

	if u.Email.Valid && slices.Contains(verifier.principals, strings.ToLower(u.Email.String)) {
		return nil
	}

	if u.WalletAddress.Valid &&
		slices.Contains(verifier.principals, strings.ToLower(u.WalletAddress.String)) {
		return nil
	}

	return errors.New("user does not have permission")
}
