package migration

import (
	"context"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
)

// migrate0000 creates the database with the latest version.
func migrate0000(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&entity.User{},
		&entity.Credential{},
		&entity.RaffleEntry{},
		&entity.RaffleWinner{},
		&entity.OutboxMessage{},
		&entity.RefreshToken{},
		&entity.Migration{},
	)
}
