package entity

import (
	"context"

	"github.com/gritlabs/backend/pkg/xcontext"
)

type Migration struct {
	Version string `gorm:"primaryKey"`
}

// MigrateTable creates every table at the latest schema. Tests use it
// directly, production goes through the versioned migration package.
func MigrateTable(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&User{},
		&Credential{},
		&RaffleEntry{},
		&RaffleWinner{},
		&OutboxMessage{},
		&RefreshToken{},
		&Migration{},
	)
}
