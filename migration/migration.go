package migration

import (
	"context"
	"errors"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type migrateFunc func(ctx context.Context) error

// Migrations run in order. Append only, never reorder.
var migrations = []struct {
	version string
	f       migrateFunc
}{
	{"0000", migrate0000},
}

func Migrate(ctx context.Context) error {
	if err := xcontext.DB(ctx).AutoMigrate(&entity.Migration{}); err != nil {
		return err
	}

	for _, m := range migrations {
		var record entity.Migration
		err := xcontext.DB(ctx).Take(&record, "version=?", m.version).Error
		if err == nil {
			continue
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		xcontext.Logger(ctx).Infof("Running migration %s", m.version)
		if err := m.f(ctx); err != nil {
			return err
		}

		err = xcontext.DB(ctx).Create(&entity.Migration{Version: m.version}).Error
		if err != nil {
			return err
		}
	}

	return nil
}
