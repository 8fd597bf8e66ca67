package testutil

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/dateutil"
)

// SampleUser creates a new user in database with many fields are randomized.
// The sample user can be overwritten by non-zero fields of init.
//
// This function returns the sample user.
func SampleUser(ctx context.Context, init *entity.User) (entity.User, error) {
	userRepo := repository.NewUserRepository()

	sample := &entity.User{
		Base:       entity.Base{ID: uuid.NewString()},
		Name:       uuid.NewString(),
		AccountRef: sql.NullString{Valid: true, String: uuid.NewString()},
		Role:       entity.UserRole,
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if err := userRepo.Create(ctx, sample); err != nil {
		return *sample, err
	}
	return *sample, nil
}

// SampleCredential creates a new credential in database attached to userID.
func SampleCredential(ctx context.Context, userID string, init *entity.Credential) (entity.Credential, error) {
	credentialRepo := repository.NewCredentialRepository()

	sample := &entity.Credential{
		Base:          entity.Base{ID: uuid.NewString()},
		UserID:        userID,
		Service:       entity.DiscordService,
		ServiceUserID: uuid.NewString(),
		Verified:      true,
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if err := credentialRepo.Create(ctx, sample); err != nil {
		return *sample, err
	}
	return *sample, nil
}

// SampleRaffleEntry reserves an entry slot for accountRef in the current
// window. Pass a non-zero WindowDate in init to target another window.
func SampleRaffleEntry(ctx context.Context, accountRef string, init *entity.RaffleEntry) (entity.RaffleEntry, error) {
	raffleRepo := repository.NewRaffleRepository()

	sample := &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: accountRef,
		WindowDate: dateutil.DrawWindow(time.Now()),
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if err := raffleRepo.Reserve(ctx, sample); err != nil {
		return *sample, err
	}
	return *sample, nil
}

// SampleRaffleWinner records a winner for the given window.
func SampleRaffleWinner(ctx context.Context, userID string, init *entity.RaffleWinner) (entity.RaffleWinner, error) {
	raffleRepo := repository.NewRaffleRepository()

	sample := &entity.RaffleWinner{
		Base:       entity.Base{ID: uuid.NewString()},
		WindowDate: dateutil.DrawWindow(time.Now()),
		AccountRef: uuid.NewString(),
		UserID:     userID,
		PrizeID:    "prize-1",
		PrizeName:  "Sample Prize",
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if err := raffleRepo.CreateWinner(ctx, sample); err != nil {
		return *sample, err
	}
	return *sample, nil
}

func overwriteFields[T any](origin *T, overwrite T) {
	originValue := reflect.ValueOf(origin).Elem()
	overwriteValue := reflect.ValueOf(overwrite)

	for i := 0; i < overwriteValue.NumField(); i++ {
		overwriteField := overwriteValue.Field(i)
		if overwriteField.Interface() != reflect.Zero(overwriteField.Type()).Interface() {
			originValue.Field(i).Set(overwriteField)
		}
	}
}
