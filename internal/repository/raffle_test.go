package repository_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func Test_raffleRepository_Reserve(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewRaffleRepository()

	first := &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-10",
	}
	require.NoError(t, repo.Reserve(ctx, first))

	// A second claim on the same slot must surface as ErrAlreadyEntered,
	// not as a driver error.
	second := &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-10",
	}
	require.ErrorIs(t, repo.Reserve(ctx, second), repository.ErrAlreadyEntered)

	// Other accounts and other windows are unaffected.
	require.NoError(t, repo.Reserve(ctx, &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-2",
		WindowDate: "2024-03-10",
	}))
	require.NoError(t, repo.Reserve(ctx, &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-11",
	}))

	count, err := repo.CountByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func Test_raffleRepository_Release(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewRaffleRepository()

	entry := &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-10",
	}
	require.NoError(t, repo.Reserve(ctx, entry))
	require.NoError(t, repo.Release(ctx, "acc-1", "2024-03-10"))

	// The slot is claimable again after a release, the row must be gone
	// for real rather than soft-deleted under the unique index.
	require.NoError(t, repo.Reserve(ctx, &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-10",
	}))
}

func Test_raffleRepository_HasEntry_matchesRawRef(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewRaffleRepository()

	require.NoError(t, repo.Reserve(ctx, &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: "acc-1",
		WindowDate: "2024-03-10",
		RawRef:     "0xabc",
	}))

	has, err := repo.HasEntry(ctx, "acc-1", "", "2024-03-10")
	require.NoError(t, err)
	require.True(t, has)

	// Rows written before identifiers were canonicalized are still found
	// through the raw form.
	has, err = repo.HasEntry(ctx, "acc-other", "0xabc", "2024-03-10")
	require.NoError(t, err)
	require.True(t, has)

	has, err = repo.HasEntry(ctx, "acc-1", "", "2024-03-11")
	require.NoError(t, err)
	require.False(t, has)
}

func Test_raffleRepository_CreateWinner(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewRaffleRepository()

	require.NoError(t, repo.CreateWinner(ctx, &entity.RaffleWinner{
		Base:       entity.Base{ID: uuid.NewString()},
		WindowDate: "2024-03-10",
		AccountRef: "acc-1",
	}))

	require.ErrorIs(t, repo.CreateWinner(ctx, &entity.RaffleWinner{
		Base:       entity.Base{ID: uuid.NewString()},
		WindowDate: "2024-03-10",
		AccountRef: "acc-2",
	}), repository.ErrAlreadyDrawn)

	winner, err := repo.GetWinnerByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Equal(t, "acc-1", winner.AccountRef)
}

func Test_raffleRepository_MarkShipped(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewRaffleRepository()

	require.ErrorIs(t, repo.MarkShipped(ctx, "2024-03-10"), gorm.ErrRecordNotFound)

	require.NoError(t, repo.CreateWinner(ctx, &entity.RaffleWinner{
		Base:       entity.Base{ID: uuid.NewString()},
		WindowDate: "2024-03-10",
		AccountRef: "acc-1",
	}))
	require.NoError(t, repo.MarkShipped(ctx, "2024-03-10"))

	winner, err := repo.GetWinnerByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.True(t, winner.Shipped)
}
