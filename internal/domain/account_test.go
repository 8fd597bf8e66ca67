package domain

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/testutil"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAccountDomain(ledger *testutil.InMemoryLedger) *accountDomain {
	return NewAccountDomain(
		repository.NewUserRepository(),
		repository.NewCredentialRepository(),
		repository.NewRaffleRepository(),
		repository.NewRefreshTokenRepository(),
		repository.NewOutboxRepository(),
		ledger,
	)
}

func Test_accountDomain_GetMe(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	_, err = testutil.SampleCredential(ctx, user.ID, &entity.Credential{
		Service:       entity.DiscordService,
		ServiceUserID: "discord-1",
	})
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	resp, err := domain.GetMe(xcontext.WithRequestUserID(ctx, user.ID), &model.GetMeRequest{})
	require.NoError(t, err)
	require.Equal(t, user.ID, resp.ID)
	require.Len(t, resp.Credentials, 1)
	require.Equal(t, "discord-1", resp.Credentials[0].ServiceUserID)
}

func Test_accountDomain_LinkCredential(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	_, err = domain.LinkCredential(userCtx, &model.LinkCredentialRequest{
		Service:       entity.DiscordService,
		ServiceUserID: "Discord-42",
	})
	require.NoError(t, err)

	// The id is canonicalized to lowercase; re-linking your own credential
	// is a no-op, not a conflict.
	_, err = domain.LinkCredential(userCtx, &model.LinkCredentialRequest{
		Service:       entity.DiscordService,
		ServiceUserID: "discord-42",
	})
	require.NoError(t, err)

	credentials, err := repository.NewCredentialRepository().GetAllByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, credentials, 1)
	require.Equal(t, "discord-42", credentials[0].ServiceUserID)
}

func Test_accountDomain_LinkCredential_ownedByOther(t *testing.T) {
	ctx := testutil.MockContext()

	owner, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	_, err = testutil.SampleCredential(ctx, owner.ID, &entity.Credential{
		Service:       entity.DiscordService,
		ServiceUserID: "discord-42",
	})
	require.NoError(t, err)

	intruder, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	_, err = domain.LinkCredential(
		xcontext.WithRequestUserID(ctx, intruder.ID),
		&model.LinkCredentialRequest{
			Service:       entity.DiscordService,
			ServiceUserID: "discord-42",
		})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.AlreadyExists, errx.Code)

	// The rejected attempt must not have moved or duplicated anything.
	credential, err := repository.NewCredentialRepository().
		GetByServiceUserID(ctx, entity.DiscordService, "discord-42")
	require.NoError(t, err)
	require.Equal(t, owner.ID, credential.UserID)

	intruderCredentials, err := repository.NewCredentialRepository().GetAllByUserID(ctx, intruder.ID)
	require.NoError(t, err)
	require.Empty(t, intruderCredentials)
}

func Test_accountDomain_LinkCredential_adoptsGhostAccount(t *testing.T) {
	ctx := testutil.MockContext()

	// Points accrued on the ledger under a bare credential before anyone
	// signed in with it.
	ledger := testutil.NewInMemoryLedger()
	ledger.AddAccount("acc-ghost", 42)
	require.NoError(t, ledger.LinkCredential(ctx, entity.DiscordService, "discord-42", "acc-ghost"))

	userRepo := repository.NewUserRepository()
	user := &entity.User{Base: entity.Base{ID: uuid.NewString()}, Name: uuid.NewString()}
	require.NoError(t, userRepo.Create(ctx, user))

	domain := newTestAccountDomain(ledger)

	resp, err := domain.LinkCredential(
		xcontext.WithRequestUserID(ctx, user.ID),
		&model.LinkCredentialRequest{
			Service:       entity.DiscordService,
			ServiceUserID: "discord-42",
		})
	require.NoError(t, err)
	require.Equal(t, "acc-ghost", resp.AdoptedAccountRef)

	got, err := userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "acc-ghost", got.AccountRef.String)
}

func Test_accountDomain_FindDuplicates(t *testing.T) {
	ctx := testutil.MockContext()

	for i := 0; i < 2; i++ {
		_, err := testutil.SampleUser(ctx, &entity.User{
			AccountRef: sql.NullString{Valid: true, String: "acc-dup"},
		})
		require.NoError(t, err)
	}

	_, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-solo"},
	})
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	resp, err := domain.FindDuplicates(ctx, &model.FindDuplicatesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Groups, 1)
	require.Equal(t, "acc-dup", resp.Groups[0].AccountRef)
	require.Len(t, resp.Groups[0].Users, 2)
}

func Test_accountDomain_Merge(t *testing.T) {
	ctx := testutil.MockContext()
	userRepo := repository.NewUserRepository()
	credentialRepo := repository.NewCredentialRepository()

	keep, err := testutil.SampleUser(ctx, &entity.User{
		Name:       "keeper",
		Email:      sql.NullString{Valid: true, String: "keeper@example.com"},
		AccountRef: sql.NullString{Valid: true, String: "acc-shared"},
	})
	require.NoError(t, err)

	loser, err := testutil.SampleUser(ctx, &entity.User{
		Name:            "other",
		Email:           sql.NullString{Valid: true, String: "other@example.com"},
		WalletAddress:   sql.NullString{Valid: true, String: "0xabc"},
		AccountRef:      sql.NullString{Valid: true, String: "acc-shared"},
		ShippingAddress: "1 Main St",
		AutoEntry:       true,
	})
	require.NoError(t, err)

	// Both hold the same discord credential; the loser additionally holds
	// a wallet credential the keeper lacks.
	_, err = testutil.SampleCredential(ctx, keep.ID, &entity.Credential{
		Service:       entity.DiscordService,
		ServiceUserID: "discord-42",
	})
	require.NoError(t, err)
	_, err = testutil.SampleCredential(ctx, loser.ID, &entity.Credential{
		Service:       entity.WalletService,
		ServiceUserID: "0xabc",
	})
	require.NoError(t, err)

	_, err = testutil.SampleRaffleWinner(ctx, loser.ID, &entity.RaffleWinner{WindowDate: "2024-03-09"})
	require.NoError(t, err)

	require.NoError(t, repository.NewRefreshTokenRepository().Create(ctx, &entity.RefreshToken{
		UserID: loser.ID,
		Family: uuid.NewString(),
	}))

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	resp, err := domain.Merge(ctx, &model.MergeUsersRequest{
		KeepUserID:   keep.ID,
		DeleteUserID: loser.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Log)

	_, err = userRepo.GetByID(ctx, loser.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	merged, err := userRepo.GetByID(ctx, keep.ID)
	require.NoError(t, err)

	// Empty fields were filled from the loser, non-empty ones kept.
	require.Equal(t, "keeper", merged.Name)
	require.Equal(t, "keeper@example.com", merged.Email.String)
	require.Equal(t, "0xabc", merged.WalletAddress.String)
	require.Equal(t, "1 Main St", merged.ShippingAddress)
	require.True(t, merged.AutoEntry)

	// The credential union survived: the duplicate discord pair collapsed
	// into one row, the wallet pair moved over.
	credentials, err := credentialRepo.GetAllByUserID(ctx, keep.ID)
	require.NoError(t, err)
	require.Len(t, credentials, 2)

	winner, err := repository.NewRaffleRepository().GetWinnerByWindow(ctx, "2024-03-09")
	require.NoError(t, err)
	require.Equal(t, keep.ID, winner.UserID)
}

func Test_accountDomain_Merge_badRequests(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	_, err = domain.Merge(ctx, &model.MergeUsersRequest{
		KeepUserID:   user.ID,
		DeleteUserID: user.ID,
	})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.BadRequest, errx.Code)

	_, err = domain.Merge(ctx, &model.MergeUsersRequest{
		KeepUserID:   user.ID,
		DeleteUserID: "missing",
	})
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.NotFound, errx.Code)
}

func Test_accountDomain_MergeAll(t *testing.T) {
	ctx := testutil.MockContext()
	userRepo := repository.NewUserRepository()

	// Two credentials and a name score 3; one credential, an email, and a
	// name score 12. The second user must survive despite being younger.
	poor, err := testutil.SampleUser(ctx, &entity.User{
		Name:       "poor",
		AccountRef: sql.NullString{Valid: true, String: "acc-dup"},
	})
	require.NoError(t, err)
	for _, id := range []string{"discord-1", "discord-2"} {
		_, err = testutil.SampleCredential(ctx, poor.ID, &entity.Credential{
			Service:       entity.DiscordService,
			ServiceUserID: id,
		})
		require.NoError(t, err)
	}

	rich, err := testutil.SampleUser(ctx, &entity.User{
		Name:       "rich",
		Email:      sql.NullString{Valid: true, String: "rich@example.com"},
		AccountRef: sql.NullString{Valid: true, String: "acc-dup"},
	})
	require.NoError(t, err)
	_, err = testutil.SampleCredential(ctx, rich.ID, &entity.Credential{
		Service:       entity.EmailService,
		ServiceUserID: "rich@example.com",
	})
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	resp, err := domain.MergeAll(ctx, &model.MergeAllRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.MergedGroups)

	_, err = userRepo.GetByID(ctx, poor.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	survivor, err := userRepo.GetByID(ctx, rich.ID)
	require.NoError(t, err)
	require.Equal(t, "rich", survivor.Name)

	credentials, err := repository.NewCredentialRepository().GetAllByUserID(ctx, rich.ID)
	require.NoError(t, err)
	require.Len(t, credentials, 3)

	// Nothing left to merge on a second sweep.
	resp, err = domain.MergeAll(ctx, &model.MergeAllRequest{})
	require.NoError(t, err)
	require.Equal(t, 0, resp.MergedGroups)
}

func Test_accountDomain_MergeAll_tiebreakKeepsOldest(t *testing.T) {
	ctx := testutil.MockContext()
	userRepo := repository.NewUserRepository()

	first, err := testutil.SampleUser(ctx, &entity.User{
		Name:       "first",
		AccountRef: sql.NullString{Valid: true, String: "acc-dup"},
	})
	require.NoError(t, err)

	second, err := testutil.SampleUser(ctx, &entity.User{
		Name:       "second",
		AccountRef: sql.NullString{Valid: true, String: "acc-dup"},
	})
	require.NoError(t, err)

	domain := newTestAccountDomain(testutil.NewInMemoryLedger())

	_, err = domain.MergeAll(ctx, &model.MergeAllRequest{})
	require.NoError(t, err)

	// Equal scores, so creation order decides.
	_, err = userRepo.GetByID(ctx, first.ID)
	require.NoError(t, err)

	_, err = userRepo.GetByID(ctx, second.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
