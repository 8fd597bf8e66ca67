package domain

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/common"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/testutil"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

var testPrizes = []config.Prize{
	{ID: "sticker-pack", Name: "Sticker Pack", Sponsor: "Grit Labs"},
}

// testNoon falls well inside the 2024-03-10 window, eight hours before the
// 20:00 UTC boundary.
func testNoon() time.Time {
	return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestRaffleDomain(ledger client.Ledger) *raffleDomain {
	return NewRaffleDomain(
		repository.NewRaffleRepository(),
		repository.NewUserRepository(),
		repository.NewOutboxRepository(),
		ledger,
		common.NewAccountResolver(ledger),
		&testutil.MockNotifier{},
		&testutil.MockRedisClient{},
		testPrizes,
		testNoon,
	)
}

func Test_raffleDomain_Enter(t *testing.T) {
	ctx := testutil.MockContext()

	ledger := testutil.NewInMemoryLedger()
	ledger.AddAccount("acc-1", 15)

	user, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-1"},
	})
	require.NoError(t, err)

	domain := newTestRaffleDomain(ledger)
	ctx = xcontext.WithRequestUserID(ctx, user.ID)

	resp, err := domain.Enter(ctx, &model.EnterRaffleRequest{})
	require.NoError(t, err)
	require.Equal(t, "2024-03-10", resp.WindowDate)
	require.Equal(t, int64(5), resp.NewBalance)

	// The second attempt in the same window must be rejected and must not
	// charge again.
	_, err = domain.Enter(ctx, &model.EnterRaffleRequest{})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.AlreadyExists, errx.Code)

	account, err := ledger.FindAccountByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), account.Points)
}

func Test_raffleDomain_Enter_insufficientBalance(t *testing.T) {
	ctx := testutil.MockContext()

	ledger := testutil.NewInMemoryLedger()
	ledger.AddAccount("acc-poor", 7)

	domain := newTestRaffleDomain(ledger)

	_, err := domain.Enter(ctx, &model.EnterRaffleRequest{Identifier: "acc-poor"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.Unavailable, errx.Code)

	hasEntry, err := repository.NewRaffleRepository().HasEntry(ctx, "acc-poor", "", "2024-03-10")
	require.NoError(t, err)
	require.False(t, hasEntry)
}

func Test_raffleDomain_Enter_unknownIdentifier(t *testing.T) {
	ctx := testutil.MockContext()

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	_, err := domain.Enter(ctx, &model.EnterRaffleRequest{Identifier: "acc-nobody"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.NotFound, errx.Code)
}

func Test_raffleDomain_Enter_chargeFailureReleasesSlot(t *testing.T) {
	ctx := testutil.MockContext()

	account := &client.Account{ID: "acc-1", Points: 100}
	brokenLedger := &testutil.MockLedger{
		FindAccountByIDFunc: func(ctx context.Context, accountRef string) (*client.Account, error) {
			return account, nil
		},
		AdjustBalanceFunc: func(ctx context.Context, accountRef string, delta int64, memo string) (int64, error) {
			return 0, errors.New("ledger down")
		},
	}

	domain := newTestRaffleDomain(brokenLedger)

	_, err := domain.Enter(ctx, &model.EnterRaffleRequest{Identifier: "acc-1"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.Internal, errx.Code)

	// The reservation must have been released, otherwise the account would
	// be locked out of the window without having paid.
	hasEntry, err := repository.NewRaffleRepository().HasEntry(ctx, "acc-1", "", "2024-03-10")
	require.NoError(t, err)
	require.False(t, hasEntry)

	// A retry against a working ledger claims the slot again.
	workingLedger := testutil.NewInMemoryLedger()
	workingLedger.AddAccount("acc-1", 100)
	domain = newTestRaffleDomain(workingLedger)

	resp, err := domain.Enter(ctx, &model.EnterRaffleRequest{Identifier: "acc-1"})
	require.NoError(t, err)
	require.Equal(t, int64(90), resp.NewBalance)
}

func Test_raffleDomain_Status(t *testing.T) {
	ctx := testutil.MockContext()

	for _, ref := range []string{"acc-1", "acc-2"} {
		_, err := testutil.SampleRaffleEntry(ctx, ref, &entity.RaffleEntry{WindowDate: "2024-03-10"})
		require.NoError(t, err)
	}

	ledger := testutil.NewInMemoryLedger()
	ledger.AddAccount("acc-1", 0)

	domain := newTestRaffleDomain(ledger)

	resp, err := domain.Status(ctx, &model.GetRaffleStatusRequest{})
	require.NoError(t, err)
	require.Equal(t, "2024-03-10", resp.WindowDate)
	require.Equal(t, int64(2), resp.WindowEntryCount)
	require.False(t, resp.HasEntered)
	require.Equal(t, (8 * time.Hour).Milliseconds(), resp.MsUntilNextWindow)

	resp, err = domain.Status(ctx, &model.GetRaffleStatusRequest{Identifier: "acc-1"})
	require.NoError(t, err)
	require.True(t, resp.HasEntered)
}

func Test_raffleDomain_TriggerDraw(t *testing.T) {
	ctx := testutil.MockContext()

	entered := map[string]bool{}
	for _, ref := range []string{"acc-1", "acc-2", "acc-3"} {
		_, err := testutil.SampleRaffleEntry(ctx, ref, &entity.RaffleEntry{WindowDate: "2024-03-10"})
		require.NoError(t, err)
		entered[ref] = true
	}

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	resp, err := domain.TriggerDraw(ctx, &model.TriggerDrawRequest{WindowDate: "2024-03-10"})
	require.NoError(t, err)
	require.Equal(t, "2024-03-10", resp.Winner.WindowDate)
	require.True(t, entered[resp.Winner.AccountRef])
	require.Equal(t, "sticker-pack", resp.Winner.PrizeID)

	// Drawing the same window again must fail no matter who triggers it.
	_, err = domain.TriggerDraw(ctx, &model.TriggerDrawRequest{WindowDate: "2024-03-10"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.AlreadyExists, errx.Code)

	// The draw outcome is queued for the event stream.
	pending, err := repository.NewOutboxRepository().GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func Test_raffleDomain_TriggerDraw_emptyWindow(t *testing.T) {
	ctx := testutil.MockContext()

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	_, err := domain.TriggerDraw(ctx, &model.TriggerDrawRequest{WindowDate: "2024-03-10"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.Unavailable, errx.Code)

	_, err = domain.TriggerDraw(ctx, &model.TriggerDrawRequest{WindowDate: "not-a-date"})
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_raffleDomain_TriggerDraw_snapshotsShipping(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef:      sql.NullString{Valid: true, String: "acc-1"},
		ShippingName:    "Pat Doe",
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)

	_, err = testutil.SampleRaffleEntry(ctx, "acc-1", &entity.RaffleEntry{WindowDate: "2024-03-10"})
	require.NoError(t, err)

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	resp, err := domain.TriggerDraw(ctx, &model.TriggerDrawRequest{WindowDate: "2024-03-10"})
	require.NoError(t, err)
	require.Equal(t, "Pat Doe", resp.Winner.ShippingName)
	require.Equal(t, "1 Main St", resp.Winner.ShippingAddress)

	winner, err := repository.NewRaffleRepository().GetWinnerByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Equal(t, user.ID, winner.UserID)
}

func Test_raffleDomain_GetWinners(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	for _, window := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		_, err := testutil.SampleRaffleWinner(ctx, user.ID, &entity.RaffleWinner{WindowDate: window})
		require.NoError(t, err)
	}

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	resp, err := domain.GetWinners(ctx, &model.GetWinnersRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Winners, 2)
	require.Equal(t, "2024-03-10", resp.Winners[0].WindowDate)
	require.Equal(t, "2024-03-09", resp.Winners[1].WindowDate)

	_, err = domain.GetWinners(ctx, &model.GetWinnersRequest{Limit: 100})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.BadRequest, errx.Code)
}

func Test_raffleDomain_MarkShipped(t *testing.T) {
	ctx := testutil.MockContext()

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	_, err = testutil.SampleRaffleWinner(ctx, user.ID, &entity.RaffleWinner{WindowDate: "2024-03-10"})
	require.NoError(t, err)

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	_, err = domain.MarkShipped(ctx, &model.MarkShippedRequest{WindowDate: "2024-03-10"})
	require.NoError(t, err)

	winner, err := repository.NewRaffleRepository().GetWinnerByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.True(t, winner.Shipped)

	_, err = domain.MarkShipped(ctx, &model.MarkShippedRequest{WindowDate: "2024-03-11"})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.NotFound, errx.Code)
}

func Test_raffleDomain_SetAutoEntry(t *testing.T) {
	ctx := testutil.MockContext()
	userRepo := repository.NewUserRepository()

	unlinked := &entity.User{Base: entity.Base{ID: uuid.NewString()}, Name: uuid.NewString()}
	require.NoError(t, userRepo.Create(ctx, unlinked))

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	_, err := domain.SetAutoEntry(
		xcontext.WithRequestUserID(ctx, unlinked.ID), &model.SetAutoEntryRequest{Enabled: true})
	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, errorx.Unavailable, errx.Code)

	linked, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-1"},
	})
	require.NoError(t, err)

	_, err = domain.SetAutoEntry(
		xcontext.WithRequestUserID(ctx, linked.ID), &model.SetAutoEntryRequest{Enabled: true})
	require.NoError(t, err)

	got, err := userRepo.GetByID(ctx, linked.ID)
	require.NoError(t, err)
	require.True(t, got.AutoEntry)
}

func Test_raffleDomain_RunAutoEntryBatch(t *testing.T) {
	ctx := testutil.MockContext()

	ledger := testutil.NewInMemoryLedger()
	ledger.AddAccount("acc-rich", 50)
	ledger.AddAccount("acc-poor", 3)
	ledger.AddAccount("acc-entered", 50)

	_, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-rich"},
		AutoEntry:  true,
	})
	require.NoError(t, err)

	_, err = testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-poor"},
		AutoEntry:  true,
	})
	require.NoError(t, err)

	_, err = testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-entered"},
		AutoEntry:  true,
	})
	require.NoError(t, err)

	// Opted in but never onboarded to the points ledger.
	userRepo := repository.NewUserRepository()
	ghost := &entity.User{Base: entity.Base{ID: uuid.NewString()}, Name: uuid.NewString(), AutoEntry: true}
	require.NoError(t, userRepo.Create(ctx, ghost))

	// Opted out, must not appear in the report at all.
	_, err = testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-opted-out"},
	})
	require.NoError(t, err)

	_, err = testutil.SampleRaffleEntry(ctx, "acc-entered", &entity.RaffleEntry{WindowDate: "2024-03-10"})
	require.NoError(t, err)

	domain := newTestRaffleDomain(ledger)

	report := domain.RunAutoEntryBatch(ctx)
	require.Equal(t, "2024-03-10", report.WindowDate)
	require.Equal(t, 4, report.Processed)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 3, report.Skipped)
	require.Equal(t, 0, report.Failed)

	account, err := ledger.FindAccountByID(ctx, "acc-rich")
	require.NoError(t, err)
	require.Equal(t, int64(40), account.Points)

	account, err = ledger.FindAccountByID(ctx, "acc-poor")
	require.NoError(t, err)
	require.Equal(t, int64(3), account.Points)
}

func Test_raffleDomain_RunAutoEntryBatch_chargeFailure(t *testing.T) {
	ctx := testutil.MockContext()

	_, err := testutil.SampleUser(ctx, &entity.User{
		AccountRef: sql.NullString{Valid: true, String: "acc-1"},
		AutoEntry:  true,
	})
	require.NoError(t, err)

	brokenLedger := &testutil.MockLedger{
		FindAccountByIDFunc: func(ctx context.Context, accountRef string) (*client.Account, error) {
			return &client.Account{ID: accountRef, Points: 100}, nil
		},
		AdjustBalanceFunc: func(ctx context.Context, accountRef string, delta int64, memo string) (int64, error) {
			return 0, errors.New("ledger down")
		},
	}

	domain := newTestRaffleDomain(brokenLedger)

	report := domain.RunAutoEntryBatch(ctx)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 1)
	require.Equal(t, model.AutoEntryFailed, report.Results[0].Outcome)
}

func Test_raffleDomain_RunDrawForWindow(t *testing.T) {
	ctx := testutil.MockContext()

	_, err := testutil.SampleRaffleEntry(ctx, "acc-1", &entity.RaffleEntry{WindowDate: "2024-03-10"})
	require.NoError(t, err)

	domain := newTestRaffleDomain(testutil.NewInMemoryLedger())

	require.NoError(t, domain.RunDrawForWindow(ctx, "2024-03-10"))

	// Already drawn and empty windows are normal outcomes for the
	// scheduler, not errors.
	require.NoError(t, domain.RunDrawForWindow(ctx, "2024-03-10"))
	require.NoError(t, domain.RunDrawForWindow(ctx, "2024-03-11"))

	winner, err := repository.NewRaffleRepository().GetWinnerByWindow(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Equal(t, "acc-1", winner.AccountRef)
}
