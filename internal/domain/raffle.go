package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/common"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/crypto"
	"github.com/gritlabs/backend/pkg/dateutil"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/gritlabs/backend/pkg/xredis"
	"gorm.io/gorm"
)

const entryCountCacheTTL = 30 * time.Second

type RaffleDomain interface {
	Enter(ctx context.Context, req *model.EnterRaffleRequest) (*model.EnterRaffleResponse, error)
	Status(ctx context.Context, req *model.GetRaffleStatusRequest) (*model.GetRaffleStatusResponse, error)
	TriggerDraw(ctx context.Context, req *model.TriggerDrawRequest) (*model.TriggerDrawResponse, error)
	GetWinners(ctx context.Context, req *model.GetWinnersRequest) (*model.GetWinnersResponse, error)
	MarkShipped(ctx context.Context, req *model.MarkShippedRequest) (*model.MarkShippedResponse, error)
	SetAutoEntry(ctx context.Context, req *model.SetAutoEntryRequest) (*model.SetAutoEntryResponse, error)

	// RunDrawForWindow and RunAutoEntryBatch are the scheduler entry points.
	RunDrawForWindow(ctx context.Context, window string) error
	RunAutoEntryBatch(ctx context.Context) *model.AutoEntryReport
}

type raffleDomain struct {
	raffleRepo      repository.RaffleRepository
	userRepo        repository.UserRepository
	outboxRepo      repository.OutboxRepository
	ledger          client.Ledger
	accountResolver *common.AccountResolver
	notifier        client.Notifier
	redisClient     xredis.Client
	prizes          []config.Prize

	// now is injectable so the 20:00 UTC window boundary is testable.
	now func() time.Time
}

func NewRaffleDomain(
	raffleRepo repository.RaffleRepository,
	userRepo repository.UserRepository,
	outboxRepo repository.OutboxRepository,
	ledger client.Ledger,
	accountResolver *common.AccountResolver,
	notifier client.Notifier,
	redisClient xredis.Client,
	prizes []config.Prize,
	now func() time.Time,
) *raffleDomain {
	if now == nil {
		now = time.Now
	}

	return &raffleDomain{
		raffleRepo:      raffleRepo,
		userRepo:        userRepo,
		outboxRepo:      outboxRepo,
		ledger:          ledger,
		accountResolver: accountResolver,
		notifier:        notifier,
		redisClient:     redisClient,
		prizes:          prizes,
		now:             now,
	}
}

func (d *raffleDomain) Enter(
	ctx context.Context, req *model.EnterRaffleRequest,
) (*model.EnterRaffleResponse, error) {
	identifier, err := d.entryIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	window := dateutil.DrawWindow(d.now())
	newBalance, err := d.enterWindow(ctx, identifier, window)
	if err != nil {
		return nil, err
	}

	return &model.EnterRaffleResponse{WindowDate: window, NewBalance: newBalance}, nil
}

// enterWindow runs the full entry sequence for one identifier: resolve, check
// balance, claim the slot, then charge. The slot is claimed before the charge
// so that two concurrent requests cannot both pass the pre-checks; if the
// charge then fails the claim is released again. It is shared with the
// auto-entry batch job.
func (d *raffleDomain) enterWindow(
	ctx context.Context, identifier, window string,
) (int64, error) {
	account, err := d.accountResolver.Resolve(ctx, identifier, "")
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot resolve identifier: %v", err)
		return 0, errorx.Unknown
	}

	if account == nil {
		return 0, errorx.New(errorx.NotFound, "Not found any account for this identifier")
	}

	// Fast-path rejection only. The unique index behind Reserve is what
	// actually decides the race.
	hasEntry, err := d.raffleRepo.HasEntry(ctx, account.ID, identifier, window)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot check entry: %v", err)
		return 0, errorx.Unknown
	}

	if hasEntry {
		return 0, errorx.New(errorx.AlreadyExists, "You already entered this draw")
	}

	entryCost := xcontext.Configs(ctx).Raffle.EntryCost
	if account.Points < entryCost {
		return 0, errorx.New(errorx.Unavailable,
			"You need %d points to enter, you have %d", entryCost, account.Points)
	}

	err = d.raffleRepo.Reserve(ctx, &entity.RaffleEntry{
		Base:       entity.Base{ID: uuid.NewString()},
		AccountRef: account.ID,
		WindowDate: window,
		RawRef:     identifier,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyEntered) {
			return 0, errorx.New(errorx.AlreadyExists, "You already entered this draw")
		}

		xcontext.Logger(ctx).Errorf("Cannot reserve entry: %v", err)
		return 0, errorx.Unknown
	}

	newBalance, err := d.ledger.AdjustBalance(
		ctx, account.ID, -entryCost, fmt.Sprintf("pin wheel entry %s", window))
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot charge entry, rolling back: %v", err)
		if releaseErr := d.raffleRepo.Release(ctx, account.ID, window); releaseErr != nil {
			xcontext.Logger(ctx).Errorf("Cannot release reserved entry: %v", releaseErr)
		}

		return 0, errorx.New(errorx.Internal, "Could not charge your points, please try again")
	}

	if err := d.redisClient.Del(ctx, common.RedisKeyWindowEntryCount(window)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate entry count cache: %v", err)
	}

	return newBalance, nil
}

func (d *raffleDomain) Status(
	ctx context.Context, req *model.GetRaffleStatusRequest,
) (*model.GetRaffleStatusResponse, error) {
	now := d.now()
	window := dateutil.DrawWindow(now)

	count, err := d.windowEntryCount(ctx, window)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot count entries: %v", err)
		return nil, errorx.Unknown
	}

	hasEntered := false
	identifier, err := d.entryIdentifier(ctx, req.Identifier)
	if err == nil {
		account, resolveErr := d.accountResolver.Resolve(ctx, identifier, "")
		if resolveErr != nil {
			xcontext.Logger(ctx).Errorf("Cannot resolve identifier: %v", resolveErr)
			return nil, errorx.Unknown
		}

		if account != nil {
			hasEntered, resolveErr = d.raffleRepo.HasEntry(ctx, account.ID, identifier, window)
			if resolveErr != nil {
				xcontext.Logger(ctx).Errorf("Cannot check entry: %v", resolveErr)
				return nil, errorx.Unknown
			}
		}
	}

	return &model.GetRaffleStatusResponse{
		WindowDate:        window,
		WindowEntryCount:  count,
		HasEntered:        hasEntered,
		MsUntilNextWindow: dateutil.NextWindowBoundary(now).Sub(now).Milliseconds(),
	}, nil
}

func (d *raffleDomain) TriggerDraw(
	ctx context.Context, req *model.TriggerDrawRequest,
) (*model.TriggerDrawResponse, error) {
	window := req.WindowDate
	if window == "" {
		window = dateutil.DrawWindow(d.now())
	} else if _, err := time.Parse(dateutil.WindowLayout, window); err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid window date")
	}

	winner, err := d.runDraw(ctx, window)
	if err != nil {
		return nil, err
	}

	return &model.TriggerDrawResponse{Winner: model.ConvertRaffleWinner(winner)}, nil
}

// runDraw executes the draw for one window. It is idempotent: the unique
// winner row per window turns a second invocation into AlreadyExists no
// matter how close the two invocations raced.
func (d *raffleDomain) runDraw(ctx context.Context, window string) (*entity.RaffleWinner, error) {
	_, err := d.raffleRepo.GetWinnerByWindow(ctx, window)
	if err == nil {
		return nil, errorx.New(errorx.AlreadyExists, "Window %s was already drawn", window)
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot check existing winner: %v", err)
		return nil, errorx.Unknown
	}

	entries, err := d.raffleRepo.GetByWindow(ctx, window)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot load entries: %v", err)
		return nil, errorx.Unknown
	}

	if len(entries) == 0 {
		return nil, errorx.New(errorx.Unavailable, "No entries in window %s", window)
	}

	// Winner and prize are independent uniform picks.
	winningEntry := entries[crypto.RandIntn(len(entries))]
	prize := d.prizes[crypto.RandIntn(len(d.prizes))]

	winner := &entity.RaffleWinner{
		Base:         entity.Base{ID: uuid.NewString()},
		WindowDate:   window,
		AccountRef:   winningEntry.AccountRef,
		PrizeID:      prize.ID,
		PrizeName:    prize.Name,
		PrizeSponsor: prize.Sponsor,
	}

	if owner := d.findShippingOwner(ctx, winningEntry.AccountRef); owner != nil {
		winner.UserID = owner.ID
		winner.ShippingName = owner.ShippingName
		winner.ShippingAddress = owner.ShippingAddress
	}

	if err := d.raffleRepo.CreateWinner(ctx, winner); err != nil {
		if errors.Is(err, repository.ErrAlreadyDrawn) {
			return nil, errorx.New(errorx.AlreadyExists, "Window %s was already drawn", window)
		}

		xcontext.Logger(ctx).Errorf("Cannot persist winner: %v", err)
		return nil, errorx.Unknown
	}

	d.announceWinner(ctx, winner)
	return winner, nil
}

// announceWinner is best-effort on every path. A draw never fails because a
// webhook or the broker is down.
func (d *raffleDomain) announceWinner(ctx context.Context, winner *entity.RaffleWinner) {
	message := fmt.Sprintf("The Pin Wheel stopped! %s won %s for window %s",
		winner.AccountRef, winner.PrizeName, winner.WindowDate)
	if err := d.notifier.Notify(ctx, message); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot notify winner: %v", err)
	}

	payload, err := json.Marshal(map[string]any{
		"type":        "raffle_draw",
		"window_date": winner.WindowDate,
		"account_ref": winner.AccountRef,
		"prize_id":    winner.PrizeID,
	})
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot marshal winner event: %v", err)
		return
	}

	err = d.outboxRepo.Create(ctx, &entity.OutboxMessage{
		Base:    entity.Base{ID: uuid.NewString()},
		Topic:   xcontext.Configs(ctx).Kafka.Topic,
		Key:     winner.WindowDate,
		Payload: payload,
		Status:  entity.OutboxPending,
	})
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot enqueue winner event: %v", err)
	}
}

func (d *raffleDomain) GetWinners(
	ctx context.Context, req *model.GetWinnersRequest,
) (*model.GetWinnersResponse, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	if req.Limit < 0 || req.Limit > 50 {
		return nil, errorx.New(errorx.BadRequest, "Limit must be between 1 and 50")
	}

	winners, err := d.raffleRepo.GetWinners(ctx, req.Offset, req.Limit)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot load winners: %v", err)
		return nil, errorx.Unknown
	}

	modelWinners := []model.RaffleWinner{}
	for i := range winners {
		modelWinners = append(modelWinners, model.ConvertRaffleWinner(&winners[i]))
	}

	return &model.GetWinnersResponse{Winners: modelWinners}, nil
}

func (d *raffleDomain) MarkShipped(
	ctx context.Context, req *model.MarkShippedRequest,
) (*model.MarkShippedResponse, error) {
	if err := d.raffleRepo.MarkShipped(ctx, req.WindowDate); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found winner of window %s", req.WindowDate)
		}

		xcontext.Logger(ctx).Errorf("Cannot mark winner shipped: %v", err)
		return nil, errorx.Unknown
	}

	return &model.MarkShippedResponse{}, nil
}

func (d *raffleDomain) SetAutoEntry(
	ctx context.Context, req *model.SetAutoEntryRequest,
) (*model.SetAutoEntryResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	user, err := d.userRepo.GetByID(ctx, userID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	if req.Enabled && !user.AccountRef.Valid {
		return nil, errorx.New(errorx.Unavailable,
			"You need a linked points account before enabling auto entry")
	}

	if err := d.userRepo.SetAutoEntry(ctx, userID, req.Enabled); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot set auto entry: %v", err)
		return nil, errorx.Unknown
	}

	return &model.SetAutoEntryResponse{}, nil
}

// RunDrawForWindow is the scheduler's way into runDraw. AlreadyExists and
// NoEntries outcomes are expected there and reported as nil after logging.
func (d *raffleDomain) RunDrawForWindow(ctx context.Context, window string) error {
	winner, err := d.runDraw(ctx, window)
	if err != nil {
		var errx errorx.Error
		if errors.As(err, &errx) && errx.Code != errorx.Unknown.Code {
			xcontext.Logger(ctx).Infof("Draw for window %s: %s", window, errx.Message)
			return nil
		}

		return err
	}

	xcontext.Logger(ctx).Infof(
		"Draw for window %s: %s won %s", window, winner.AccountRef, winner.PrizeName)
	return nil
}

// RunAutoEntryBatch enters the current window for every opted-in user. Each
// user is attempted independently: expected outcomes (already entered, not
// onboarded, not enough points) count as skipped, charge-path errors as
// failed, and neither stops the sweep.
func (d *raffleDomain) RunAutoEntryBatch(ctx context.Context) *model.AutoEntryReport {
	report := &model.AutoEntryReport{WindowDate: dateutil.DrawWindow(d.now())}

	users, err := d.userRepo.GetAllAutoEntry(ctx)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot load auto entry users: %v", err)
		return report
	}

	for i := range users {
		user := &users[i]
		report.Processed++

		result := model.AutoEntryResult{UserID: user.ID}
		if !user.AccountRef.Valid {
			result.Outcome = model.AutoEntrySkipped
			result.Reason = "no linked points account"
			report.Skipped++
			report.Results = append(report.Results, result)
			continue
		}

		result.Identifier = user.AccountRef.String
		_, err := d.enterWindow(ctx, user.AccountRef.String, report.WindowDate)
		switch {
		case err == nil:
			result.Outcome = model.AutoEntrySucceeded
			report.Succeeded++
		case isExpectedEntryOutcome(err):
			var errx errorx.Error
			errors.As(err, &errx)
			result.Outcome = model.AutoEntrySkipped
			result.Reason = errx.Message
			report.Skipped++
		default:
			result.Outcome = model.AutoEntryFailed
			result.Reason = err.Error()
			report.Failed++
		}

		report.Results = append(report.Results, result)
	}

	return report
}

// isExpectedEntryOutcome reports whether an entry error is a normal business
// outcome rather than a system failure: already entered, not onboarded, or
// not enough points.
func isExpectedEntryOutcome(err error) bool {
	var errx errorx.Error
	if !errors.As(err, &errx) {
		return false
	}

	switch errx.Code {
	case errorx.AlreadyExists, errorx.NotFound, errorx.Unavailable:
		return true
	}

	return false
}

// entryIdentifier picks the identifier an operation should act on: the one
// the caller sent, or the calling user's own linked account.
func (d *raffleDomain) entryIdentifier(ctx context.Context, identifier string) (string, error) {
	if identifier != "" {
		return identifier, nil
	}

	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return "", errorx.New(errorx.Unauthenticated, "You need to authenticate before")
	}

	user, err := d.userRepo.GetByID(ctx, userID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return "", errorx.Unknown
	}

	if !user.AccountRef.Valid {
		return "", errorx.New(errorx.NotFound, "You have no linked points account")
	}

	return user.AccountRef.String, nil
}

func (d *raffleDomain) windowEntryCount(ctx context.Context, window string) (int64, error) {
	key := common.RedisKeyWindowEntryCount(window)

	var cached int64
	err := d.redisClient.GetObj(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}

	if !xredis.IsNil(err) {
		xcontext.Logger(ctx).Warnf("Cannot read entry count cache: %v", err)
	}

	count, err := d.raffleRepo.CountByWindow(ctx, window)
	if err != nil {
		return 0, err
	}

	if err := d.redisClient.SetObj(ctx, key, count, entryCountCacheTTL); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot write entry count cache: %v", err)
	}

	return count, nil
}

func (d *raffleDomain) findShippingOwner(ctx context.Context, accountRef string) *entity.User {
	owners, err := d.userRepo.GetByAccountRef(ctx, accountRef)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot load winner's users: %v", err)
		return nil
	}

	if len(owners) == 0 {
		return nil
	}

	for i := range owners {
		if owners[i].ShippingAddress != "" {
			return &owners[i]
		}
	}

	return &owners[0]
}
