package repository

import (
	"context"
	"errors"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAlreadyEntered is the reservation outcome when another request already
// claimed the (account, window) slot. It is how the unique index reports the
// entry race, so callers must branch on it rather than treat it as a storage
// failure.
var ErrAlreadyEntered = errors.New("account already entered this window")

// ErrAlreadyDrawn reports that a winner row for the window exists.
var ErrAlreadyDrawn = errors.New("window already drawn")

type RaffleRepository interface {
	Reserve(ctx context.Context, entry *entity.RaffleEntry) error
	Release(ctx context.Context, accountRef, windowDate string) error
	HasEntry(ctx context.Context, accountRef, rawRef, windowDate string) (bool, error)
	CountByWindow(ctx context.Context, windowDate string) (int64, error)
	GetByWindow(ctx context.Context, windowDate string) ([]entity.RaffleEntry, error)

	CreateWinner(ctx context.Context, winner *entity.RaffleWinner) error
	GetWinnerByWindow(ctx context.Context, windowDate string) (*entity.RaffleWinner, error)
	GetWinners(ctx context.Context, offset, limit int) ([]entity.RaffleWinner, error)
	MarkShipped(ctx context.Context, windowDate string) error
	ReassignWinners(ctx context.Context, fromUserID, toUserID string) (int64, error)
}

type raffleRepository struct{}

func NewRaffleRepository() *raffleRepository {
	return &raffleRepository{}
}

// Reserve claims the entry slot with a bare insert. The conflict clause makes
// the losing side of a concurrent race observable as zero affected rows
// instead of a driver-specific duplicate key error.
func (r *raffleRepository) Reserve(ctx context.Context, entry *entity.RaffleEntry) error {
	tx := xcontext.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account_ref"},
				{Name: "window_date"},
			},
			DoNothing: true,
		}).
		Create(entry)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return ErrAlreadyEntered
	}

	return nil
}

// Release removes a reservation whose charge failed. Entries are never
// soft-deleted here, the slot must become claimable again.
func (r *raffleRepository) Release(ctx context.Context, accountRef, windowDate string) error {
	return xcontext.DB(ctx).
		Unscoped().
		Delete(&entity.RaffleEntry{}, "account_ref=? AND window_date=?", accountRef, windowDate).Error
}

// HasEntry also matches rows recorded under the raw identifier form, for
// entries written before references were canonicalized.
func (r *raffleRepository) HasEntry(ctx context.Context, accountRef, rawRef, windowDate string) (bool, error) {
	var count int64
	tx := xcontext.DB(ctx).
		Model(&entity.RaffleEntry{}).
		Where("window_date=?", windowDate)

	if rawRef != "" && rawRef != accountRef {
		tx = tx.Where("account_ref=? OR raw_ref=?", accountRef, rawRef)
	} else {
		tx = tx.Where("account_ref=?", accountRef)
	}

	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *raffleRepository) CountByWindow(ctx context.Context, windowDate string) (int64, error) {
	var count int64
	err := xcontext.DB(ctx).
		Model(&entity.RaffleEntry{}).
		Where("window_date=?", windowDate).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *raffleRepository) GetByWindow(ctx context.Context, windowDate string) ([]entity.RaffleEntry, error) {
	var records []entity.RaffleEntry
	err := xcontext.DB(ctx).
		Where("window_date=?", windowDate).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

// CreateWinner persists the draw outcome. The unique index on window_date is
// the idempotency guard when a scheduled and a manual trigger race.
func (r *raffleRepository) CreateWinner(ctx context.Context, winner *entity.RaffleWinner) error {
	tx := xcontext.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "window_date"}},
			DoNothing: true,
		}).
		Create(winner)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return ErrAlreadyDrawn
	}

	return nil
}

func (r *raffleRepository) GetWinnerByWindow(ctx context.Context, windowDate string) (*entity.RaffleWinner, error) {
	var result entity.RaffleWinner
	err := xcontext.DB(ctx).Take(&result, "window_date=?", windowDate).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *raffleRepository) GetWinners(ctx context.Context, offset, limit int) ([]entity.RaffleWinner, error) {
	var records []entity.RaffleWinner
	err := xcontext.DB(ctx).
		Order("window_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *raffleRepository) MarkShipped(ctx context.Context, windowDate string) error {
	tx := xcontext.DB(ctx).
		Model(&entity.RaffleWinner{}).
		Where("window_date=?", windowDate).
		Update("shipped", true)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *raffleRepository) ReassignWinners(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	tx := xcontext.DB(ctx).
		Model(&entity.RaffleWinner{}).
		Where("user_id=?", fromUserID).
		Update("user_id", toUserID)
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}
