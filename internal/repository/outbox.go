package repository

import (
	"context"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type OutboxRepository interface {
	Create(ctx context.Context, data *entity.OutboxMessage) error
	GetPending(ctx context.Context, limit int) ([]entity.OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, maxRetry int) error
}

type outboxRepository struct{}

func NewOutboxRepository() *outboxRepository {
	return &outboxRepository{}
}

func (r *outboxRepository) Create(ctx context.Context, data *entity.OutboxMessage) error {
	return xcontext.DB(ctx).Create(data).Error
}

func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]entity.OutboxMessage, error) {
	var records []entity.OutboxMessage
	err := xcontext.DB(ctx).
		Where("status=?", entity.OutboxPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return xcontext.DB(ctx).
		Model(&entity.OutboxMessage{}).
		Where("id=?", id).
		Update("status", entity.OutboxSent).Error
}

// MarkFailed bumps the retry counter and parks the message as FAILED once the
// retry budget is spent. Failed messages need manual attention.
func (r *outboxRepository) MarkFailed(ctx context.Context, id string, maxRetry int) error {
	return xcontext.DB(ctx).
		Model(&entity.OutboxMessage{}).
		Where("id=?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count+1"),
			"status": gorm.Expr(
				"CASE WHEN retry_count+1 >= ? THEN ? ELSE ? END",
				maxRetry, entity.OutboxFailed, entity.OutboxPending,
			),
		}).Error
}
