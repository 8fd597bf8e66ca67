package repository

import (
	"context"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
)

type CredentialRepository interface {
	Create(ctx context.Context, data *entity.Credential) error
	GetByServiceUserID(ctx context.Context, service, serviceUserID string) (*entity.Credential, error)
	GetAllByUserID(ctx context.Context, userID string) ([]entity.Credential, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
	UpdateOwner(ctx context.Context, id, newUserID string) error
	DeleteByID(ctx context.Context, id string) error
}

type credentialRepository struct{}

func NewCredentialRepository() *credentialRepository {
	return &credentialRepository{}
}

func (r *credentialRepository) Create(ctx context.Context, data *entity.Credential) error {
	return xcontext.DB(ctx).Create(data).Error
}

func (r *credentialRepository) GetByServiceUserID(
	ctx context.Context, service, serviceUserID string,
) (*entity.Credential, error) {
	var result entity.Credential
	err := xcontext.DB(ctx).Take(&result, "service=? AND service_user_id=?", service, serviceUserID).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *credentialRepository) GetAllByUserID(ctx context.Context, userID string) ([]entity.Credential, error) {
	var result []entity.Credential
	err := xcontext.DB(ctx).Order("created_at ASC").Find(&result, "user_id=?", userID).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *credentialRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := xcontext.DB(ctx).
		Model(&entity.Credential{}).
		Where("user_id=?", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *credentialRepository) UpdateOwner(ctx context.Context, id, newUserID string) error {
	return xcontext.DB(ctx).
		Model(&entity.Credential{}).
		Where("id=?", id).
		Update("user_id", newUserID).Error
}

func (r *credentialRepository) DeleteByID(ctx context.Context, id string) error {
	return xcontext.DB(ctx).Unscoped().Delete(&entity.Credential{}, "id=?", id).Error
}
