package repository

import (
	"context"

	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/pkg/xcontext"
)

type UserRepository interface {
	Create(ctx context.Context, data *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByName(ctx context.Context, name string) (*entity.User, error)
	GetByWalletAddress(ctx context.Context, address string) (*entity.User, error)
	GetByAccountRef(ctx context.Context, accountRef string) ([]entity.User, error)
	GetByServiceUserID(ctx context.Context, service, serviceUserID string) (*entity.User, error)
	GetAllLinked(ctx context.Context) ([]entity.User, error)
	GetAllAutoEntry(ctx context.Context) ([]entity.User, error)
	UpdateByID(ctx context.Context, id string, data *entity.User) error
	SetAutoEntry(ctx context.Context, id string, enabled bool) error
	DeleteByID(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type userRepository struct{}

func NewUserRepository() *userRepository {
	return &userRepository{}
}

func (r *userRepository) Create(ctx context.Context, data *entity.User) error {
	return xcontext.DB(ctx).Create(data).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var record entity.User
	if err := xcontext.DB(ctx).Where("id=?", id).Take(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *userRepository) GetByName(ctx context.Context, name string) (*entity.User, error) {
	var record entity.User
	if err := xcontext.DB(ctx).Where("name=?", name).Take(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *userRepository) GetByWalletAddress(ctx context.Context, address string) (*entity.User, error) {
	var record entity.User
	if err := xcontext.DB(ctx).Where("wallet_address=?", address).Take(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *userRepository) GetByAccountRef(ctx context.Context, accountRef string) ([]entity.User, error) {
	var records []entity.User
	err := xcontext.DB(ctx).
		Where("account_ref=?", accountRef).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *userRepository) GetByServiceUserID(
	ctx context.Context, service, serviceUserID string,
) (*entity.User, error) {
	var record entity.User
	err := xcontext.DB(ctx).
		Model(&entity.User{}).
		Where("credentials.service=? AND credentials.service_user_id=?", service, serviceUserID).
		Joins("join credentials on users.id=credentials.user_id").
		Take(&record).Error
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// GetAllLinked returns every user holding an account reference, oldest first.
// The ordering is significant: duplicate grouping and merge ranking rely on a
// stable insertion order.
func (r *userRepository) GetAllLinked(ctx context.Context) ([]entity.User, error) {
	var records []entity.User
	err := xcontext.DB(ctx).
		Where("account_ref IS NOT NULL AND account_ref != ''").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *userRepository) GetAllAutoEntry(ctx context.Context) ([]entity.User, error) {
	var records []entity.User
	err := xcontext.DB(ctx).
		Where("auto_entry=?", true).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *userRepository) UpdateByID(ctx context.Context, id string, data *entity.User) error {
	updateMap := map[string]any{}
	if data.Name != "" {
		updateMap["name"] = data.Name
	}

	if data.Email.Valid {
		updateMap["email"] = data.Email
	}

	if data.WalletAddress.Valid {
		updateMap["wallet_address"] = data.WalletAddress
	}

	if data.AccountRef.Valid {
		updateMap["account_ref"] = data.AccountRef
	}

	if data.Role != "" {
		updateMap["role"] = data.Role
	}

	if data.ShippingName != "" {
		updateMap["shipping_name"] = data.ShippingName
	}

	if data.ShippingAddress != "" {
		updateMap["shipping_address"] = data.ShippingAddress
	}

	if len(updateMap) == 0 {
		return nil
	}

	return xcontext.DB(ctx).Model(&entity.User{}).Where("id=?", id).Updates(updateMap).Error
}

func (r *userRepository) SetAutoEntry(ctx context.Context, id string, enabled bool) error {
	return xcontext.DB(ctx).
		Model(&entity.User{}).
		Where("id=?", id).
		Update("auto_entry", enabled).Error
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := xcontext.DB(ctx).Model(&entity.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByID removes the row for good. Soft deletion would keep holding the
// unique name and wallet address, which a merge needs to hand over to the
// surviving user.
func (r *userRepository) DeleteByID(ctx context.Context, id string) error {
	return xcontext.DB(ctx).Unscoped().Delete(&entity.User{}, "id=?", id).Error
}
