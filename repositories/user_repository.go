package repositories

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"natours-api/models"
)

// UserRepository only ever sees active accounts, except for the
// maintenance queries that say otherwise.
type UserRepository struct {
	*Repository[models.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		Repository: NewRepository[models.User](db, models.UserFields, models.ActiveUsers),
		db:         db,
	}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Scopes(models.ActiveUsers).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &user, nil
}

// FindByResetToken matches the hashed token against unexpired reset requests.
func (r *UserRepository) FindByResetToken(ctx context.Context, hashed string, now time.Time) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Scopes(models.ActiveUsers).
		Where("password_reset_token = ?", hashed).
		Where("password_reset_expires > ?", now).
		First(&user).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &user, nil
}

// SaveResetToken persists the reset token and expiry as they are on user,
// including when they were cleared.
func (r *UserRepository) SaveResetToken(ctx context.Context, user *models.User) error {
	return r.Update(ctx, user, []string{"password_reset_token", "password_reset_expires"})
}

// SavePassword stores a new password hash and closes any pending reset.
func (r *UserRepository) SavePassword(ctx context.Context, user *models.User) error {
	return r.Update(ctx, user, []string{
		"password", "password_changed_at", "password_reset_token", "password_reset_expires",
	})
}

func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.UpdateColumns(ctx, id, map[string]interface{}{"active": false})
}

// ClearExpiredResetTokens drops reset requests that can no longer be used.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("password_reset_expires IS NOT NULL AND password_reset_expires <= ?", now).
		Updates(map[string]interface{}{
			"password_reset_token":   nil,
			"password_reset_expires": nil,
		})
	if result.Error != nil {
		return 0, errors.WithStack(result.Error)
	}
	return result.RowsAffected, nil
}
