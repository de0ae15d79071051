package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"patient-records-server/internal/models"
)

// GormTokenRepository implements TokenRepository on refresh_tokens
type GormTokenRepository struct {
	DB *gorm.DB
}

func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{DB: db}
}

func (r *GormTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// FindActive returns the stored token if it is neither revoked nor expired.
func (r *GormTokenRepository) FindActive(ctx context.Context, userID, token string) (*models.RefreshToken, error) {
	var stored models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND user_id = ? AND is_revoked = ? AND expires_at > ?", token, userID, false, time.Now()).
		First(&stored).Error
	if err != nil {
		return nil, translateGormError("failed to find refresh token", err)
	}
	return &stored, nil
}

// Revoke marks one active token revoked. It returns ErrNotFound when the
// token is unknown or already revoked, so of two concurrent rotations of the
// same token only one succeeds.
func (r *GormTokenRepository) Revoke(ctx context.Context, id string) error {
	n, err := r.revoke(r.DB.WithContext(ctx).Where("id = ? AND is_revoked = ?", id, false))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("refresh token %s is no longer active: %w", id, ErrNotFound)
	}
	return nil
}

// RevokeByToken is a no-op when the token is unknown or already revoked.
func (r *GormTokenRepository) RevokeByToken(ctx context.Context, token string) error {
	_, err := r.revoke(r.DB.WithContext(ctx).Where("token = ? AND is_revoked = ?", token, false))
	return err
}

func (r *GormTokenRepository) revoke(scope *gorm.DB) (int64, error) {
	now := time.Now()
	res := scope.Model(&models.RefreshToken{}).Updates(map[string]interface{}{
		"is_revoked": true,
		"revoked_at": now,
		"expires_at": now,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to revoke refresh token: %w", res.Error)
	}
	return res.RowsAffected, nil
}
