package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

// GormUserRepository implements UserRepository on the users table
type GormUserRepository struct {
	DB *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{DB: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.DB.WithContext(ctx).Create(user).Error; err != nil {
		return translateGormError("failed to create user", err)
	}
	return nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateGormError("failed to find user", err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateGormError("failed to find user", err)
	}
	return &user, nil
}

func (r *GormUserRepository) ListPending(ctx context.Context, accountType models.Role, page pagination.Params) ([]models.User, int64, error) {
	pending := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&models.User{}).
			Where("approved_at IS NULL AND denied_at IS NULL")
		if accountType != "" {
			return q.Where("account_type = ?", accountType)
		}
		return q.Where("account_type <> ?", models.RoleAdmin)
	}

	var total int64
	if err := pending().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pending users: %w", err)
	}

	users := []models.User{}
	err := pending().
		Order("created_at asc").
		Offset(int(page.Skip())).
		Limit(page.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending users: %w", err)
	}
	return users, total, nil
}

// SetApproval stamps approvedAt or deniedAt and clears the other one.
func (r *GormUserRepository) SetApproval(ctx context.Context, id string, approved bool, reviewerID string) (*models.User, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{"reviewed_by": reviewerID}
	if approved {
		updates["approved_at"] = now
		updates["denied_at"] = nil
		user.ApprovedAt, user.DeniedAt = &now, nil
	} else {
		updates["denied_at"] = now
		updates["approved_at"] = nil
		user.ApprovedAt, user.DeniedAt = nil, &now
	}
	user.ReviewedBy = reviewerID

	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}
	return user, nil
}

// translateGormError maps gorm sentinels onto the repository ones.
func translateGormError(msg string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
