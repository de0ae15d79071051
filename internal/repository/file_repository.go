package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"patient-records-server/internal/models"
)

// GormFileRepository stores uploaded image bytes
type GormFileRepository struct {
	DB *gorm.DB
}

func NewGormFileRepository(db *gorm.DB) *GormFileRepository {
	return &GormFileRepository{DB: db}
}

func (r *GormFileRepository) Create(ctx context.Context, file *models.PatientFile) error {
	if err := r.DB.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

func (r *GormFileRepository) Get(ctx context.Context, id string) (*models.PatientFile, error) {
	var file models.PatientFile
	if err := r.DB.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, translateGormError("failed to find file", err)
	}
	return &file, nil
}

// Delete removes a stored blob; unknown ids are not an error.
func (r *GormFileRepository) Delete(ctx context.Context, id string) error {
	if err := r.DB.WithContext(ctx).Delete(&models.PatientFile{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
