package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

// GormMessageRepository implements MessageRepository on the messages table
type GormMessageRepository struct {
	DB *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{DB: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.Status == "" {
		message.Status = models.MessageStatusSent
	}
	if err := r.DB.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *GormMessageRepository) ListForPatient(ctx context.Context, patientID string, since *time.Time, page pagination.Params) ([]models.Message, int64, error) {
	thread := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&models.Message{}).Where("patient_id = ?", patientID)
		if since != nil {
			q = q.Where("created_at > ?", *since)
		}
		return q
	}

	var total int64
	if err := thread().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	messages := []models.Message{}
	err := thread().
		Order("created_at asc").
		Offset(int(page.Skip())).
		Limit(page.Limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, total, nil
}

// MarkRead sets the read status once. Already read messages are returned as is.
func (r *GormMessageRepository) MarkRead(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := r.DB.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, translateGormError("failed to find message", err)
	}
	if message.Status == models.MessageStatusRead {
		return &message, nil
	}

	now := time.Now()
	err := r.DB.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":  models.MessageStatusRead,
		"read_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}

	message.Status = models.MessageStatusRead
	message.ReadAt = &now
	return &message, nil
}
