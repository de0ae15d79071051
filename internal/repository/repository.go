// Package repository holds the persistence layer. Account, session, message
// and file rows live in MySQL through gorm; patient documents and medication
// orders live in MongoDB.
package repository

import (
	"context"
	"errors"
	"time"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrNoteNotFound    = errors.New("note not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate record")
	ErrInvalidID       = errors.New("invalid id")
)

// PatientRepository stores patient documents. Every mutation increments the
// document version and returns the document as it is after the change.
type PatientRepository interface {
	Create(ctx context.Context, patient *models.Patient) error
	Get(ctx context.Context, id string) (*models.Patient, error)
	List(ctx context.Context, page pagination.Params) ([]models.Patient, int64, error)

	// Update merges the set fields. A non-nil expectedVersion must match the
	// stored version or ErrVersionConflict is returned.
	Update(ctx context.Context, id string, fields models.PatientFields, expectedVersion *int64) (*models.Patient, error)

	PushNote(ctx context.Context, id string, note models.Note) (*models.Patient, error)
	// ReplaceNote swaps the embedded note carrying note.ID. ErrNoteNotFound
	// when the patient exists but has no such note.
	ReplaceNote(ctx context.Context, id string, note models.Note) (*models.Patient, error)
	RemoveNote(ctx context.Context, id string, noteID string) (*models.Patient, error)

	PushMedOrder(ctx context.Context, id string, orderID string) (*models.Patient, error)
	PushFile(ctx context.Context, id string, file models.FileRef) (*models.Patient, error)
}

// MedOrderFilter narrows order listings. Empty fields match everything.
type MedOrderFilter struct {
	PatientID string
}

// MedOrderRepository stores orders in their own collection.
type MedOrderRepository interface {
	Create(ctx context.Context, order *models.MedOrder) error
	// GetByIDs returns the orders that exist, in no particular order.
	// Malformed ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]models.MedOrder, error)
	List(ctx context.Context, filter MedOrderFilter, page pagination.Params) ([]models.MedOrder, int64, error)
	SetValidated(ctx context.Context, id string, validated bool) (*models.MedOrder, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// ListPending returns accounts awaiting review, oldest first. An empty
	// accountType lists every non-admin role.
	ListPending(ctx context.Context, accountType models.Role, page pagination.Params) ([]models.User, int64, error)
	SetApproval(ctx context.Context, id string, approved bool, reviewerID string) (*models.User, error)
}

type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActive(ctx context.Context, userID, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeByToken(ctx context.Context, token string) error
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// ListForPatient returns messages oldest first. A non-nil since keeps only
	// messages created after it.
	ListForPatient(ctx context.Context, patientID string, since *time.Time, page pagination.Params) ([]models.Message, int64, error)
	MarkRead(ctx context.Context, id string) (*models.Message, error)
}

type FileRepository interface {
	Create(ctx context.Context, file *models.PatientFile) error
	Get(ctx context.Context, id string) (*models.PatientFile, error)
	Delete(ctx context.Context, id string) error
}

var (
	_ PatientRepository  = (*MongoPatientRepository)(nil)
	_ MedOrderRepository = (*MongoMedOrderRepository)(nil)
	_ UserRepository     = (*GormUserRepository)(nil)
	_ TokenRepository    = (*GormTokenRepository)(nil)
	_ MessageRepository  = (*GormMessageRepository)(nil)
	_ FileRepository     = (*GormFileRepository)(nil)
)
