// Package memory provides in-process implementations of the repository
// interfaces. They back `serve --in-memory` for local runs and the HTTP
// level tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
)

// page returns the slice of items selected by p.
func page[T any](items []T, p pagination.Params) []T {
	skip := p.Skip()
	if skip < 0 || skip >= int64(len(items)) || p.Limit <= 0 {
		return []T{}
	}
	start := int(skip)
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

func reversed[T any](items []T) []T {
	out := make([]T, len(items))
	for i, v := range items {
		out[len(items)-1-i] = v
	}
	return out
}

// PatientStore keeps patient documents in insertion order.
type PatientStore struct {
	mu       sync.Mutex
	patients []*models.Patient
}

func NewPatientStore() *PatientStore {
	return &PatientStore{}
}

func clonePatient(p *models.Patient) *models.Patient {
	c := *p
	c.Notes = append([]models.Note{}, p.Notes...)
	c.MedOrderIDs = append([]string{}, p.MedOrderIDs...)
	c.Files = append([]models.FileRef{}, p.Files...)
	c.MedOrders = nil
	return &c
}

func (s *PatientStore) find(id string) (*models.Patient, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}
	for _, p := range s.patients {
		if p.ID == oid {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *PatientStore) Create(_ context.Context, patient *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if patient.ID.IsZero() {
		patient.ID = primitive.NewObjectID()
	}
	patient.Version = 1
	patient.CreatedAt = now
	patient.UpdatedAt = now
	stored := clonePatient(patient)
	s.patients = append(s.patients, stored)

	*patient = *clonePatient(stored)
	return nil
}

func (s *PatientStore) Get(_ context.Context, id string) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return clonePatient(p), nil
}

func (s *PatientStore) List(_ context.Context, p pagination.Params) ([]models.Patient, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Patient, 0, len(s.patients))
	for _, stored := range reversed(s.patients) {
		all = append(all, *clonePatient(stored))
	}
	return page(all, p), int64(len(all)), nil
}

// mutate runs fn on the stored document under the lock and bumps the version
// when fn succeeds.
func (s *PatientStore) mutate(id string, fn func(p *models.Patient) error) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	return clonePatient(p), nil
}

func (s *PatientStore) Update(_ context.Context, id string, fields models.PatientFields, expectedVersion *int64) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		if expectedVersion != nil && *expectedVersion != p.Version {
			return repository.ErrVersionConflict
		}
		fields.Apply(p)
		return nil
	})
}

func (s *PatientStore) PushNote(_ context.Context, id string, note models.Note) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		p.Notes = append(p.Notes, note)
		return nil
	})
}

func (s *PatientStore) ReplaceNote(_ context.Context, id string, note models.Note) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		for i := range p.Notes {
			if p.Notes[i].ID == note.ID {
				p.Notes[i] = note
				return nil
			}
		}
		return repository.ErrNoteNotFound
	})
}

func (s *PatientStore) RemoveNote(_ context.Context, id string, noteID string) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		for i := range p.Notes {
			if p.Notes[i].ID == noteID {
				p.Notes = append(p.Notes[:i:i], p.Notes[i+1:]...)
				return nil
			}
		}
		return repository.ErrNoteNotFound
	})
}

func (s *PatientStore) PushMedOrder(_ context.Context, id string, orderID string) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		p.MedOrderIDs = append(p.MedOrderIDs, orderID)
		return nil
	})
}

func (s *PatientStore) PushFile(_ context.Context, id string, file models.FileRef) (*models.Patient, error) {
	return s.mutate(id, func(p *models.Patient) error {
		p.Files = append(p.Files, file)
		return nil
	})
}

// MedOrderStore keeps orders in insertion order.
type MedOrderStore struct {
	mu     sync.Mutex
	orders []models.MedOrder
}

func NewMedOrderStore() *MedOrderStore {
	return &MedOrderStore{}
}

func cloneOrder(o models.MedOrder) models.MedOrder {
	o.Items = append([]models.OrderItem{}, o.Items...)
	return o
}

func (s *MedOrderStore) Create(_ context.Context, order *models.MedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders = append(s.orders, cloneOrder(*order))
	return nil
}

func (s *MedOrderStore) GetByIDs(_ context.Context, ids []string) ([]models.MedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []models.MedOrder{}
	for _, o := range s.orders {
		if want[o.ID.Hex()] {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *MedOrderStore) List(_ context.Context, filter repository.MedOrderFilter, p pagination.Params) ([]models.MedOrder, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.MedOrder{}
	for _, o := range reversed(s.orders) {
		if filter.PatientID == "" || o.PatientID == filter.PatientID {
			matched = append(matched, cloneOrder(o))
		}
	}
	return page(matched, p), int64(len(matched)), nil
}

func (s *MedOrderStore) SetValidated(_ context.Context, id string, validated bool) (*models.MedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}
	for i := range s.orders {
		if s.orders[i].ID == oid {
			s.orders[i].Validated = validated
			o := cloneOrder(s.orders[i])
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func assignBase(b *models.BaseModel) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// UserStore keeps accounts in signup order.
type UserStore struct {
	mu    sync.Mutex
	users []*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	assignBase(&user.BaseModel)
	c := *user
	s.users = append(s.users, &c)
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) ListPending(_ context.Context, accountType models.Role, p pagination.Params) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.User{}
	for _, u := range s.users {
		if u.ApprovedAt != nil || u.DeniedAt != nil || u.AccountType == models.RoleAdmin {
			continue
		}
		if accountType != "" && u.AccountType != accountType {
			continue
		}
		matched = append(matched, *u)
	}
	return page(matched, p), int64(len(matched)), nil
}

func (s *UserStore) SetApproval(_ context.Context, id string, approved bool, reviewerID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID != id {
			continue
		}
		now := time.Now()
		if approved {
			u.ApprovedAt, u.DeniedAt = &now, nil
		} else {
			u.ApprovedAt, u.DeniedAt = nil, &now
		}
		u.ReviewedBy = reviewerID
		u.UpdatedAt = now
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

// TokenStore keeps refresh tokens.
type TokenStore struct {
	mu     sync.Mutex
	tokens []*models.RefreshToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Create(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignBase(&token.BaseModel)
	c := *token
	s.tokens = append(s.tokens, &c)
	return nil
}

func (s *TokenStore) FindActive(_ context.Context, userID, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, t := range s.tokens {
		if t.Token == token && t.UserID == userID && t.Active(now) {
			c := *t
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *TokenStore) Revoke(_ context.Context, id string) error {
	if s.revokeWhere(func(t *models.RefreshToken) bool { return t.ID == id }) == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *TokenStore) RevokeByToken(_ context.Context, token string) error {
	s.revokeWhere(func(t *models.RefreshToken) bool { return t.Token == token })
	return nil
}

// revokeWhere revokes every unrevoked match and reports how many changed.
func (s *TokenStore) revokeWhere(match func(*models.RefreshToken) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := time.Now()
	for _, t := range s.tokens {
		if match(t) && !t.IsRevoked {
			t.MarkRevoked(now)
			n++
		}
	}
	return n
}

// MessageStore keeps messages in send order.
type MessageStore struct {
	mu       sync.Mutex
	messages []*models.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Create(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.Status == "" {
		message.Status = models.MessageStatusSent
	}
	assignBase(&message.BaseModel)
	c := *message
	s.messages = append(s.messages, &c)
	return nil
}

func (s *MessageStore) ListForPatient(_ context.Context, patientID string, since *time.Time, p pagination.Params) ([]models.Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Message{}
	for _, m := range s.messages {
		if m.PatientID != patientID {
			continue
		}
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		matched = append(matched, *m)
	}
	return page(matched, p), int64(len(matched)), nil
}

func (s *MessageStore) MarkRead(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID != id {
			continue
		}
		if m.Status != models.MessageStatusRead {
			now := time.Now()
			m.Status = models.MessageStatusRead
			m.ReadAt = &now
		}
		c := *m
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

// FileStore keeps uploaded bytes by id.
type FileStore struct {
	mu    sync.Mutex
	files map[string]models.PatientFile
}

func NewFileStore() *FileStore {
	return &FileStore{files: map[string]models.PatientFile{}}
}

func (s *FileStore) Create(_ context.Context, file *models.PatientFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignBase(&file.BaseModel)
	s.files[file.ID] = *file
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (*models.PatientFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, id)
	return nil
}

// Len is the number of stored files.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

var (
	_ repository.PatientRepository  = (*PatientStore)(nil)
	_ repository.MedOrderRepository = (*MedOrderStore)(nil)
	_ repository.UserRepository     = (*UserStore)(nil)
	_ repository.TokenRepository    = (*TokenStore)(nil)
	_ repository.MessageRepository  = (*MessageStore)(nil)
	_ repository.FileRepository     = (*FileStore)(nil)
)
