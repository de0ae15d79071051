package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
)

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, page(items, pagination.Params{Page: 1, Limit: 2}))
	assert.Equal(t, []int{5}, page(items, pagination.Params{Page: 3, Limit: 2}))
	assert.Empty(t, page(items, pagination.Params{Page: 4, Limit: 2}))
	assert.Empty(t, page(items, pagination.Params{Page: pagination.MaxPage, Limit: pagination.MaxLimit}))
	assert.Empty(t, page(items, pagination.Params{Page: 922337203685477581, Limit: 20}), "overflowing skip")
}

func TestPatientStore_ReturnsCopies(t *testing.T) {
	s := NewPatientStore()
	ctx := context.Background()
	p := &models.Patient{FirstName: "Ana"}
	require.NoError(t, s.Create(ctx, p))

	got, err := s.Get(ctx, p.ID.Hex())
	require.NoError(t, err)
	got.FirstName = "changed"
	got.Notes = append(got.Notes, models.Note{ID: "x"})

	again, err := s.Get(ctx, p.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.FirstName)
	assert.Empty(t, again.Notes)
}

func TestPatientStore_Errors(t *testing.T) {
	s := NewPatientStore()
	ctx := context.Background()
	p := &models.Patient{FirstName: "Ana"}
	require.NoError(t, s.Create(ctx, p))

	_, err := s.Get(ctx, "bogus")
	assert.ErrorIs(t, err, repository.ErrInvalidID)

	_, err = s.Get(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.RemoveNote(ctx, p.ID.Hex(), "missing")
	assert.ErrorIs(t, err, repository.ErrNoteNotFound)

	stale := int64(5)
	_, err = s.Update(ctx, p.ID.Hex(), models.PatientFields{}, &stale)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := s.Get(ctx, p.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version, "failed mutations leave the version alone")
}

func TestPatientStore_NoteMutationsBumpVersion(t *testing.T) {
	s := NewPatientStore()
	ctx := context.Background()
	p := &models.Patient{FirstName: "Ana"}
	require.NoError(t, s.Create(ctx, p))
	id := p.ID.Hex()

	_, err := s.PushNote(ctx, id, models.Note{ID: "a", Content: "one"})
	require.NoError(t, err)
	_, err = s.PushNote(ctx, id, models.Note{ID: "b", Content: "two"})
	require.NoError(t, err)
	got, err := s.ReplaceNote(ctx, id, models.Note{ID: "a", Content: "edited"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, "edited", got.Notes[0].Content)
	assert.Equal(t, "two", got.Notes[1].Content)

	got, err = s.RemoveNote(ctx, id, "a")
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "b", got.Notes[0].ID)
}

func TestUserStore_ListPending(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()
	for _, u := range []*models.User{
		{Email: "d@x.io", AccountType: models.RoleDoctor},
		{Email: "t@x.io", AccountType: models.RoleTriage},
		{Email: "a@x.io", AccountType: models.RoleAdmin},
	} {
		require.NoError(t, s.Create(ctx, u))
	}
	assert.ErrorIs(t, s.Create(ctx, &models.User{Email: "D@X.io"}), repository.ErrDuplicate)

	all, total, err := s.ListPending(ctx, "", pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	triage, _, err := s.ListPending(ctx, models.RoleTriage, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, triage, 1)

	_, err = s.SetApproval(ctx, triage[0].ID, true, "admin")
	require.NoError(t, err)
	_, total, err = s.ListPending(ctx, "", pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestTokenStore_RevokeOnce(t *testing.T) {
	s := NewTokenStore()
	ctx := context.Background()
	tok := &models.RefreshToken{UserID: "u1", Token: "t1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Create(ctx, tok))

	_, err := s.FindActive(ctx, "u1", "t1")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, tok.ID))
	assert.ErrorIs(t, s.Revoke(ctx, tok.ID), repository.ErrNotFound)

	_, err = s.FindActive(ctx, "u1", "t1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
