package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

func setupGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

var userColumns = []string{
	"id", "email", "password", "first_name", "last_name", "account_type",
	"specialty", "approved_at", "denied_at", "reviewed_by", "created_at", "updated_at",
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "doc@example.com", AccountType: models.RoleDoctor}
	require.NoError(t, repo.Create(context.Background(), user))

	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormUserRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(userColumns).AddRow(
		"u-1", "doc@example.com", "hash", "Gregory", "House", "doctor",
		"Diagnostics", now, nil, "admin-1", now, now,
	)
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE email = \\?").WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "doc@example.com")
	require.NoError(t, err)

	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, models.RoleDoctor, user.AccountType)
	assert.Equal(t, models.ApprovalApproved, user.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmailNotFound(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormUserRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE email = \\?").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_ListPending(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormUserRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `users` WHERE .*approved_at IS NULL AND denied_at IS NULL.* AND account_type = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE .*approved_at IS NULL AND denied_at IS NULL.* AND account_type = \\? ORDER BY created_at asc").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-2", "t1@example.com", "hash", "Tri", "One", "triage", "", nil, nil, "", now, now).
			AddRow("u-3", "t2@example.com", "hash", "Tri", "Two", "triage", "", nil, nil, "", now, now))

	users, total, err := repo.ListPending(context.Background(), models.RoleTriage, pagination.Params{Page: 1, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(3), total)
	require.Len(t, users, 2)
	assert.Equal(t, models.ApprovalPending, users[0].Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_SetApproval(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormUserRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u-2", "t1@example.com", "hash", "Tri", "One", "triage", "", nil, nil, "", now, now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := repo.SetApproval(context.Background(), "u-2", false, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalDenied, user.Status())
	assert.Equal(t, "admin-1", user.ReviewedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_RevokeByToken(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `refresh_tokens` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.NoError(t, repo.RevokeByToken(context.Background(), "stale"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_RevokeOnlyActive(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `refresh_tokens` SET .* WHERE .*id = \\? AND is_revoked = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `refresh_tokens` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.Revoke(context.Background(), "tok-1"))
	assert.ErrorIs(t, repo.Revoke(context.Background(), "tok-1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkReadNotFound(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormMessageRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "status"}))

	_, err := repo.MarkRead(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormMessageRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "sender_id", "content", "status", "created_at", "updated_at"}).
			AddRow("m-1", "64b7f0c2a1b2c3d4e5f60718", "u-1", "BP stable", "sent", now, now))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `messages` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.MarkRead(context.Background(), "m-1")
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusRead, msg.Status)
	assert.NotNil(t, msg.ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_ListForPatientSince(t *testing.T) {
	db, mock := setupGorm(t)
	repo := NewGormMessageRepository(db)
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `messages` WHERE patient_id = \\? AND created_at > \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT \\* FROM `messages` WHERE patient_id = \\? AND created_at > \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	msgs, total, err := repo.ListForPatient(context.Background(), "p-1", &since, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)

	assert.Zero(t, total)
	assert.Empty(t, msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
