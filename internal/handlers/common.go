package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// actor is the authenticated caller as carried by the access token.
type actor struct {
	ID    string
	Name  string
	Email string
	Role  models.Role
}

func currentActor(c *gin.Context) (actor, bool) {
	id, ok := middleware.GetUserIDFromContext(c)
	if !ok || id == "" {
		return actor{}, false
	}
	role, _ := middleware.GetUserRoleFromContext(c)
	name, _ := middleware.GetUserNameFromContext(c)
	email, _ := middleware.GetUserEmailFromContext(c)
	return actor{ID: id, Name: name, Email: email, Role: role}, true
}

// requireActor writes a 401 when the request carries no identity.
func requireActor(c *gin.Context) (actor, bool) {
	a, ok := currentActor(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
	}
	return a, ok
}

// respondRepoError maps repository sentinels onto HTTP statuses.
func respondRepoError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, repository.ErrInvalidID):
		utils.BadRequest(c, "Invalid id format")
	case errors.Is(err, repository.ErrNoteNotFound):
		utils.NotFound(c, "Note not found")
	case errors.Is(err, repository.ErrNotFound):
		utils.NotFound(c, notFound)
	case errors.Is(err, repository.ErrVersionConflict):
		utils.Conflict(c, "Record was modified by another request; reload and retry")
	case errors.Is(err, repository.ErrDuplicate):
		utils.Conflict(c, "Record already exists")
	default:
		utils.ServerError(c, "Database error", err)
	}
}

// ifMatchVersion reads an optional If-Match header holding a document
// version. Quoted and weak forms ("3", W/"3") are accepted.
func ifMatchVersion(c *gin.Context) (*int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return nil, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		utils.BadRequest(c, "If-Match must carry a document version")
		return nil, false
	}
	return &v, true
}
