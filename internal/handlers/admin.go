package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// AdminHandler serves the signup review queue.
type AdminHandler struct {
	Users        repository.UserRepository
	Log          *logger.Logger
	DefaultLimit int
}

func NewAdminHandler(users repository.UserRepository, log *logger.Logger, defaultLimit int) *AdminHandler {
	return &AdminHandler{Users: users, Log: log, DefaultLimit: defaultLimit}
}

// ApprovalRequest is an admin's decision on a pending signup.
type ApprovalRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve deny"`
}

// ListSignups returns pending accounts, optionally filtered by ?accountType.
func (h *AdminHandler) ListSignups(c *gin.Context) {
	accountType := models.Role(c.Query("accountType"))
	switch accountType {
	case "", models.RoleDoctor, models.RoleTriage:
	default:
		utils.BadRequest(c, "accountType must be doctor or triage")
		return
	}

	page := pagination.FromContext(c, h.DefaultLimit)
	users, total, err := h.Users.ListPending(c.Request.Context(), accountType, page)
	if err != nil {
		utils.ServerError(c, "Failed to fetch signups", err)
		return
	}

	sanitized := make([]models.UserSanitized, len(users))
	for i := range users {
		sanitized[i] = users[i].Sanitize()
	}

	utils.Success(c, "Signups fetched successfully", pagination.NewResponse(sanitized, total, page).Body("users"))
}

// SetApproval approves or denies an account. A later decision overrides an
// earlier one.
func (h *AdminHandler) SetApproval(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req ApprovalRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	target, err := h.Users.FindByID(ctx, id)
	if err != nil {
		respondRepoError(c, err, "User not found")
		return
	}
	if target.AccountType == models.RoleAdmin {
		utils.BadRequest(c, "Admin accounts are not subject to review")
		return
	}

	user, err := h.Users.SetApproval(ctx, id, req.Decision == "approve", who.ID)
	if err != nil {
		respondRepoError(c, err, "User not found")
		return
	}

	h.Log.Audit(who.ID, req.Decision, "user", true, logrus.Fields{"target_user_id": id})
	utils.Success(c, "User review recorded", user.Sanitize())
}
