package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// MessageHandler handles the care team chat attached to a patient record.
type MessageHandler struct {
	Messages     repository.MessageRepository
	Patients     repository.PatientRepository
	Log          *logger.Logger
	DefaultLimit int
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages repository.MessageRepository, patients repository.PatientRepository, log *logger.Logger, defaultLimit int) *MessageHandler {
	return &MessageHandler{Messages: messages, Patients: patients, Log: log, DefaultLimit: defaultLimit}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// SendMessage posts a message on a patient's thread.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.Patients.Get(ctx, id); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	message := models.Message{
		PatientID:  id,
		SenderID:   who.ID,
		SenderName: who.Name,
		SenderRole: who.Role,
		Content:    req.Content,
		Status:     models.MessageStatusSent,
	}
	if err := h.Messages.Create(ctx, &message); err != nil {
		utils.ServerError(c, "Failed to send message", err)
		return
	}

	h.Log.Audit(who.ID, "create", "message", true, logrus.Fields{"patient_id": id, "message_id": message.ID})
	utils.Created(c, "Message sent successfully", message)
}

// ListMessages returns a page of a patient's thread, oldest first.
// ?since=<RFC3339> returns only newer messages, for polling clients.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.BadRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}

	if _, err := h.Patients.Get(ctx, id); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	page := pagination.FromContext(c, h.DefaultLimit)
	messages, total, err := h.Messages.ListForPatient(ctx, id, since, page)
	if err != nil {
		utils.ServerError(c, "Failed to fetch messages", err)
		return
	}

	utils.Success(c, "Messages fetched successfully", pagination.NewResponse(messages, total, page).Body("messages"))
}

// MarkMessageAsRead marks one message read.
func (h *MessageHandler) MarkMessageAsRead(c *gin.Context) {
	message, err := h.Messages.MarkRead(c.Request.Context(), c.Param("messageId"))
	if err != nil {
		respondRepoError(c, err, "Message not found")
		return
	}
	utils.Success(c, "Message marked as read", message)
}
