package handlers

import (
	"errors"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// NoteHandler manages the clinical notes embedded in a patient document.
type NoteHandler struct {
	Patients repository.PatientRepository
	Log      *logger.Logger
	Metrics  *metrics.Metrics
}

func NewNoteHandler(patients repository.PatientRepository, log *logger.Logger, m *metrics.Metrics) *NoteHandler {
	return &NoteHandler{Patients: patients, Log: log, Metrics: m}
}

// NoteRequest is the body of note create and update calls. Draft defaults to
// false on create and to the stored value on update.
type NoteRequest struct {
	ID       string          `json:"id"`
	NoteType models.NoteType `json:"noteType" binding:"required,oneof=physician procedure subjective triage"`
	Title    string          `json:"title" binding:"max=200"`
	Content  string          `json:"content" binding:"required,max=20000"`
	Draft    *bool           `json:"draft"`
}

// DeleteNoteRequest identifies the note to remove.
type DeleteNoteRequest struct {
	ID string `json:"id" binding:"required"`
}

// UpdateNoteResponse reports whether the update fell back to a create.
type UpdateNoteResponse struct {
	Patient *models.Patient `json:"patient"`
	Note    models.Note     `json:"note"`
	Created bool            `json:"created"`
}

// triageNoteTypes are the only note types a triage account may write.
var triageNoteTypes = map[models.NoteType]bool{
	models.NoteTypeTriage:     true,
	models.NoteTypeSubjective: true,
}

func canAuthor(role models.Role, noteType models.NoteType) bool {
	return role != models.RoleTriage || triageNoteTypes[noteType]
}

// CreateNote appends a note with a server assigned id.
func (h *NoteHandler) CreateNote(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req NoteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if !canAuthor(who.Role, req.NoteType) {
		utils.Forbidden(c, "Triage accounts may only write triage and subjective notes")
		return
	}

	id := c.Param("id")
	note := newNote(req, who)
	if _, err := h.Patients.PushNote(c.Request.Context(), id, note); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Metrics.NoteMutation("create")
	h.Log.Audit(who.ID, "create", "note", true, logrus.Fields{"patient_id": id, "note_id": note.ID})
	utils.Created(c, "Note created successfully", note)
}

// UpdateNote replaces the note whose id matches req.ID. When the stored
// patient has no such note, a new note is created instead and the response
// says so with created=true. A published note cannot go back to draft.
func (h *NoteHandler) UpdateNote(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req NoteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if req.ID == "" {
		utils.BadRequest(c, "Validation failed: id is required")
		return
	}
	if !canAuthor(who.Role, req.NoteType) {
		utils.Forbidden(c, "Triage accounts may only write triage and subjective notes")
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	patient, err := h.Patients.Get(ctx, id)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	existing, found := patient.FindNote(req.ID)
	if found {
		if !canAuthor(who.Role, existing.NoteType) {
			utils.Forbidden(c, "Triage accounts may only write triage and subjective notes")
			return
		}
		if !existing.Draft && req.Draft != nil && *req.Draft {
			utils.Conflict(c, "A published note cannot be returned to draft")
			return
		}

		updated := applyNoteUpdate(existing, req)
		patient, err = h.Patients.ReplaceNote(ctx, id, updated)
		if err == nil {
			h.Metrics.NoteMutation("update")
			h.Log.Audit(who.ID, "update", "note", true, logrus.Fields{"patient_id": id, "note_id": updated.ID})
			utils.Success(c, "Note updated successfully", UpdateNoteResponse{Patient: patient, Note: updated})
			return
		}
		if !errors.Is(err, repository.ErrNoteNotFound) {
			respondRepoError(c, err, "Patient not found")
			return
		}
		// Removed between the read and the write: same as never found.
	}

	note := newNote(req, who)
	patient, err = h.Patients.PushNote(ctx, id, note)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Metrics.NoteMutation("fallback_create")
	h.Log.WithComponent("notes").WithFields(logrus.Fields{
		"request_id":   middleware.GetRequestID(c),
		"patient_id":   id,
		"requested_id": req.ID,
		"note_id":      note.ID,
	}).Warn("Note update targeted an unknown id; created a new note")
	h.Log.Audit(who.ID, "create", "note", true, logrus.Fields{"patient_id": id, "note_id": note.ID, "fallback": true})

	utils.Success(c, "Note not found; created a new note", UpdateNoteResponse{Patient: patient, Note: note, Created: true})
}

// DeleteNote removes exactly one note. The id comes from ?noteId or the body.
func (h *NoteHandler) DeleteNote(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	noteID := c.Query("noteId")
	if noteID == "" {
		var req DeleteNoteRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		noteID = req.ID
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	if who.Role == models.RoleTriage {
		patient, err := h.Patients.Get(ctx, id)
		if err != nil {
			respondRepoError(c, err, "Patient not found")
			return
		}
		if existing, found := patient.FindNote(noteID); found && !canAuthor(who.Role, existing.NoteType) {
			utils.Forbidden(c, "Triage accounts may only remove triage and subjective notes")
			return
		}
	}

	patient, err := h.Patients.RemoveNote(ctx, id, noteID)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Metrics.NoteMutation("delete")
	h.Log.Audit(who.ID, "delete", "note", true, logrus.Fields{"patient_id": id, "note_id": noteID})
	utils.Success(c, "Note deleted successfully", patient)
}

// ListNotes returns a patient's notes, most recent first. ?draft=true or
// ?draft=false keeps only drafts or only published notes.
func (h *NoteHandler) ListNotes(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")

	patient, err := h.Patients.Get(c.Request.Context(), id)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}
	h.Log.PHIAccess(middleware.GetRequestID(c), who.ID, id, "notes")

	var draftFilter *bool
	switch c.Query("draft") {
	case "true":
		v := true
		draftFilter = &v
	case "false":
		v := false
		draftFilter = &v
	case "":
	default:
		utils.BadRequest(c, "draft must be true or false")
		return
	}

	utils.Success(c, "Notes fetched successfully", sortNotes(patient.Notes, draftFilter))
}

func newNote(req NoteRequest, who actor) models.Note {
	draft := false
	if req.Draft != nil {
		draft = *req.Draft
	}
	return models.Note{
		ID:         uuid.New().String(),
		NoteType:   req.NoteType,
		Title:      req.Title,
		Content:    req.Content,
		AuthorName: who.Name,
		AuthorID:   who.ID,
		Email:      who.Email,
		Date:       time.Now().UTC(),
		Draft:      draft,
	}
}

// applyNoteUpdate keeps identity and authorship, replaces the editable
// fields and restamps the date.
func applyNoteUpdate(existing models.Note, req NoteRequest) models.Note {
	updated := existing
	updated.NoteType = req.NoteType
	updated.Title = req.Title
	updated.Content = req.Content
	if req.Draft != nil {
		updated.Draft = *req.Draft
	}
	updated.Date = time.Now().UTC()
	return updated
}

func sortNotes(notes []models.Note, draft *bool) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if draft == nil || n.Draft == *draft {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
