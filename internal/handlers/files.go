package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// FileHandler serves a patient's image gallery.
type FileHandler struct {
	Files    repository.FileRepository
	Patients repository.PatientRepository
	Log      *logger.Logger
	MaxBytes int64
}

func NewFileHandler(files repository.FileRepository, patients repository.PatientRepository, log *logger.Logger, maxUploadMB int) *FileHandler {
	return &FileHandler{Files: files, Patients: patients, Log: log, MaxBytes: int64(maxUploadMB) << 20}
}

// UploadFile accepts a multipart "file" field. Only images are stored; the
// type is sniffed from the bytes, not taken from the client.
func (h *FileHandler) UploadFile(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.Patients.Get(ctx, id); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes+(1<<20))
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.BadRequest(c, fmt.Sprintf("File exceeds the %d MB limit", h.MaxBytes>>20))
			return
		}
		utils.BadRequest(c, "A file is required in the 'file' field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxBytes+1))
	if err != nil {
		utils.BadRequest(c, "Failed to read uploaded file: "+err.Error())
		return
	}
	if int64(len(data)) > h.MaxBytes {
		utils.BadRequest(c, fmt.Sprintf("File exceeds the %d MB limit", h.MaxBytes>>20))
		return
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		utils.BadRequest(c, "Only image uploads are accepted, got "+mtype.String())
		return
	}

	stored := models.PatientFile{
		PatientID:  id,
		UploadedBy: who.ID,
		FileName:   filepath.Base(header.Filename),
		FileType:   mtype.String(),
		Size:       int64(len(data)),
		FileData:   data,
	}
	if err := h.Files.Create(ctx, &stored); err != nil {
		utils.ServerError(c, "Failed to store file", err)
		return
	}

	ref := models.FileRef{
		FileID:      stored.ID,
		FileName:    stored.FileName,
		ContentType: stored.FileType,
		Size:        stored.Size,
		UploadedAt:  time.Now().UTC(),
	}
	if _, err := h.Patients.PushFile(ctx, id, ref); err != nil {
		// The blob is unreachable without the patient reference.
		if delErr := h.Files.Delete(context.WithoutCancel(ctx), stored.ID); delErr != nil {
			h.Log.WithComponent("files").WithFields(logrus.Fields{
				"file_id": stored.ID,
				"error":   delErr.Error(),
			}).Error("Failed to remove orphaned upload")
		}
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Log.Audit(who.ID, "upload", "patient_file", true, logrus.Fields{"patient_id": id, "file_id": stored.ID, "content_type": stored.FileType})
	utils.Created(c, "File uploaded successfully", ref)
}

// GetFile streams the stored bytes with their sniffed content type.
func (h *FileHandler) GetFile(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	file, err := h.Files.Get(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondRepoError(c, err, "File not found")
		return
	}
	h.Log.PHIAccess(middleware.GetRequestID(c), who.ID, file.PatientID, "patient_file")

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.FileName))
	c.Data(http.StatusOK, file.FileType, file.FileData)
}
