package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// PatientHandler serves patient documents.
type PatientHandler struct {
	Patients     repository.PatientRepository
	Orders       repository.MedOrderRepository
	Log          *logger.Logger
	DefaultLimit int
}

func NewPatientHandler(patients repository.PatientRepository, orders repository.MedOrderRepository, log *logger.Logger, defaultLimit int) *PatientHandler {
	return &PatientHandler{Patients: patients, Orders: orders, Log: log, DefaultLimit: defaultLimit}
}

// CreatePatientRequest is the intake form. Name fields are mandatory, the
// rest follow PatientFields validation.
type CreatePatientRequest struct {
	models.PatientFields
}

// CreatePatient registers a new patient document (triage intake).
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req CreatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if req.FirstName == nil || *req.FirstName == "" || req.LastName == nil || *req.LastName == "" {
		utils.BadRequest(c, "Validation failed: firstName and lastName are required")
		return
	}

	patient := &models.Patient{}
	req.Apply(patient)

	if err := h.Patients.Create(c.Request.Context(), patient); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Log.Audit(who.ID, "create", "patient", true, logrus.Fields{"patient_id": patient.ID.Hex()})
	utils.Created(c, "Patient created successfully", patient)
}

// ListPatients returns one page of patients, newest first.
func (h *PatientHandler) ListPatients(c *gin.Context) {
	page := pagination.FromContext(c, h.DefaultLimit)

	patients, total, err := h.Patients.List(c.Request.Context(), page)
	if err != nil {
		utils.ServerError(c, "Failed to fetch patients", err)
		return
	}

	utils.Success(c, "Patients fetched successfully", pagination.NewResponse(patients, total, page).Body("patients"))
}

// GetPatient returns one patient. With ?include=orders the referenced
// medication orders are embedded in medOrders, in medOrderIds order.
func (h *PatientHandler) GetPatient(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	patient, err := h.Patients.Get(ctx, id)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}
	h.Log.PHIAccess(middleware.GetRequestID(c), who.ID, id, "patient")

	if c.Query("include") == "orders" {
		orders, err := h.Orders.GetByIDs(ctx, patient.MedOrderIDs)
		if err != nil {
			utils.ServerError(c, "Failed to fetch medication orders", err)
			return
		}
		patient.MedOrders = orderByIDs(patient.MedOrderIDs, orders)
	}

	utils.Success(c, "Patient fetched successfully", patient)
}

// UpdatePatient merges the validated fields into the document. An If-Match
// header carrying the expected version turns a concurrent edit into a 409.
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}
	expected, ok := ifMatchVersion(c)
	if !ok {
		return
	}

	var fields models.PatientFields
	if !utils.BindAndValidate(c, &fields) {
		return
	}
	if fields.Empty() {
		utils.BadRequest(c, "No updatable fields supplied")
		return
	}

	id := c.Param("id")
	patient, err := h.Patients.Update(c.Request.Context(), id, fields, expected)
	if err != nil {
		h.Log.Audit(who.ID, "update", "patient", false, logrus.Fields{"patient_id": id, "error": err.Error()})
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.Log.Audit(who.ID, "update", "patient", true, logrus.Fields{"patient_id": id, "version": patient.Version})
	utils.Success(c, "Patient updated successfully", patient)
}

// orderByIDs arranges orders to follow ids, skipping ids with no order.
func orderByIDs(ids []string, orders []models.MedOrder) []models.MedOrder {
	byID := make(map[string]models.MedOrder, len(orders))
	for _, o := range orders {
		byID[o.ID.Hex()] = o
	}
	out := make([]models.MedOrder, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
