package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
)

// MedicationHandler creates and lists medication orders.
type MedicationHandler struct {
	Patients     repository.PatientRepository
	Orders       repository.MedOrderRepository
	Users        repository.UserRepository
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	DefaultLimit int
}

func NewMedicationHandler(patients repository.PatientRepository, orders repository.MedOrderRepository, users repository.UserRepository, log *logger.Logger, m *metrics.Metrics, defaultLimit int) *MedicationHandler {
	return &MedicationHandler{Patients: patients, Orders: orders, Users: users, Log: log, Metrics: m, DefaultLimit: defaultLimit}
}

// MedOrderRequest is a single medication order.
type MedOrderRequest struct {
	models.OrderItem
	ValidTill *time.Time `json:"validTill"`
}

// RxOrderRequest is a prescription with one or more lines.
type RxOrderRequest struct {
	Items     []models.OrderItem `json:"items" binding:"required,min=1,max=50,dive"`
	ValidTill *time.Time         `json:"validTill"`
}

// ValidationRequest toggles the validated gate of an order.
type ValidationRequest struct {
	Validated *bool `json:"validated" binding:"required"`
}

// CreateMedOrder stores a single item order and returns it.
func (h *MedicationHandler) CreateMedOrder(c *gin.Context) {
	var req MedOrderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	order, _, ok := h.createOrder(c, models.OrderKindMed, []models.OrderItem{req.OrderItem}, req.ValidTill)
	if !ok {
		return
	}
	utils.Created(c, "Medication order created successfully", order)
}

// CreateRxOrder stores a multi item prescription and returns the patient.
func (h *MedicationHandler) CreateRxOrder(c *gin.Context) {
	var req RxOrderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	_, patient, ok := h.createOrder(c, models.OrderKindRx, req.Items, req.ValidTill)
	if !ok {
		return
	}
	utils.Created(c, "Prescription created successfully", patient)
}

// createOrder inserts the order and links it to the patient. On failure the
// error response has been written.
func (h *MedicationHandler) createOrder(c *gin.Context, kind models.OrderKind, items []models.OrderItem, validTill *time.Time) (*models.MedOrder, *models.Patient, bool) {
	who, ok := requireActor(c)
	if !ok {
		return nil, nil, false
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	patient, err := h.Patients.Get(ctx, id)
	if err != nil {
		respondRepoError(c, err, "Patient not found")
		return nil, nil, false
	}

	order := &models.MedOrder{
		PatientID:      patient.ID.Hex(),
		PatientName:    patient.FullName(),
		Kind:           kind,
		Items:          items,
		PrescriberName: who.Name,
		PrescriberID:   who.ID,
		Date:           time.Now().UTC(),
		ValidTill:      validTill,
	}
	if prescriber, err := h.Users.FindByID(ctx, who.ID); err == nil {
		order.Specialty = prescriber.Specialty
	}

	if err := h.Orders.Create(ctx, order); err != nil {
		utils.ServerError(c, "Failed to create medication order", err)
		return nil, nil, false
	}

	patient, err = h.Patients.PushMedOrder(ctx, id, order.ID.Hex())
	if err != nil {
		h.Log.WithComponent("medications").WithFields(logrus.Fields{
			"patient_id": id,
			"order_id":   order.ID.Hex(),
		}).Error("Order stored but could not be linked to patient")
		respondRepoError(c, err, "Patient not found")
		return nil, nil, false
	}

	h.Metrics.MedOrderCreated(string(kind))
	h.Log.Audit(who.ID, "create", "med_order", true, logrus.Fields{
		"patient_id": id,
		"order_id":   order.ID.Hex(),
		"kind":       kind,
		"items":      len(items),
	})
	return order, patient, true
}

// ListPatientOrders is the previous-medications list of one patient.
func (h *MedicationHandler) ListPatientOrders(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.Patients.Get(ctx, id); err != nil {
		respondRepoError(c, err, "Patient not found")
		return
	}

	h.listOrders(c, repository.MedOrderFilter{PatientID: id})
}

// ListAllOrders is the admin view over every order.
func (h *MedicationHandler) ListAllOrders(c *gin.Context) {
	h.listOrders(c, repository.MedOrderFilter{})
}

func (h *MedicationHandler) listOrders(c *gin.Context, filter repository.MedOrderFilter) {
	page := pagination.FromContext(c, h.DefaultLimit)

	orders, total, err := h.Orders.List(c.Request.Context(), filter, page)
	if err != nil {
		utils.ServerError(c, "Failed to fetch medication orders", err)
		return
	}

	utils.Success(c, "Medication orders fetched successfully", pagination.NewResponse(orders, total, page).Body("orders"))
}

// BatchGetOrders resolves ?ids=a,b,c. Orders come back in request order and
// ids that do not resolve are left out.
func (h *MedicationHandler) BatchGetOrders(c *gin.Context) {
	ids := splitIDs(c.Query("ids"))
	if len(ids) == 0 {
		utils.BadRequest(c, "ids query parameter is required")
		return
	}
	if len(ids) > pagination.MaxLimit {
		utils.BadRequest(c, "Too many ids requested")
		return
	}

	orders, err := h.Orders.GetByIDs(c.Request.Context(), ids)
	if err != nil {
		utils.ServerError(c, "Failed to fetch medication orders", err)
		return
	}

	utils.Success(c, "Medication orders fetched successfully", gin.H{"orders": orderByIDs(ids, orders)})
}

// SetOrderValidation sets the validated flag of an order.
func (h *MedicationHandler) SetOrderValidation(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	var req ValidationRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	orderID := c.Param("orderId")
	order, err := h.Orders.SetValidated(c.Request.Context(), orderID, *req.Validated)
	if err != nil {
		respondRepoError(c, err, "Medication order not found")
		return
	}

	h.Log.Audit(who.ID, "validate", "med_order", true, logrus.Fields{"order_id": orderID, "validated": order.Validated})
	utils.Success(c, "Medication order updated successfully", order)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
