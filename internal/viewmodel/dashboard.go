package viewmodel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/models"
)

// DefaultRefreshCooldown is the minimum interval between unforced fetches.
const DefaultRefreshCooldown = 60 * time.Second

// NotAvailable fills absent demographic fields.
const NotAvailable = "N/A"

// ErrClosed is returned by a dashboard after Close.
var ErrClosed = errors.New("dashboard closed")

// PatientAPI is the part of the API client the dashboard reads from.
type PatientAPI interface {
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
	GetMedOrders(ctx context.Context, ids []string) ([]models.MedOrder, error)
}

// Demographics is the flat display record of a patient. Contact and identity
// fields default to "N/A"; clinical history fields default to "".
type Demographics struct {
	ID          string
	FirstName   string
	LastName    string
	FullName    string
	DateOfBirth string
	Gender      string
	Phone       string
	Email       string
	Address     string
	Language    string
	Country     string
	City        string
	Priority    string

	PastMedicalHistory  string
	PastSurgicalHistory string
	FamilyHistory       string
	Allergies           string
	SubstanceUse        string
}

// DashboardNote is a note decorated with the patient's display name.
type DashboardNote struct {
	models.Note
	PatientName string
}

// NotesPartition splits notes by draft flag, each half in stored order.
type NotesPartition struct {
	Published []DashboardNote
	Drafts    []DashboardNote
}

// DashboardState is one consistent set of projections over a single fetch.
type DashboardState struct {
	Patient      *models.Patient
	Demographics Demographics
	Notes        NotesPartition
	Orders       []models.MedOrder
	FetchedAt    time.Time
}

// DashboardOption customizes a PatientDashboard.
type DashboardOption func(*PatientDashboard)

func WithCooldown(d time.Duration) DashboardOption {
	return func(pd *PatientDashboard) { pd.cooldown = d }
}

func WithClock(now func() time.Time) DashboardOption {
	return func(pd *PatientDashboard) { pd.now = now }
}

func WithLogger(l *logger.Logger) DashboardOption {
	return func(pd *PatientDashboard) { pd.log = l }
}

// PatientDashboard holds the loaded state of one patient. Concurrent
// refreshes share a single fetch; a failed fetch keeps the previous state.
type PatientDashboard struct {
	api       PatientAPI
	patientID string
	cooldown  time.Duration
	now       func() time.Time
	log       *logger.Logger

	life     context.Context
	shutdown context.CancelFunc
	group    singleflight.Group

	mu             sync.RWMutex
	state          *DashboardState
	lastFetch      time.Time
	patientLoading bool
	ordersLoading  bool
	lastErr        error
}

func NewPatientDashboard(api PatientAPI, patientID string, opts ...DashboardOption) *PatientDashboard {
	life, cancel := context.WithCancel(context.Background())
	d := &PatientDashboard{
		api:       api,
		patientID: patientID,
		cooldown:  DefaultRefreshCooldown,
		now:       time.Now,
		log:       logger.Discard(),
		life:      life,
		shutdown:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PatientID is the patient this dashboard shows.
func (d *PatientDashboard) PatientID() string {
	return d.patientID
}

// State returns the last successfully loaded state, false before any.
func (d *PatientDashboard) State() (DashboardState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state == nil {
		return DashboardState{}, false
	}
	return *d.state, true
}

// Loading reports the patient and medication loading flags.
func (d *PatientDashboard) Loading() (patient, orders bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.patientLoading, d.ordersLoading
}

// LastError is the error of the most recent fetch, nil after a success.
func (d *PatientDashboard) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// Close cancels outstanding fetches. Their results are discarded.
func (d *PatientDashboard) Close() {
	d.shutdown()
}

// FetchPatientData refreshes the state. Without force, a call within the
// cooldown of the last successful fetch does nothing and reports false.
// Concurrent calls share one fetch. Cancelling ctx abandons only this
// caller's wait; the shared fetch runs until it finishes or Close.
func (d *PatientDashboard) FetchPatientData(ctx context.Context, force bool) (bool, error) {
	if d.life.Err() != nil {
		return false, ErrClosed
	}
	if !force && d.withinCooldown() {
		return false, nil
	}

	ch := d.group.DoChan("fetch", func() (any, error) {
		return nil, d.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (d *PatientDashboard) withinCooldown() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.lastFetch.IsZero() && d.now().Sub(d.lastFetch) < d.cooldown
}

func (d *PatientDashboard) setLoading(patient, orders *bool, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if patient != nil {
		*patient = v
	}
	if orders != nil {
		*orders = v
	}
}

// fetch runs detached from any single caller and is cancelled by Close.
func (d *PatientDashboard) fetch(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.life, cancel)
	defer stop()

	d.setLoading(&d.patientLoading, &d.ordersLoading, true)
	defer d.setLoading(&d.patientLoading, &d.ordersLoading, false)

	defer func() {
		if err == nil {
			return
		}
		if d.life.Err() != nil {
			err = ErrClosed
			return
		}
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		d.log.WithComponent("dashboard").WithFields(logrus.Fields{
			"patient_id": d.patientID,
			"error":      err.Error(),
		}).Warn("Patient refresh failed; keeping previous state")
	}()

	patient, err := d.api.GetPatient(ctx, d.patientID)
	d.setLoading(&d.patientLoading, nil, false)
	if err != nil {
		return err
	}

	orders, err := d.resolveOrders(ctx, patient)
	if err != nil {
		return err
	}

	if d.life.Err() != nil {
		return ErrClosed
	}

	demo := projectDemographics(patient)
	state := &DashboardState{
		Patient:      patient,
		Demographics: demo,
		Notes:        partitionNotes(patient.Notes, demo.FullName),
		Orders:       orders,
		FetchedAt:    d.now(),
	}

	d.mu.Lock()
	d.state = state
	d.lastFetch = state.FetchedAt
	d.lastErr = nil
	d.mu.Unlock()
	return nil
}

// resolveOrders prefers orders already embedded in the document and
// otherwise resolves medOrderIds in one batch. The result has one entry per
// id, with placeholders for ids the server did not return.
func (d *PatientDashboard) resolveOrders(ctx context.Context, p *models.Patient) ([]models.MedOrder, error) {
	if len(p.MedOrders) > 0 {
		return append([]models.MedOrder{}, p.MedOrders...), nil
	}
	if len(p.MedOrderIDs) == 0 {
		return []models.MedOrder{}, nil
	}

	found, err := d.api.GetMedOrders(ctx, p.MedOrderIDs)
	if err != nil {
		return nil, err
	}
	return alignOrders(p.MedOrderIDs, found), nil
}

func alignOrders(ids []string, found []models.MedOrder) []models.MedOrder {
	byID := make(map[string]models.MedOrder, len(found))
	for _, o := range found {
		byID[o.ID.Hex()] = o
	}
	out := make([]models.MedOrder, len(ids))
	for i, id := range ids {
		if o, ok := byID[id]; ok {
			out[i] = o
			continue
		}
		out[i] = models.PlaceholderOrder(id)
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func projectDemographics(p *models.Patient) Demographics {
	return Demographics{
		ID:          p.ID.Hex(),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		FullName:    p.FullName(),
		DateOfBirth: orNA(p.DateOfBirth),
		Gender:      orNA(p.Gender),
		Phone:       orNA(p.Phone),
		Email:       orNA(p.Email),
		Address:     orNA(p.Address),
		Language:    orNA(p.Language),
		Country:     orNA(p.Country),
		City:        orNA(p.City),
		Priority:    orNA(string(p.Priority)),

		PastMedicalHistory:  p.PastMedicalHistory,
		PastSurgicalHistory: p.PastSurgicalHistory,
		FamilyHistory:       p.FamilyHistory,
		Allergies:           p.Allergies,
		SubstanceUse:        p.SubstanceUse,
	}
}

func partitionNotes(notes []models.Note, patientName string) NotesPartition {
	part := NotesPartition{Published: []DashboardNote{}, Drafts: []DashboardNote{}}
	for _, n := range notes {
		dn := DashboardNote{Note: n, PatientName: patientName}
		if n.Draft {
			part.Drafts = append(part.Drafts, dn)
		} else {
			part.Published = append(part.Published, dn)
		}
	}
	return part
}
