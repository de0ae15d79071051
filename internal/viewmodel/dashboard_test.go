package viewmodel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"patient-records-server/internal/models"
)

type fakePatientAPI struct {
	mu          sync.Mutex
	patient     *models.Patient
	orders      []models.MedOrder
	patientErr  error
	ordersErr   error
	gate        chan struct{}
	entered     chan struct{}
	patientHits atomic.Int32
	orderHits   atomic.Int32
	observed    func()
}

func (f *fakePatientAPI) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	f.patientHits.Add(1)
	if f.observed != nil {
		f.observed()
	}
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patientErr != nil {
		return nil, f.patientErr
	}
	cp := *f.patient
	return &cp, nil
}

func (f *fakePatientAPI) GetMedOrders(_ context.Context, ids []string) ([]models.MedOrder, error) {
	f.orderHits.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func (f *fakePatientAPI) set(fn func(f *fakePatientAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func samplePatient() *models.Patient {
	return &models.Patient{
		ID:        primitive.NewObjectID(),
		FirstName: "Ana",
		LastName:  "Lima",
		Phone:     "555-0100",
		Allergies: "latex",
		Notes: []models.Note{
			{ID: "n1", Content: "published", Draft: false},
			{ID: "n2", Content: "draft", Draft: true},
			{ID: "n3", Content: "published too", Draft: false},
		},
	}
}

func newTestDashboard(api PatientAPI, c *clock) *PatientDashboard {
	return NewPatientDashboard(api, "p1", WithClock(c.Now))
}

func TestDashboard_Projections(t *testing.T) {
	p := samplePatient()
	found := models.MedOrder{ID: primitive.NewObjectID(), PrescriberName: "Dr. House", Items: []models.OrderItem{{Medication: "x"}}}
	missing := primitive.NewObjectID().Hex()
	p.MedOrderIDs = []string{missing, found.ID.Hex()}

	api := &fakePatientAPI{patient: p, orders: []models.MedOrder{found}}
	d := newTestDashboard(api, &clock{now: time.Now()})

	refreshed, err := d.FetchPatientData(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, refreshed)

	st, ok := d.State()
	require.True(t, ok)

	demo := st.Demographics
	assert.Equal(t, "Ana Lima", demo.FullName)
	assert.Equal(t, "555-0100", demo.Phone)
	for name, v := range map[string]string{
		"dateOfBirth": demo.DateOfBirth, "gender": demo.Gender, "email": demo.Email,
		"address": demo.Address, "language": demo.Language, "country": demo.Country,
		"city": demo.City, "priority": demo.Priority,
	} {
		assert.Equal(t, NotAvailable, v, name)
	}
	assert.Equal(t, "latex", demo.Allergies)
	assert.Equal(t, "", demo.FamilyHistory)

	require.Len(t, st.Notes.Published, 2)
	require.Len(t, st.Notes.Drafts, 1)
	assert.Equal(t, "n1", st.Notes.Published[0].ID)
	assert.Equal(t, "n3", st.Notes.Published[1].ID)
	assert.Equal(t, "n2", st.Notes.Drafts[0].ID)
	assert.Equal(t, "Ana Lima", st.Notes.Drafts[0].PatientName)

	require.Len(t, st.Orders, 2, "one entry per referenced id")
	assert.True(t, st.Orders[0].Unresolved)
	assert.Equal(t, models.UnknownPrescriber, st.Orders[0].PrescriberName)
	assert.Equal(t, missing, st.Orders[0].ID.Hex())
	assert.Equal(t, "Dr. House", st.Orders[1].PrescriberName)

	patientLoading, ordersLoading := d.Loading()
	assert.False(t, patientLoading)
	assert.False(t, ordersLoading)
}

func TestDashboard_EmbeddedOrdersSkipBatchFetch(t *testing.T) {
	p := samplePatient()
	p.MedOrders = []models.MedOrder{{PrescriberName: "Dr. Grey"}}
	api := &fakePatientAPI{patient: p}
	d := newTestDashboard(api, &clock{now: time.Now()})

	_, err := d.FetchPatientData(context.Background(), false)
	require.NoError(t, err)

	st, _ := d.State()
	assert.Len(t, st.Orders, 1)
	assert.Equal(t, int32(0), api.orderHits.Load())
}

func TestDashboard_Cooldown(t *testing.T) {
	api := &fakePatientAPI{patient: samplePatient()}
	c := &clock{now: time.Now()}
	d := newTestDashboard(api, c)
	ctx := context.Background()

	_, err := d.FetchPatientData(ctx, false)
	require.NoError(t, err)

	c.Advance(30 * time.Second)
	refreshed, err := d.FetchPatientData(ctx, false)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, int32(1), api.patientHits.Load())

	refreshed, err = d.FetchPatientData(ctx, true)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, int32(2), api.patientHits.Load())

	c.Advance(DefaultRefreshCooldown)
	refreshed, err = d.FetchPatientData(ctx, false)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, int32(3), api.patientHits.Load())
}

func TestDashboard_FailureKeepsLastGoodState(t *testing.T) {
	api := &fakePatientAPI{patient: samplePatient()}
	d := newTestDashboard(api, &clock{now: time.Now()})
	ctx := context.Background()

	_, err := d.FetchPatientData(ctx, false)
	require.NoError(t, err)
	good, _ := d.State()

	boom := errors.New("502 bad gateway")
	api.set(func(f *fakePatientAPI) {
		f.patient = &models.Patient{FirstName: "Someone", LastName: "Else"}
		f.patientErr = boom
	})

	_, err = d.FetchPatientData(ctx, true)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, d.LastError(), boom)

	st, ok := d.State()
	require.True(t, ok)
	assert.Equal(t, good.Demographics, st.Demographics)

	patientLoading, ordersLoading := d.Loading()
	assert.False(t, patientLoading)
	assert.False(t, ordersLoading)
}

func TestDashboard_OrderFailureKeepsState(t *testing.T) {
	p := samplePatient()
	p.MedOrderIDs = []string{primitive.NewObjectID().Hex()}
	api := &fakePatientAPI{patient: p, ordersErr: errors.New("orders down")}
	d := newTestDashboard(api, &clock{now: time.Now()})

	_, err := d.FetchPatientData(context.Background(), false)
	require.Error(t, err)

	_, ok := d.State()
	assert.False(t, ok)
	_, ordersLoading := d.Loading()
	assert.False(t, ordersLoading)
}

func TestDashboard_LoadingFlagsDuringFetch(t *testing.T) {
	api := &fakePatientAPI{patient: samplePatient()}
	d := newTestDashboard(api, &clock{now: time.Now()})

	var patientLoading, ordersLoading bool
	api.observed = func() { patientLoading, ordersLoading = d.Loading() }

	_, err := d.FetchPatientData(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, patientLoading)
	assert.True(t, ordersLoading)
}

func TestDashboard_ConcurrentRefreshesShareOneFetch(t *testing.T) {
	api := &fakePatientAPI{
		patient: samplePatient(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 10),
	}
	d := newTestDashboard(api, &clock{now: time.Now()})

	var wg sync.WaitGroup
	first := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(first)
		_, _ = d.FetchPatientData(context.Background(), true)
	}()
	<-first
	<-api.entered

	// Unforced callers either join the outstanding fetch or, if they arrive
	// after it, fall inside the cooldown.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.FetchPatientData(context.Background(), false)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(api.gate)
	wg.Wait()

	assert.Equal(t, int32(1), api.patientHits.Load())
	_, ok := d.State()
	assert.True(t, ok)
}

func TestDashboard_CancelledCallerDoesNotFailJoiners(t *testing.T) {
	api := &fakePatientAPI{
		patient: samplePatient(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 10),
	}
	d := newTestDashboard(api, &clock{now: time.Now()})

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan error, 1)
	go func() {
		_, err := d.FetchPatientData(ctxA, true)
		doneA <- err
	}()
	<-api.entered

	doneB := make(chan error, 1)
	go func() {
		_, err := d.FetchPatientData(context.Background(), true)
		doneB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-doneA, context.Canceled)

	close(api.gate)
	require.NoError(t, <-doneB)
	assert.NoError(t, d.LastError())
	_, ok := d.State()
	assert.True(t, ok)
}

func TestDashboard_CloseDiscardsInFlight(t *testing.T) {
	api := &fakePatientAPI{
		patient: samplePatient(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	d := newTestDashboard(api, &clock{now: time.Now()})

	done := make(chan error, 1)
	go func() {
		_, err := d.FetchPatientData(context.Background(), false)
		done <- err
	}()
	<-api.entered
	d.Close()

	assert.ErrorIs(t, <-done, ErrClosed)
	_, ok := d.State()
	assert.False(t, ok)

	_, err := d.FetchPatientData(context.Background(), true)
	assert.ErrorIs(t, err, ErrClosed)
}
