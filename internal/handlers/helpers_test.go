package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"patient-records-server/internal/config"
	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository/memory"
	"patient-records-server/internal/routes"
	"patient-records-server/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	router   *gin.Engine
	cfg      *config.Config
	metrics  *metrics.Metrics
	users    *memory.UserStore
	patients *memory.PatientStore
	orders   *memory.MedOrderStore
	messages *memory.MessageStore
	files    *memory.FileStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := &config.Config{
		Environment:               "development",
		JWTSecret:                 "access-secret",
		JWTRefreshSecret:          "refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 1,
		DefaultPageLimit:          20,
		MaxUploadMB:               1,
	}
	e := &env{
		router:   gin.New(),
		cfg:      cfg,
		metrics:  metrics.New(),
		users:    memory.NewUserStore(),
		patients: memory.NewPatientStore(),
		orders:   memory.NewMedOrderStore(),
		messages: memory.NewMessageStore(),
		files:    memory.NewFileStore(),
	}
	e.router.Use(middleware.RequestID())
	routes.SetupRoutes(e.router, routes.Dependencies{
		Config:    cfg,
		Log:       logger.Discard(),
		Metrics:   e.metrics,
		Users:     e.users,
		Tokens:    memory.NewTokenStore(),
		Messages:  e.messages,
		Files:     e.files,
		Patients:  e.patients,
		MedOrders: e.orders,
	})
	return e
}

// staff are the identities used for authenticated calls. They are not
// stored, the access token alone authorizes a request.
var staff = map[models.Role]*models.User{
	models.RoleAdmin:  {BaseModel: models.BaseModel{ID: "u-admin"}, FirstName: "Ada", LastName: "Admin", Email: "admin@example.com", AccountType: models.RoleAdmin},
	models.RoleDoctor: {BaseModel: models.BaseModel{ID: "u-doc"}, FirstName: "Gregory", LastName: "House", Email: "house@example.com", AccountType: models.RoleDoctor},
	models.RoleTriage: {BaseModel: models.BaseModel{ID: "u-triage"}, FirstName: "Tess", LastName: "Triage", Email: "tess@example.com", AccountType: models.RoleTriage},
}

func (e *env) token(t *testing.T, role models.Role) string {
	t.Helper()
	access, _, err := utils.GenerateTokens(staff[role], e.cfg)
	require.NoError(t, err)
	return access
}

// do sends body as JSON. An empty role sends no Authorization header.
func (e *env) do(t *testing.T, role models.Role, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.serve(req)
}

func (e *env) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) seedPatient(t *testing.T, first, last string) *models.Patient {
	t.Helper()
	p := &models.Patient{FirstName: first, LastName: last}
	require.NoError(t, e.patients.Create(context.Background(), p))
	return p
}

func (e *env) patient(t *testing.T, id string) *models.Patient {
	t.Helper()
	p, err := e.patients.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	// RequestID is compared against the X-Request-ID response header.
	RequestID string `json:"requestId"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data), string(env.Data))
	}
	return env
}
