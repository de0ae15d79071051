// Package client is a typed HTTP client for the patient records API. Every
// call takes a context and unwraps the response envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"patient-records-server/internal/config"
	"patient-records-server/internal/models"
	"patient-records-server/internal/pagination"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to one server with one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a client for the CLI subcommands.
func FromConfig(cfg config.ClientConfig, opts ...Option) *Client {
	return New(cfg.BaseURL, append([]Option{WithToken(cfg.Token)}, opts...)...)
}

// SetToken swaps the bearer token, typically after Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do sends the request and decodes the envelope data into out. headers are
// key, value pairs.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, headers ...string) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items       []T
	Total       int64
	TotalPages  int
	CurrentPage int
}

// HasMore reports whether a later page exists.
func (p Page[T]) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

// getPage fetches a list endpoint whose items sit under key.
func getPage[T any](ctx context.Context, c *Client, path, key string, query url.Values, page, limit int) (Page[T], error) {
	if query == nil {
		query = url.Values{}
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var body map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, query, nil, &body); err != nil {
		return Page[T]{}, err
	}

	var p Page[T]
	fields := []struct {
		name string
		dst  any
	}{
		{key, &p.Items},
		{"total", &p.Total},
		{"totalPages", &p.TotalPages},
		{"currentPage", &p.CurrentPage},
	}
	for _, f := range fields {
		raw, ok := body[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Page[T]{}, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p, nil
}

// LoginResult carries the issued tokens.
type LoginResult struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login authenticates and stores the access token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.AccessToken)
	return &res, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	if err := c.do(ctx, http.MethodGet, "/api/patient/"+url.PathEscape(id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePatient merges fields. A positive version is sent as If-Match.
func (c *Client) UpdatePatient(ctx context.Context, id string, fields models.PatientFields, version int64) (*models.Patient, error) {
	var headers []string
	if version > 0 {
		headers = []string{"If-Match", strconv.Quote(strconv.FormatInt(version, 10))}
	}
	var p models.Patient
	if err := c.do(ctx, http.MethodPatch, "/api/patient/"+url.PathEscape(id), nil, fields, &p, headers...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPatients(ctx context.Context, page, limit int) (Page[models.Patient], error) {
	return getPage[models.Patient](ctx, c, "/api/patients", "patients", nil, page, limit)
}

// GetMedOrders resolves order ids in batches of at most pagination.MaxLimit,
// the most the server accepts per request. Ids that do not resolve are
// missing from the result.
func (c *Client) GetMedOrders(ctx context.Context, ids []string) ([]models.MedOrder, error) {
	out := []models.MedOrder{}
	for start := 0; start < len(ids); start += pagination.MaxLimit {
		end := min(start+pagination.MaxLimit, len(ids))

		var body struct {
			Orders []models.MedOrder `json:"orders"`
		}
		q := url.Values{"ids": {strings.Join(ids[start:end], ",")}}
		if err := c.do(ctx, http.MethodGet, "/api/med-orders", q, nil, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Orders...)
	}
	return out, nil
}

func (c *Client) ListPatientOrders(ctx context.Context, patientID string, page, limit int) (Page[models.MedOrder], error) {
	return getPage[models.MedOrder](ctx, c, "/api/patient/"+url.PathEscape(patientID)+"/medications", "orders", nil, page, limit)
}

func (c *Client) ListAllOrders(ctx context.Context, page, limit int) (Page[models.MedOrder], error) {
	return getPage[models.MedOrder](ctx, c, "/api/admin/med-orders", "orders", nil, page, limit)
}

// ListSignups lists the pending review queue. An empty accountType lists
// every role.
func (c *Client) ListSignups(ctx context.Context, accountType models.Role, page, limit int) (Page[models.UserSanitized], error) {
	q := url.Values{}
	if accountType != "" {
		q.Set("accountType", string(accountType))
	}
	return getPage[models.UserSanitized](ctx, c, "/api/admin/signups", "users", q, page, limit)
}

// OrderInput is one line of a medication order.
type OrderInput = models.OrderItem

func (c *Client) CreateMedOrder(ctx context.Context, patientID string, item OrderInput) (*models.MedOrder, error) {
	var o models.MedOrder
	if err := c.do(ctx, http.MethodPost, "/api/patient/"+url.PathEscape(patientID)+"/medications/med-order", nil, item, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// NoteInput is the body of note create and update calls.
type NoteInput struct {
	ID       string          `json:"id,omitempty"`
	NoteType models.NoteType `json:"noteType"`
	Title    string          `json:"title,omitempty"`
	Content  string          `json:"content"`
	Draft    *bool           `json:"draft,omitempty"`
}

// NoteUpdate is the result of an update. Created is set when the server did
// not know the note id and stored a new note instead.
type NoteUpdate struct {
	Patient *models.Patient `json:"patient"`
	Note    models.Note     `json:"note"`
	Created bool            `json:"created"`
}

func notesPath(patientID string) string {
	return "/api/patient/" + url.PathEscape(patientID) + "/notes/doctor-notes"
}

func (c *Client) CreateNote(ctx context.Context, patientID string, in NoteInput) (*models.Note, error) {
	in.ID = ""
	var n models.Note
	if err := c.do(ctx, http.MethodPost, notesPath(patientID), nil, in, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) UpdateNote(ctx context.Context, patientID string, in NoteInput) (*NoteUpdate, error) {
	var u NoteUpdate
	if err := c.do(ctx, http.MethodPatch, notesPath(patientID), nil, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) DeleteNote(ctx context.Context, patientID, noteID string) (*models.Patient, error) {
	var p models.Patient
	if err := c.do(ctx, http.MethodDelete, notesPath(patientID), nil, map[string]string{"id": noteID}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListNotes(ctx context.Context, patientID string) ([]models.Note, error) {
	var notes []models.Note
	if err := c.do(ctx, http.MethodGet, "/api/patient/notes/"+url.PathEscape(patientID), nil, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}
