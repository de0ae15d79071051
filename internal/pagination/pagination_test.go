package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newContext(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"), 20)

	if p.Page != 1 {
		t.Errorf("expected default page 1, got %d", p.Page)
	}
	if p.Limit != 20 {
		t.Errorf("expected default limit 20, got %d", p.Limit)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(newContext("/?page=3&limit=50"), 20)

	if p.Page != 3 || p.Limit != 50 {
		t.Errorf("expected page 3 limit 50, got %+v", p)
	}
	if p.Skip() != 100 {
		t.Errorf("expected skip 100, got %d", p.Skip())
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"/?page=-2&limit=abc", 1, DefaultLimit},
		{"/?page=0&limit=0", 1, DefaultLimit},
		{"/?page=922337203685477581&limit=100", MaxPage, MaxLimit},
		{"/?page=99999999999999999999999", 1, DefaultLimit},
	}

	for _, tt := range tests {
		p := FromContext(newContext(tt.query), 0)
		if p.Page != tt.wantPage {
			t.Errorf("%s: expected page %d, got %d", tt.query, tt.wantPage, p.Page)
		}
		if p.Limit != tt.wantLimit {
			t.Errorf("%s: expected limit %d, got %d", tt.query, tt.wantLimit, p.Limit)
		}
		if p.Skip() < 0 {
			t.Errorf("%s: skip overflowed to %d", tt.query, p.Skip())
		}
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=500"), 20)

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{100, 7, 15},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.limit); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}

func TestNewResponse_CurrentPageNeverExceedsTotal(t *testing.T) {
	for page := 1; page <= 5; page++ {
		r := NewResponse(nil, 45, Params{Page: page, Limit: 20})
		if r.CurrentPage > r.TotalPages {
			t.Errorf("page %d: currentPage %d exceeds totalPages %d", page, r.CurrentPage, r.TotalPages)
		}
	}
}

func TestNewResponse_Empty(t *testing.T) {
	r := NewResponse([]string{}, 0, Params{Page: 1, Limit: 20})

	if r.TotalPages != 0 {
		t.Errorf("expected 0 total pages, got %d", r.TotalPages)
	}
	if r.HasMore() {
		t.Error("expected HasMore false on empty result")
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 45, Params{Page: 2, Limit: 20}).HasMore() {
		t.Error("expected HasMore on page 2 of 3")
	}
	if NewResponse(nil, 45, Params{Page: 3, Limit: 20}).HasMore() {
		t.Error("expected no more after page 3 of 3")
	}
}

func TestResponse_Body(t *testing.T) {
	body := NewResponse([]int{1, 2}, 2, Params{Page: 1, Limit: 20}).Body("orders")

	if _, ok := body["orders"]; !ok {
		t.Error("expected items under the orders key")
	}
	if body["totalPages"] != 1 || body["currentPage"] != 1 {
		t.Errorf("unexpected counters: %v", body)
	}
}
