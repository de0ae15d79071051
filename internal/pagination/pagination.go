package pagination

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*MaxLimit well inside int64.
	MaxPage = math.MaxInt32
)

// Params holds 1-based page parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext reads ?page and ?limit. Missing or invalid values fall back to
// page 1 and defaultLimit; limit is capped at MaxLimit and page at MaxPage.
func FromContext(c *gin.Context, defaultLimit int) Params {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}

	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Skip is the number of rows before the requested page.
func (p Params) Skip() int64 {
	return int64(p.Page-1) * int64(p.Limit)
}

// TotalPages returns ceil(total / limit); zero for an empty collection.
func TotalPages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// Response is the page envelope placed in the data field of list endpoints.
type Response struct {
	Items       any
	Total       int64
	TotalPages  int
	CurrentPage int
}

// NewResponse computes page counters. CurrentPage is clamped to TotalPages so
// a request past the end reports the last page (or 0 if there are none).
func NewResponse(items any, total int64, p Params) Response {
	totalPages := TotalPages(total, p.Limit)
	current := p.Page
	if current > totalPages {
		current = totalPages
	}
	return Response{
		Items:       items,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: current,
	}
}

// HasMore reports whether a page after CurrentPage exists.
func (r Response) HasMore() bool {
	return r.CurrentPage < r.TotalPages
}

// Body renders the response with the item list under key.
func (r Response) Body(key string) gin.H {
	return gin.H{
		key:           r.Items,
		"total":       r.Total,
		"totalPages":  r.TotalPages,
		"currentPage": r.CurrentPage,
	}
}
