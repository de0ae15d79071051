package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key the request id middleware stores under.
const RequestIDKey = "requestID"

// errorMessage is the fixed message of every error envelope; the detail goes
// in the error field.
const errorMessage = "An error occurred"

// ResponseData is the envelope every endpoint answers with. RequestID echoes
// the X-Request-ID of the call so a client can quote it when reporting.
type ResponseData struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func respond(c *gin.Context, status int, body ResponseData) {
	body.Status = status
	body.RequestID = c.GetString(RequestIDKey)
	c.JSON(status, body)
}

func Success(c *gin.Context, message string, data any) {
	respond(c, http.StatusOK, ResponseData{Message: message, Data: data})
}

func Created(c *gin.Context, message string, data any) {
	respond(c, http.StatusCreated, ResponseData{Message: message, Data: data})
}

// Error sends an error envelope with the given status.
func Error(c *gin.Context, statusCode int, detail string) {
	respond(c, statusCode, ResponseData{Message: errorMessage, Error: detail})
}

func BadRequest(c *gin.Context, detail string)   { Error(c, http.StatusBadRequest, detail) }
func Unauthorized(c *gin.Context, detail string) { Error(c, http.StatusUnauthorized, detail) }
func Forbidden(c *gin.Context, detail string)    { Error(c, http.StatusForbidden, detail) }
func NotFound(c *gin.Context, detail string)     { Error(c, http.StatusNotFound, detail) }

// Conflict covers version mismatches and one-way state transitions.
func Conflict(c *gin.Context, detail string) { Error(c, http.StatusConflict, detail) }

func InternalServerError(c *gin.Context, detail string) {
	Error(c, http.StatusInternalServerError, detail)
}

// ServerError records err on the context for the error reporter and sends a
// 500 carrying the error text.
func ServerError(c *gin.Context, prefix string, err error) {
	_ = c.Error(err)
	InternalServerError(c, prefix+": "+err.Error())
}

// AbortWithError is Error for middleware: later handlers are skipped.
func AbortWithError(c *gin.Context, statusCode int, detail string) {
	Error(c, statusCode, detail)
	c.Abort()
}
