// internal/api/response_helpers.go
package api

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
)

// APIResponse is the envelope of every JSON API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError describes a failed request
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper writes APIResponse envelopes
type ResponseHelper struct{}

// NewResponseHelper creates a response helper
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success writes a 200 envelope
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message...)
}

// Created writes a 201 envelope
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	if len(message) == 0 {
		message = []string{"created"}
	}
	rh.write(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// sanitizeErrorMessage hides messages that look like they carry credentials
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error writes a failure envelope
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest writes a 400
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound writes a 404 for the named resource
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	code := ErrorNotFound
	if resource == "story" {
		code = ErrorStoryNotFound
	}
	rh.Error(c, http.StatusNotFound, code, resource+" not found", details...)
}

// InternalError writes a 500
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// AppError maps a typed application error onto a status and code.
// Backend failures become gateway errors; the backend status is only
// reported in the details.
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	status, code := statusForError(err)
	var details string
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.StatusCode != 0 {
			details = "backend status " + strconv.Itoa(appErr.StatusCode)
		}
		rh.Error(c, status, code, appErr.Message, details)
		return
	}
	rh.Error(c, status, code, err.Error())
}

func statusForError(err error) (int, string) {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound, ErrorStoryNotFound
	case errors.ErrorTypeNetwork:
		return http.StatusBadGateway, ErrorBackendUnavailable
	case errors.ErrorTypeMalformed:
		return http.StatusBadGateway, ErrorBackendMalformed
	case errors.ErrorTypeUpstream:
		return http.StatusBadGateway, ErrorBackendStatus
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout, ErrorBackendTimeout
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}

// ExportResponse serves a rendered export as an attachment
func (rh *ResponseHelper) ExportResponse(c *gin.Context, result *models.ExportResult) {
	rh.DownloadResponse(c, result.Content, result.Filename, result.Format.ContentType())
}

// DownloadResponse forces a download of content
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content []byte, filename string, contentType string) {
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Length", strconv.Itoa(len(content)))
	c.Data(http.StatusOK, contentType, content)
}

// getRequestID returns the id set by RequestID middleware
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
