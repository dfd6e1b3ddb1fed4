// internal/api/error_codes.go
package api

// API error codes
const (
	// generic
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// story
	ErrorStoryNotFound     = "STORY_NOT_FOUND"
	ErrorStoryInvalidID    = "STORY_INVALID_ID"
	ErrorGenerationFailed  = "GENERATION_FAILED"
	ErrorGenerationInvalid = "GENERATION_INVALID"

	// story API backend
	ErrorBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrorBackendMalformed   = "BACKEND_MALFORMED_RESPONSE"
	ErrorBackendStatus      = "BACKEND_ERROR"
	ErrorBackendTimeout     = "BACKEND_TIMEOUT"

	// export
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
)
