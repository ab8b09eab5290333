package api

import "net/http"

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeTimeout       = "TIMEOUT"
)

// Standard errors
var (
	ErrPetNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Pet not found",
		Status:  http.StatusNotFound,
	}

	ErrSweepInProgress = &Error{
		Code:    ErrCodeConflict,
		Message: "A sweep is already running",
		Status:  http.StatusConflict,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrTimeout = &Error{
		Code:    ErrCodeTimeout,
		Message: "Request timed out",
		Status:  http.StatusGatewayTimeout,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}
