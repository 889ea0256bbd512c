package common

import "fmt"

// Engine error codes surfaced on jobs and in API responses.
const (
	CodeValidation        = "validation"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeVersionConflict   = "version_conflict"
	CodeFatal             = "fatal"
	CodeStalled           = "stalled"
	CodeStore             = "store"
)

type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError creates an APIError with status, message, and optional fields
func NewAPIError(status int, message string, fields map[string]any) APIError {
	return APIError{
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

// CodedErrf is Errf with a machine-readable error code attached.
func CodedErrf(status int, code, format string, args ...any) APIError {
	return APIError{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}
