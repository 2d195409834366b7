package errors

import (
	"errors"
	"net/http"
)

// Kind classifies an APIError beyond its HTTP status, so callers can react
// to a specific failure without string matching.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindDuplicateKey       Kind = "duplicate_key"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindInvalidName        Kind = "invalid_name"
	KindInvalidField       Kind = "invalid_field"
	KindProtectedCondition Kind = "protected_condition"
	KindNameCollision      Kind = "name_collision"
	KindTooLarge           Kind = "too_large"
	KindDisallowedType     Kind = "disallowed_type"
	KindEmptyDirectory     Kind = "empty_directory"
	KindNoActiveSelection  Kind = "no_active_selection"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindFeatureDisabled    Kind = "feature_disabled"
	KindInternal           Kind = "internal"
)

// APIError is the application error carried through gin's error list and
// rendered by the error-handler middleware.
type APIError struct {
	Status   int    `json:"-"`
	Kind     Kind   `json:"-"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped internal error
func (e *APIError) Unwrap() error {
	return e.Internal
}

// New creates an APIError with an explicit status and kind
func New(status int, kind Kind, message string, err error) *APIError {
	return &APIError{
		Status:   status,
		Kind:     kind,
		Message:  message,
		Internal: err,
	}
}

func NotFound(message string, err error) *APIError {
	return New(http.StatusNotFound, KindNotFound, message, err)
}

func DuplicateKey(message string) *APIError {
	return New(http.StatusConflict, KindDuplicateKey, message, nil)
}

func QuotaExceeded(message string) *APIError {
	return New(http.StatusUnprocessableEntity, KindQuotaExceeded, message, nil)
}

func InvalidName(message string) *APIError {
	return New(http.StatusUnprocessableEntity, KindInvalidName, message, nil)
}

func InvalidField(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, KindInvalidField, message, err)
}

func ProtectedCondition(message string) *APIError {
	return New(http.StatusUnprocessableEntity, KindProtectedCondition, message, nil)
}

func NameCollision(message string) *APIError {
	return New(http.StatusConflict, KindNameCollision, message, nil)
}

func TooLarge(message string) *APIError {
	return New(http.StatusRequestEntityTooLarge, KindTooLarge, message, nil)
}

func DisallowedType(message string) *APIError {
	return New(http.StatusUnprocessableEntity, KindDisallowedType, message, nil)
}

func EmptyDirectory(message string) *APIError {
	return New(http.StatusNotFound, KindEmptyDirectory, message, nil)
}

func NoActiveSelection(message string) *APIError {
	return New(http.StatusBadRequest, KindNoActiveSelection, message, nil)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, KindUnauthorized, message, err)
}

func Forbidden(message string) *APIError {
	return New(http.StatusForbidden, KindForbidden, message, nil)
}

func FeatureDisabled(message string) *APIError {
	return New(http.StatusServiceUnavailable, KindFeatureDisabled, message, nil)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, KindInternal, "Internal server error", err)
}

// NewValidationError wraps a form binding failure
func NewValidationError(err error) *APIError {
	return New(http.StatusBadRequest, KindInvalidField, "Invalid input", err)
}

// IsKind reports whether err is (or wraps) an APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}
