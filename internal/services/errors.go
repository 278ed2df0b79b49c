package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorValidation       ErrorCode = "validation"
	ErrorConfig           ErrorCode = "config"
	ErrorState            ErrorCode = "state"
	ErrorInvalidReference ErrorCode = "invalid_reference"
	ErrorDuplicate        ErrorCode = "duplicate"
	ErrorNotFound         ErrorCode = "not_found"
	ErrorForbidden        ErrorCode = "forbidden"
	ErrorUnauthorized     ErrorCode = "unauthorized"
	ErrorInvalid          ErrorCode = "invalid"
)

// ServiceError is the stable error kind surfaced to API callers. Field names the
// question a validation or config failure belongs to, when there is one.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Field   string
}

func (e *ServiceError) Error() string { return e.Message }

func NewValidationError(field, msg string) error {
	return &ServiceError{Code: ErrorValidation, Message: msg, Field: field}
}

func NewConfigError(field, msg string) error {
	return &ServiceError{Code: ErrorConfig, Message: msg, Field: field}
}

func NewStateError(msg string) error { return &ServiceError{Code: ErrorState, Message: msg} }
func NewInvalidReferenceError(msg string) error {
	return &ServiceError{Code: ErrorInvalidReference, Message: msg}
}
func NewDuplicateError(msg string) error { return &ServiceError{Code: ErrorDuplicate, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewInvalidError(msg string) error { return &ServiceError{Code: ErrorInvalid, Message: msg} }

func validationErrorf(q *Question, format string, args ...any) error {
	return NewValidationError(q.ID, fmt.Sprintf("%s: %s", questionLabel(q), fmt.Sprintf(format, args...)))
}

func configErrorf(q *Question, format string, args ...any) error {
	return NewConfigError(q.ID, fmt.Sprintf("question %s: %s", questionLabel(q), fmt.Sprintf(format, args...)))
}

func questionLabel(q *Question) string {
	if q.DisplayName != "" {
		return q.DisplayName
	}
	return q.ID
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceError of the given kind.
func IsCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}
