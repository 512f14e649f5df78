package errutil

import (
	"errors"
	"net/http"
)

// CoreStatus is a transport-agnostic error classification shared by all services.
type CoreStatus string

const (
	StatusInvalidInput        CoreStatus = "INVALID_INPUT"
	StatusInactive            CoreStatus = "INACTIVE"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusInsufficientBalance CoreStatus = "INSUFFICIENT_BALANCE"
	StatusOverflow            CoreStatus = "OVERFLOW"
	StatusUnavailable         CoreStatus = "UNAVAILABLE"
	StatusAlreadyUsed         CoreStatus = "ALREADY_USED"
	StatusExpired             CoreStatus = "EXPIRED"
	StatusInvalidTimeRange    CoreStatus = "INVALID_TIME_RANGE"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusUnknown             CoreStatus = "UNKNOWN"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusInvalidInput, StatusInvalidTimeRange:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusAlreadyUsed:
		return http.StatusConflict
	case StatusInactive, StatusInsufficientBalance, StatusUnavailable, StatusExpired, StatusOverflow:
		return http.StatusUnprocessableEntity
	case StatusInternal, StatusUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf extracts the CoreStatus from an error chain, defaulting to unknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}
	return StatusUnknown
}

// Is reports whether err carries the given status.
func Is(err error, status CoreStatus) bool {
	return StatusOf(err) == status
}
