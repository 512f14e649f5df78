package errutil

import (
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func InvalidInput(msg string, opts ...Option) error {
	return New(StatusInvalidInput, msg, opts...)
}

func Inactive(msg string, opts ...Option) error {
	return New(StatusInactive, msg, opts...)
}

func Unauthorized(msg string, opts ...Option) error {
	return New(StatusUnauthorized, msg, opts...)
}

func InsufficientBalance(msg string, opts ...Option) error {
	return New(StatusInsufficientBalance, msg, opts...)
}

func Overflow(msg string, opts ...Option) error {
	return New(StatusOverflow, msg, opts...)
}

func Unavailable(msg string, opts ...Option) error {
	return New(StatusUnavailable, msg, opts...)
}

func AlreadyUsed(msg string, opts ...Option) error {
	return New(StatusAlreadyUsed, msg, opts...)
}

func Expired(msg string, opts ...Option) error {
	return New(StatusExpired, msg, opts...)
}

func InvalidTimeRange(msg string, opts ...Option) error {
	return New(StatusInvalidTimeRange, msg, opts...)
}

func NotFound(msg string, opts ...Option) error {
	return New(StatusNotFound, msg, opts...)
}

func Conflict(msg string, opts ...Option) error {
	return New(StatusConflict, msg, opts...)
}

func Internal(msg string, opts ...Option) error {
	return New(StatusInternal, msg, opts...)
}
