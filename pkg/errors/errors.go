package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned errors still compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment, referral, prebooking and invoice errors. Messages are shown to end users verbatim.
var (
	ErrUserNotFound           = New("USER_NOT_FOUND", http.StatusNotFound, "User not found.")
	ErrCourseNotFound         = New("COURSE_NOT_FOUND", http.StatusNotFound, "Course not found.")
	ErrEnrollmentNotFound     = New("ENROLLMENT_NOT_FOUND", http.StatusNotFound, "Enrollment not found.")
	ErrInvoiceNotFound        = New("INVOICE_NOT_FOUND", http.StatusNotFound, "Invoice not found.")
	ErrIncompleteProfile      = New("INCOMPLETE_PROFILE", http.StatusUnprocessableEntity, "Please add your mobile number and your guardian's mobile number to your profile before continuing.")
	ErrInvalidCycle           = New("INVALID_CYCLE", http.StatusBadRequest, "The selected cycle does not belong to this course.")
	ErrReferralAlreadyUsed    = New("REFERRAL_ALREADY_USED", http.StatusConflict, "You have already used a referral code.")
	ErrInvalidReferralCode    = New("INVALID_REFERRAL_CODE", http.StatusBadRequest, "Invalid referral code.")
	ErrSelfReferral           = New("SELF_REFERRAL_PROHIBITED", http.StatusBadRequest, "You cannot use your own referral code.")
	ErrAlreadyEnrolled        = New("ALREADY_ENROLLED", http.StatusConflict, "You are already enrolled in this course.")
	ErrEnrollmentRaced        = New("ENROLLMENT_CONFLICT", http.StatusConflict, "Your enrollment changed while this request was processed. Please try again.")
	ErrPrebookingClosed       = New("PREBOOKING_CLOSED", http.StatusConflict, "This course is not open for prebooking.")
	ErrAlreadyPrebooked       = New("ALREADY_PREBOOKED", http.StatusConflict, "You have already prebooked this course.")
	ErrInvoiceFailed          = New("INVOICE_FAILED", http.StatusInternalServerError, "Invoice could not be generated. It will be retried automatically.")
	ErrDatabaseUnavailable    = New("DATABASE_UNAVAILABLE", http.StatusServiceUnavailable, "The service is temporarily unavailable. Please try again.")
	ErrInvalidDownloadToken   = New("INVALID_DOWNLOAD_TOKEN", http.StatusForbidden, "invalid or expired download token")
	ErrPaymentDetailsNotAllow = New("PAYMENT_DETAILS_FORBIDDEN", http.StatusForbidden, "Only staff can record payment details.")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps an unexpected failure with a caller supplied message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}
