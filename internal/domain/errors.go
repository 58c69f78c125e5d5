package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrEditConflict        = errors.New("edit conflict")
	ErrSeatAlreadyReserved = errors.New("seat(s) are already reserved")
	ErrDanglingBooking     = errors.New("booking references a show that no longer exists")
)

type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindAuthorization     ErrorKind = "authorization"
	KindDependencyFailure ErrorKind = "dependency_failure"
)

type ErrorCode string

const (
	CodeShowNotFound         ErrorCode = "SHOW_NOT_FOUND"
	CodeBookingNotFound      ErrorCode = "BOOKING_NOT_FOUND"
	CodeScreenNotFound       ErrorCode = "SCREEN_NOT_FOUND"
	CodeMovieNotFound        ErrorCode = "MOVIE_NOT_FOUND"
	CodeEmptySeatRequest     ErrorCode = "EMPTY_SEAT_REQUEST"
	CodeSeatOutOfRange       ErrorCode = "SEAT_OUT_OF_RANGE"
	CodeSeatUnavailable      ErrorCode = "SEAT_UNAVAILABLE"
	CodeInvalidDuration      ErrorCode = "INVALID_DURATION"
	CodeReleaseDateViolation ErrorCode = "RELEASE_DATE_VIOLATION"
	CodeShowTimeOverlap      ErrorCode = "SHOW_TIME_OVERLAP"
	CodeConcurrentUpdate     ErrorCode = "CONCURRENT_UPDATE"
	CodeNotAuthorized        ErrorCode = "NOT_AUTHORIZED"
	CodeNotificationFailed   ErrorCode = "NOTIFICATION_FAILED"
)

// Error is the structured failure returned by the booking engine and the
// show scheduler. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind              ErrorKind
	Code              ErrorCode
	Message           string
	Seats             []Seat
	ConflictingShowID int
	Err               error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Seats) > 0 {
		seats := make([]string, len(e.Seats))
		for i, s := range e.Seats {
			seats[i] = s.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(seats, " "))
	}

	if e.ConflictingShowID != 0 {
		fmt.Fprintf(&b, " (show %d)", e.ConflictingShowID)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// AsError extracts the structured error from err's chain.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}

	return nil, false
}

func newError(kind ErrorKind, code ErrorCode, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Sentinels usable as errors.Is targets.
var (
	ErrShowNotFound         = newError(KindNotFound, CodeShowNotFound, "show not found")
	ErrBookingNotFound      = newError(KindNotFound, CodeBookingNotFound, "booking not found")
	ErrScreenNotFound       = newError(KindNotFound, CodeScreenNotFound, "screen not found")
	ErrMovieNotFound        = newError(KindNotFound, CodeMovieNotFound, "movie not found or release date is missing")
	ErrEmptySeatRequest     = newError(KindValidation, CodeEmptySeatRequest, "at least one seat is required")
	ErrSeatOutOfRange       = newError(KindValidation, CodeSeatOutOfRange, "some seats are out of range")
	ErrSeatUnavailable      = newError(KindConflict, CodeSeatUnavailable, "some seats are already booked")
	ErrInvalidDuration      = newError(KindValidation, CodeInvalidDuration, "show duration must be greater than zero")
	ErrReleaseDateViolation = newError(KindValidation, CodeReleaseDateViolation, "show time cannot be before movie release date")
	ErrShowTimeOverlap      = newError(KindConflict, CodeShowTimeOverlap, "show time overlaps with an existing show")
	ErrConcurrentUpdate     = newError(KindConflict, CodeConcurrentUpdate, "the seat map was modified concurrently, please retry")
	ErrNotAuthorized        = newError(KindAuthorization, CodeNotAuthorized, "you are not authorized to release this booking")
	ErrNotificationFailed   = newError(KindDependencyFailure, CodeNotificationFailed, "notification could not be delivered")
)

func SeatOutOfRangeError(seats []Seat) *Error {
	e := *ErrSeatOutOfRange
	e.Seats = seats
	return &e
}

func SeatUnavailableError(seats []Seat) *Error {
	e := *ErrSeatUnavailable
	e.Seats = seats
	return &e
}

func ShowTimeOverlapError(conflictingShowID int) *Error {
	e := *ErrShowTimeOverlap
	e.ConflictingShowID = conflictingShowID
	return &e
}

func NotificationFailedError(cause error) *Error {
	e := *ErrNotificationFailed
	e.Err = cause
	return &e
}

// WithCause returns a copy of e that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}
