package http_errors

import (
	stderrors "errors"
	"net/http"

	"github.com/go-errors/errors"
)

type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotFound        Kind = "NotFound"
	KindUnauthenticated Kind = "Unauthenticated"
	KindInvalidToken    Kind = "InvalidToken"
	KindStaleToken      Kind = "StaleToken"
	KindForbidden       Kind = "Forbidden"
	KindConflict        Kind = "Conflict"
	KindTooManyRequests Kind = "TooManyRequests"
	KindInternal        Kind = "Internal"
)

const (
	StatusFail  = "fail"
	StatusError = "error"
)

type ErrorResponse struct {
	Message     string `json:"message"`
	Code        int    `json:"code"`
	Kind        Kind   `json:"kind"`
	ErrorCode   string `json:"errorCode,omitempty"`
	Details     any    `json:"details,omitempty"` // Optional field for additional error details
	Operational bool   `json:"-"`

	cause error
	stack []byte
} // @name ErrorResponse

func (e *ErrorResponse) Error() string {
	return e.Message
}

func (e *ErrorResponse) Unwrap() error {
	return e.cause
}

// Status is "fail" for client errors and "error" for everything else.
func (e *ErrorResponse) Status() string {
	if e.Code >= 400 && e.Code < 500 {
		return StatusFail
	}
	return StatusError
}

// Stack returns the stack captured when the error was created, or the stack
// of the wrapped cause when it carries a more precise one.
func (e *ErrorResponse) Stack() []byte {
	var withStack *errors.Error
	if e.cause != nil && stderrors.As(e.cause, &withStack) {
		return withStack.Stack()
	}
	return e.stack
}

func (e *ErrorResponse) WithCause(err error) *ErrorResponse {
	e.cause = err
	return e
}

func (e *ErrorResponse) WithDetails(details any) *ErrorResponse {
	e.Details = details
	return e
}

func newError(skip int, code int, kind Kind, operational bool, message string, details ...any) *ErrorResponse {
	e := &ErrorResponse{
		Message:     message,
		Code:        code,
		Kind:        kind,
		Operational: operational,
		stack:       errors.Wrap(message, skip+1).Stack(),
	}
	if len(details) > 0 {
		e.Details = details[0] // Take the first detail if provided
	}
	return e
}

// NewErrorResponse builds an operational error for the given status.
func NewErrorResponse(code int, message string, details ...any) *ErrorResponse {
	return newError(1, code, kindForStatus(code), true, message, details...)
}

func ValidationError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusBadRequest, KindValidation, true, message, details...)
}

// BadRequestError is kept as an alias of ValidationError for malformed input.
func BadRequestError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusBadRequest, KindValidation, true, message, details...)
}

func UnauthorizedError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusUnauthorized, KindUnauthenticated, true, message, details...)
}

func InvalidTokenError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusUnauthorized, KindInvalidToken, true, message, details...)
}

func StaleTokenError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusUnauthorized, KindStaleToken, true, message, details...)
}

func ForbiddenError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusForbidden, KindForbidden, true, message, details...)
}

func NotFoundError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusNotFound, KindNotFound, true, message, details...)
}

// ConflictError reports a uniqueness violation. It is answered with 400.
func ConflictError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusBadRequest, KindConflict, true, message, details...)
}

func TooManyRequestsError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusTooManyRequests, KindTooManyRequests, true, message, details...)
}

// InternalServerError is a deliberate, operational 500 whose message is safe to show.
func InternalServerError(message string, details ...any) *ErrorResponse {
	return newError(1, http.StatusInternalServerError, KindInternal, true, message, details...)
}

// UnexpectedError wraps a programming or infrastructure failure. Its message is
// never shown to clients in terse mode.
func UnexpectedError(err error) *ErrorResponse {
	message := "unexpected error"
	if err != nil {
		message = err.Error()
	}
	return newError(1, http.StatusInternalServerError, KindInternal, false, message).WithCause(err)
}

func BadRequestErrorWithCode(code string, message string, details ...any) *ErrorResponse {
	e := newError(1, http.StatusBadRequest, KindValidation, true, message, details...)
	e.ErrorCode = code
	return e
}

func NotFoundErrorWithCode(code string, message string, details ...any) *ErrorResponse {
	e := newError(1, http.StatusNotFound, KindNotFound, true, message, details...)
	e.ErrorCode = code
	return e
}

func ConflictErrorWithCode(code string, message string, details ...any) *ErrorResponse {
	e := newError(1, http.StatusBadRequest, KindConflict, true, message, details...)
	e.ErrorCode = code
	return e
}

func InternalServerErrorWithCode(code string, message string, details ...any) *ErrorResponse {
	e := newError(1, http.StatusInternalServerError, KindInternal, false, message, details...)
	e.ErrorCode = code
	return e
}

func kindForStatus(code int) Kind {
	switch code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return KindNotFound
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	}
	if code >= 500 {
		return KindInternal
	}
	return KindValidation
}
