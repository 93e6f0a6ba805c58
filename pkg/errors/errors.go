package errors

import (
	"fmt"
)

// ErrorCode packs an HTTP status, a module number and a sequence number,
// e.g. 404_01_02 is the second not-found error of the sessions module.
type ErrorCode int

func fmtErrorCode(status, module, seq int) ErrorCode {
	return ErrorCode(status*10000 + module*100 + seq)
}

// Status returns the HTTP status carried by the code.
func (c ErrorCode) Status() int {
	return int(c) / 10000
}

// AppError is an error that can be rendered to API clients as-is.
type AppError struct {
	ErrorCode ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

// New builds an AppError. An optional first string argument overrides the
// default message; remaining args format it.
func New(code ErrorCode, args ...interface{}) AppError {
	return AppError{
		ErrorCode: code,
		Message:   GetErrorMessage(code, args...),
	}
}

// Newf builds an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) AppError {
	return AppError{
		ErrorCode: code,
		Message:   fmt.Sprintf(format, args...),
	}
}

func (e AppError) Error() string {
	return fmt.Sprintf("%d: %s", e.ErrorCode, e.Message)
}

// Is matches AppErrors by code so errors.Is works with sentinel codes.
func (e AppError) Is(target error) bool {
	t, ok := target.(AppError)
	return ok && t.ErrorCode == e.ErrorCode
}
