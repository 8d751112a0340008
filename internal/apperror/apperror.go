// Package apperror is the closed error taxonomy shared by every engine and the service.
// Engines return *AppError so the protocol boundary can map failures to stable wire
// messages without inspecting error strings.
package apperror

import "fmt"

// Code identifies one of the error categories the system distinguishes.
type Code string

const (
	CodeProtocol      Code = "PROTOCOL"
	CodeAuthorization Code = "AUTHORIZATION"
	CodeNotEnrolled   Code = "NOT_ENROLLED"
	CodeCapture       Code = "CAPTURE"
	CodeModel         Code = "MODEL"
	CodeTimeout       Code = "TIMEOUT"
	CodeStorage       Code = "STORAGE"
)

var messages = map[Code]string{
	CodeProtocol:      "malformed or oversize protocol frame",
	CodeAuthorization: "permission denied: you can only act on your own enrollment",
	CodeNotEnrolled:   "user not enrolled",
	CodeCapture:       "camera capture failed",
	CodeModel:         "inference model failure",
	CodeTimeout:       "operation timed out",
	CodeStorage:       "storage operation failed",
}

// AppError is a structured error carrying a stable code alongside the wrapped cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError with the default message for code.
func New(code Code, err error) *AppError {
	return &AppError{Code: code, Message: messages[code], Err: err}
}

// Newf builds an AppError with a custom message, still tagged with code.
func Newf(code Code, err error, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is an *AppError carrying code.
func Is(err error, code Code) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}
