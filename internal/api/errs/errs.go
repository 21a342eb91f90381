// Package errs provides the error type returned to HTTP clients.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrCode represents an error code in the system.
type ErrCode struct {
	value  int
	status int
}

// Value returns the integer value of the error code.
func (ec ErrCode) Value() int { return ec.value }

// String returns the string representation of the error code.
func (ec ErrCode) String() string { return codeNames[ec] }

// Error codes the API can respond with.
var (
	OK                = ErrCode{value: 0, status: http.StatusOK}
	InvalidArgument   = ErrCode{value: 3, status: http.StatusBadRequest}
	NotFound          = ErrCode{value: 5, status: http.StatusNotFound}
	ResourceExhausted = ErrCode{value: 8, status: http.StatusTooManyRequests}
	Internal          = ErrCode{value: 13, status: http.StatusInternalServerError}
	Unavailable       = ErrCode{value: 14, status: http.StatusServiceUnavailable}
)

var codeNames = map[ErrCode]string{
	OK:                "ok",
	InvalidArgument:   "invalid_argument",
	NotFound:          "not_found",
	ResourceExhausted: "resource_exhausted",
	Internal:          "internal",
	Unavailable:       "unavailable",
}

// Error represents an error in the system. Message is what the client sees
// under the "error" key.
type Error struct {
	Code     ErrCode `json:"-"`
	Message  string  `json:"error"`
	FuncName string  `json:"-"`
	FileName string  `json:"-"`
}

// New constructs an error based on an app error.
func New(code ErrCode, err error) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  err.Error(),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Newf constructs an error based on a error message.
func Newf(code ErrCode, format string, v ...any) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, v...),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Encode implements the web.Encoder interface.
func (e *Error) Encode() ([]byte, string, error) {
	data, err := json.Marshal(e)
	return data, "application/json", err
}

// HTTPStatus implements the web.HTTPStatusSetter interface.
func (e *Error) HTTPStatus() int {
	return e.Code.status
}

// IsError tests the concrete error is of the Error type.
func IsError(err error) bool {
	var er *Error
	return errors.As(err, &er)
}

// GetError returns a copy of the Error pointer.
func GetError(err error) *Error {
	var er *Error
	if !errors.As(err, &er) {
		return nil
	}
	return er
}
