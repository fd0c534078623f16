package protocol

import "fmt"

const (
	CodeMalformed   = "malformed"
	CodeUnknownType = "unknown_type"
	CodeRejected    = "rejected"
)

// Error represents a protocol level error
type Error struct {
	Code    string
	Message string
	Err     error
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
