package transport

import (
	"errors"
	"fmt"
)

// Error is a transport failure: connection error, timeout or non-2xx status
type Error struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseError reports a response body that could not be decoded
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a transport failure
func IsTransport(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// IsParse reports whether err is (or wraps) a parse failure
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
