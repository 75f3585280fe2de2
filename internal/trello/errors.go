package trello

import (
	"errors"
	"fmt"
)

var (
	// ErrStatus matches every *StatusError.
	ErrStatus = errors.New("trello: unexpected status")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("trello: malformed response body")
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Op         string
	URL        string // auth parameters redacted
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trello %s: %s returned status %d", e.Op, e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// DecodeError is returned when a 2xx body is not the JSON the call expects.
type DecodeError struct {
	Op  string
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("trello %s: %s: decode: %v", e.Op, e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
