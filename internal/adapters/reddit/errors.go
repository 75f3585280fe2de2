package reddit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStatus matches every *StatusError.
	ErrStatus = errors.New("reddit: unexpected status")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("reddit: malformed response body")
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("reddit: api rejected request")
)

type StatusError struct {
	Op         string
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit %s: status %d", e.Op, e.StatusCode)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("reddit %s: decode: %v", e.Op, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// APIError carries the error list of a 2xx response that still failed,
// e.g. a reply to a locked thread or a bad OAuth grant.
type APIError struct {
	Op       string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit %s: %s", e.Op, strings.Join(e.Messages, "; "))
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }
