// Package failure defines the caller-visible failure taxonomy shared by the
// positioning source, the supply cache and the placer.
package failure

import (
	"errors"
	"fmt"
	"net"
)

// Reason is the single enumerated cause reported once retries are exhausted.
// Lower-level transport detail never travels past this boundary.
type Reason int

const (
	Unspecified Reason = iota
	NoFill
	ConnectionError
	InvalidResponse
	ServerError
)

// String returns a stable label (also used as a metrics label value).
func (r Reason) String() string {
	switch r {
	case NoFill:
		return "no_fill"
	case ConnectionError:
		return "connection_error"
	case InvalidResponse:
		return "invalid_response"
	case ServerError:
		return "server_error"
	default:
		return "unspecified"
	}
}

// Sentinel errors that transports and fetchers wrap to signal a class of failure.
var (
	ErrNoFill          = errors.New("no fill")
	ErrConnection      = errors.New("connection error")
	ErrInvalidResponse = errors.New("invalid response")
	ErrServer          = errors.New("server error")
)

// Classify maps an arbitrary error to a Reason.
func Classify(err error) Reason {
	if err == nil {
		return Unspecified
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	switch {
	case errors.Is(err, ErrNoFill):
		return NoFill
	case errors.Is(err, ErrConnection):
		return ConnectionError
	case errors.Is(err, ErrInvalidResponse):
		return InvalidResponse
	case errors.Is(err, ErrServer):
		return ServerError
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ConnectionError
	}
	return Unspecified
}

// Error is the terminal failure handed to callers after the retry budget is spent.
type Error struct {
	Reason Reason
	Err    error
}

// Terminal wraps err into an *Error carrying its classified Reason.
func Terminal(err error) *Error {
	return &Error{Reason: Classify(err), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("terminal failure: %s", e.Reason)
	}
	return fmt.Sprintf("terminal failure (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
