package datasource

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a data-source failure.
type ErrorKind int

const (
	Unauthorized ErrorKind = iota + 1
	Forbidden
	NotFound
	Invalid
	Server
	Transport
	Decode
	Shape
)

func (k ErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case Server:
		return "server"
	case Transport:
		return "transport"
	case Decode:
		return "decode"
	case Shape:
		return "shape"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var defaultMessages = map[ErrorKind]string{
	Unauthorized: "Your session has expired. Please sign in again.",
	Forbidden:    "You do not have permission to perform this action",
	NotFound:     "The requested record was not found",
	Invalid:      "The request was rejected",
	Server:       "Server error. Please try again later",
	Transport:    "No response from server. Please check your connection.",
	Decode:       "Unexpected response from server",
	Shape:        "Unexpected response from server",
}

// Error is the only error type returned by Client. Message is safe to show
// to the user.
type Error struct {
	Kind    ErrorKind
	Op      string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	if e.Status != 0 {
		s += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a data-source error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func newError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: defaultMessages[kind], Err: err}
}

// statusError maps a non-2xx response. The server's own message is kept
// for client errors, which describe what was wrong with the request.
func statusError(op, path string, status int, serverMsg string) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized:
		kind = Unauthorized
	case status == http.StatusForbidden:
		kind = Forbidden
	case status == http.StatusNotFound:
		kind = NotFound
	case status >= http.StatusInternalServerError:
		kind = Server
	default:
		kind = Invalid
	}
	e := newError(kind, op, path, nil)
	e.Status = status
	if serverMsg != "" {
		e.Err = errors.New(serverMsg)
		if kind == NotFound || kind == Invalid {
			e.Message = serverMsg
		}
	}
	return e
}
