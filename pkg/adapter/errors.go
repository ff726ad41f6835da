package adapter

import (
	"errors"
	"fmt"

	"github.com/harrisonrobin/nexus/pkg/model"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrAuth means the tool rejected the credentials. Terminal until they change.
	ErrAuth = errors.New("authentication failed")

	// ErrTransport means the tool could not be reached, or kept failing after retries.
	ErrTransport = errors.New("transport failure")

	// ErrProtocol means the tool answered with something we could not interpret.
	ErrProtocol = errors.New("protocol error")
)

// Error is the typed failure of an adapter call.
type Error struct {
	Kind   error
	Tool   model.ToolKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewAuthError(tool model.ToolKind, op string, status int, err error) *Error {
	return &Error{Kind: ErrAuth, Tool: tool, Op: op, Status: status, Err: err}
}

func NewTransportError(tool model.ToolKind, op string, status int, err error) *Error {
	return &Error{Kind: ErrTransport, Tool: tool, Op: op, Status: status, Err: err}
}

func NewProtocolError(tool model.ToolKind, op string, status int, err error) *Error {
	return &Error{Kind: ErrProtocol, Tool: tool, Op: op, Status: status, Err: err}
}

// NewPageLimitError reports a listing that still had pages left after limit pages.
// Returning what was read would let a sync treat a truncated listing as complete.
func NewPageLimitError(tool model.ToolKind, op string, limit int) *Error {
	return NewProtocolError(tool, op, 0, fmt.Errorf("listing exceeds %d pages", limit))
}

// IsRetryable reports whether err is worth retrying later.
// Transport failures are; auth and protocol failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport)
}

// KindOf returns the kind sentinel carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrAuth, ErrTransport, ErrProtocol} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
