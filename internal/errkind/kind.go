// Package errkind implements the closed error taxonomy (spec component C1)
// that every SRT numeric error code is mapped through before it reaches
// user code. Nothing in this package touches cgo or the SRT library: the
// numeric-code-to-Kind table is plain data, and the root package is the
// only place that reads SRT's thread-local last-error slot and hands the
// numeric code to FromSRTCode.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of a closed set of logical error categories. Unknown SRT
// codes map to Other, which retains the original numeric code.
type Kind int

const (
	ConnectionSetup Kind = iota
	ConnectionRejected
	ConnectionLost
	InvalidHandle
	WouldBlock
	Timeout
	EpollAddFailed
	EpollUpdateFailed
	SendFailed
	ReceiveFailed
	ResourceExhausted
	Cancelled
	Other
)

func (k Kind) String() string {
	switch k {
	case ConnectionSetup:
		return "ConnectionSetup"
	case ConnectionRejected:
		return "ConnectionRejected"
	case ConnectionLost:
		return "ConnectionLost"
	case InvalidHandle:
		return "InvalidHandle"
	case WouldBlock:
		return "WouldBlock"
	case Timeout:
		return "Timeout"
	case EpollAddFailed:
		return "EpollAddFailed"
	case EpollUpdateFailed:
		return "EpollUpdateFailed"
	case SendFailed:
		return "SendFailed"
	case ReceiveFailed:
		return "ReceiveFailed"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Cancelled:
		return "Cancelled"
	default:
		return "Other"
	}
}

// Error is the concrete error type returned across every layer of this
// module. Code carries the original SRT numeric error, or SRT's reject
// reason for a ConnectionRejected resolved from an epoll error event; for
// Kind values synthesized locally (Timeout, Cancelled, ResourceExhausted,
// ...) Code is zero.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewWithCode(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// table maps SRT's numeric error codes (SRT_ELASTERROR family, as exposed
// by srt_getlasterror) to the portable Kind. The root package owns the
// numeric constants (they come from <srt/srt.h> via cgo) and calls
// FromSRTCode with the plain int so this table stays cgo-free and unit
// testable.
var table = map[int]Kind{}

// Register associates a raw SRT numeric error code with a Kind. Called once
// per code from the root package's init, using the real cgo constants.
// Re-registering a code overwrites the previous mapping.
func Register(code int, kind Kind) {
	table[code] = kind
}

// FromSRTCode maps a raw SRT numeric error code to a Kind. The mapping is
// total: an unregistered code maps to Other and the code is preserved on
// the returned Error via NewWithCode.
func FromSRTCode(code int, message string) *Error {
	if kind, ok := table[code]; ok {
		return NewWithCode(kind, code, message)
	}
	return NewWithCode(Other, code, message)
}

// IsWouldBlock reports whether err represents SRT's EASYNCSND/EASYNCRCV
// condition, used by the socket wrapper to decide whether a failed
// send/recv should park on the reactor instead of surfacing to the user.
func IsWouldBlock(err error) bool { return kindIs(err, WouldBlock) }

// IsTimeout reports the portable condition "timed out".
func IsTimeout(err error) bool { return kindIs(err, Timeout) }

// IsConnectionLost reports the portable condition "connection reset".
func IsConnectionLost(err error) bool { return kindIs(err, ConnectionLost) }

// IsCancelled reports whether the operation was cancelled by the caller
// rather than failing on the wire.
func IsCancelled(err error) bool { return kindIs(err, Cancelled) }

func kindIs(err error, want Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == want
	}
	return false
}
