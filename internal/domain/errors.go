package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	// KindTransport covers signaling connect failures, disconnects and
	// server-pushed error events. Always fatal.
	KindTransport ErrorKind = iota + 1
	// KindNegotiation covers offer/answer creation or application failures. Fatal.
	KindNegotiation
	// KindCapture covers local camera/microphone startup failures. Fatal.
	KindCapture
	// KindRuntimeTeardown is reported when releasing the peer connection fails.
	// The session is closed regardless.
	KindRuntimeTeardown
	// KindStaleCandidate is a remote candidate that could not be applied. Not fatal.
	KindStaleCandidate
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNegotiation:
		return "negotiation"
	case KindCapture:
		return "capture"
	case KindRuntimeTeardown:
		return "runtime_teardown"
	case KindStaleCandidate:
		return "stale_candidate"
	default:
		return "unknown"
	}
}

var (
	ErrSessionActive         = errors.New("session already active")
	ErrNoPeerConnection      = errors.New("no peer connection")
	ErrPeerExists            = errors.New("peer connection already exists")
	ErrHandlersNotRegistered = errors.New("signaling handlers not registered")
	ErrAlreadyConnected      = errors.New("signaling channel already connected")
	ErrNotConnected          = errors.New("signaling channel not connected")
	ErrDisconnected          = errors.New("signaling channel disconnected")
	ErrRemoteError           = errors.New("relay reported error")
	ErrPeerClosed            = errors.New("peer connection closed")
	ErrNegotiationTimeout    = errors.New("timed out waiting for remote description")
	ErrAlreadyNegotiated     = errors.New("session description already negotiated")
)

// SessionError is the error type delivered to session failure callbacks.
type SessionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewSessionError wraps err with a kind and the operation that failed.
func NewSessionError(kind ErrorKind, op string, err error) *SessionError {
	return &SessionError{Kind: kind, Op: op, Err: err}
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first SessionError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsNegotiation reports whether err is a negotiation failure.
func IsNegotiation(err error) bool {
	return KindOf(err) == KindNegotiation
}
