// Package transport defines the link between two sessions. A Transport is
// created per connection attempt by a Provider, owned by exactly one
// session, and released with Teardown.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/iamasit07/connect4-remote/internal/protocol"
)

type Kind string

const (
	KindPeer  Kind = "peer"
	KindRelay Kind = "relay"
)

// Handler receives transport events. Implementations never invoke it
// synchronously from inside a Transport method call.
type Handler interface {
	OnConnected()
	OnDisconnected()
	OnMessage(msg protocol.Message)
	OnError(err error)
}

type Transport interface {
	Kind() Kind

	// InitiateSession prepares a session as host and returns the value the
	// user hands to the opponent: an offer token or a game id.
	InitiateSession(ctx context.Context) (string, error)

	// JoinSession connects using the host's token. The peer variant returns
	// an answer token the host must complete with; the relay returns "".
	JoinSession(ctx context.Context, token string) (string, error)

	// CompleteSession finishes the host side of a two-phase handshake.
	CompleteSession(ctx context.Context, reply string) error

	// Send is best-effort and returns false when there is no usable link.
	Send(msg protocol.Message) bool

	// Teardown releases everything the transport holds. Safe to call more
	// than once.
	Teardown() error
}

type Provider interface {
	Kind() Kind
	// Check validates configuration without touching the network.
	Check() error
	Open(h Handler) (Transport, error)
}

type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNotConfigured   Error = "transport is not configured"
	ErrTimeout         Error = "connection timed out"
	ErrMalformedToken  Error = "malformed connection token"
	ErrNegotiation     Error = "connection negotiation failed"
	ErrSessionNotFound Error = "game not found"
	ErrSessionFull     Error = "game already has two players"
	ErrConflict        Error = "record was changed concurrently"
	ErrSendFailed      Error = "send failed"
	ErrOutOfOrder      Error = "message received out of order"
	ErrClosed          Error = "transport closed"
)

// ConnectionError reports a failed establishment step.
type ConnectionError struct {
	Op    string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Fail wraps err as a ConnectionError for op, mapping context expiry to
// ErrTimeout.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &ConnectionError{Op: op, Cause: err}
}
