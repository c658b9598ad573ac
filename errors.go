package hubconn

import "fmt"

// hubError is a comparable sentinel error, so callers can errors.Is against the
// fixed vocabulary the core surfaces.
type hubError string

func (e hubError) Error() string { return string(e) }

// Sentinel errors surfaced by HubConnection's public operations.
const (
	ErrNotStarted            = hubError("hubconn: not started")
	ErrAlreadyStarted        = hubError("hubconn: already started")
	ErrNotConnected          = hubError("hubconn: not connected")
	ErrDisposed              = hubError("hubconn: disposed")
	ErrConnectionTerminated  = hubError("hubconn: connection terminated")
	ErrDuplicateInvocationId = hubError("hubconn: duplicate invocation id")
	ErrServerTimeout         = hubError("hubconn: server timeout")
	ErrProtocolViolation     = hubError("hubconn: protocol violation")
	ErrInvocationCanceled    = hubError("hubconn: invocation canceled")
)

// NegotiationError is returned when the HTTP negotiate round trip fails.
type NegotiationError string

// Error implements the error interface.
func (ne NegotiationError) Error() string {
	return fmt.Sprintf("NegotiationError: %s", string(ne))
}

// SocketConnectionError is returned when dialing the transport socket fails.
type SocketConnectionError string

// Error implements the error interface.
func (sce SocketConnectionError) Error() string {
	return fmt.Sprintf("SocketConnectionError: %s", string(sce))
}

// SocketError is returned when a read or write on an already-established socket fails.
type SocketError string

// Error implements the error interface.
func (se SocketError) Error() string {
	return fmt.Sprintf("SocketError: %s", string(se))
}

// HubMessageError is returned when an inbound frame cannot be parsed against the binder.
type HubMessageError string

// Error implements the error interface.
func (hme HubMessageError) Error() string {
	return fmt.Sprintf("HubMessageError: %s", string(hme))
}
