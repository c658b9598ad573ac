package hubconn

import "reflect"

// TransferFormat tells a Connection which wire representation the active
// Protocol needs.
type TransferFormat int

const (
	TransferFormatText TransferFormat = iota
	TransferFormatBinary
)

// Binder is the callback interface a Protocol uses while parsing an inbound
// batch: it needs to know the parameter types expected by a server-initiated
// Invocation, and the result type declared for a pending Completion/StreamItem.
type Binder interface {
	// ParamTypesFor returns the declared parameter types for method, or nil
	// if no handler is registered (the Protocol decides whether nil is
	// acceptable for the frame it is parsing).
	ParamTypesFor(method string) []reflect.Type
	// ResultTypeFor returns the declared result type for the pending
	// invocation id, or nil if no such entry exists (the Protocol then
	// treats this as "discard").
	ResultTypeFor(id string) reflect.Type
}

// HubMessage is the sealed set of message kinds a Protocol may produce from
// ParseMessages or accept to WriteMessage.
type HubMessage interface {
	hubMessage()
}

// InvocationMessage is a client→server or server→client method call.
// InvocationID is empty for a fire-and-forget Send or a server-initiated
// push (neither expects a Completion).
type InvocationMessage struct {
	InvocationID string
	Target       string
	Arguments    []interface{}
}

func (InvocationMessage) hubMessage() {}

// StreamInvocationMessage is a client→server call whose response is a
// sequence of StreamItemMessages terminated by a CompletionMessage.
type StreamInvocationMessage struct {
	InvocationID string
	Target       string
	Arguments    []interface{}
}

func (StreamInvocationMessage) hubMessage() {}

// StreamItemMessage carries one item of a streaming response.
type StreamItemMessage struct {
	InvocationID string
	Item         interface{}
}

func (StreamItemMessage) hubMessage() {}

// CompletionMessage terminates a unary invocation or a stream.
type CompletionMessage struct {
	InvocationID string
	HasResult    bool
	Result       interface{}
	Error        string
}

func (CompletionMessage) hubMessage() {}

// CancelInvocationMessage asks the server to stop a streaming invocation.
type CancelInvocationMessage struct {
	InvocationID string
}

func (CancelInvocationMessage) hubMessage() {}

// PingMessage is a keep-alive frame carrying no payload.
type PingMessage struct{}

func (PingMessage) hubMessage() {}

// Protocol is the wire codec consumed by HubConnection: it parses a byte
// batch into zero or more HubMessages against a Binder, and serializes one
// outbound HubMessage to bytes.
type Protocol interface {
	Name() string
	TransferFormat() TransferFormat
	WriteMessage(message HubMessage) ([]byte, error)
	ParseMessages(data []byte, binder Binder) ([]HubMessage, error)
}
