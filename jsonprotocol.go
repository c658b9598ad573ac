package hubconn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// recordSeparator is the ASCII 0x1e byte SignalR's JSON hub protocol uses to
// delimit frames on the wire (philippseith-signalr__hubprotocol.go documents
// the same message shapes this codec mirrors).
const recordSeparator = 0x1e

// SignalR hub protocol message type discriminators.
const (
	msgTypeInvocation       = 1
	msgTypeStreamItem       = 2
	msgTypeCompletion       = 3
	msgTypeStreamInvocation = 4
	msgTypeCancelInvocation = 5
	msgTypePing             = 6
	msgTypeClose            = 7
)

// jsonHubProtocol is the concrete, stateless JSON Protocol implementation.
type jsonHubProtocol struct{}

// NewJSONHubProtocol returns the default JSON wire codec.
func NewJSONHubProtocol() Protocol {
	return jsonHubProtocol{}
}

func (jsonHubProtocol) Name() string                    { return "json" }
func (jsonHubProtocol) TransferFormat() TransferFormat  { return TransferFormatText }

type wireEnvelope struct {
	Type         int               `json:"type"`
	Target       string            `json:"target,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	StreamIds    []string          `json:"streamIds,omitempty"`
	Item         json.RawMessage   `json:"item,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (jsonHubProtocol) WriteMessage(message HubMessage) ([]byte, error) {
	env := wireEnvelope{}

	switch m := message.(type) {
	case *InvocationMessage:
		env.Type = msgTypeInvocation
		env.Target = m.Target
		env.InvocationID = m.InvocationID
		args, err := marshalArgs(m.Arguments)
		if err != nil {
			return nil, err
		}
		env.Arguments = args
	case *StreamInvocationMessage:
		env.Type = msgTypeStreamInvocation
		env.Target = m.Target
		env.InvocationID = m.InvocationID
		args, err := marshalArgs(m.Arguments)
		if err != nil {
			return nil, err
		}
		env.Arguments = args
	case *CancelInvocationMessage:
		env.Type = msgTypeCancelInvocation
		env.InvocationID = m.InvocationID
	case *PingMessage:
		env.Type = msgTypePing
	case *CompletionMessage:
		env.Type = msgTypeCompletion
		env.InvocationID = m.InvocationID
		env.Error = m.Error
		if m.HasResult {
			raw, err := json.Marshal(m.Result)
			if err != nil {
				return nil, err
			}
			env.Result = raw
		}
	case *StreamItemMessage:
		env.Type = msgTypeStreamItem
		env.InvocationID = m.InvocationID
		raw, err := json.Marshal(m.Item)
		if err != nil {
			return nil, err
		}
		env.Item = raw
	default:
		return nil, fmt.Errorf("hubconn: unsupported outbound message type %T", message)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}

func marshalArgs(args []interface{}) ([]json.RawMessage, error) {
	if args == nil {
		return []json.RawMessage{}, nil
	}
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// ParseMessages splits data on the record separator and parses each frame
// against binder. A batch that this module's own WebSocketConnection ever
// hands it is always a complete set of frames, but the function still
// returns cleanly on a dangling partial frame (ignoring it) rather than
// erroring, so a future transport that delivers partial batches (e.g. a
// long-poll transport) is not penalized for it.
func (p jsonHubProtocol) ParseMessages(data []byte, binder Binder) ([]HubMessage, error) {
	var out []HubMessage
	frames := bytes.Split(data, []byte{recordSeparator})
	// The chunk after the last separator is empty for a complete batch; if it
	// is not, it is a dangling partial frame and is skipped.
	frames = frames[:len(frames)-1]
	for _, frame := range frames {
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		msg, err := p.parseOne(frame, binder)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (p jsonHubProtocol) parseOne(frame []byte, binder Binder) (HubMessage, error) {
	var env wireEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, HubMessageError(fmt.Sprintf("unable to unmarshal frame %q: %s", string(frame), err.Error()))
	}

	switch env.Type {
	case msgTypeInvocation:
		args, err := bindArguments(binder.ParamTypesFor(env.Target), env.Arguments)
		if err != nil {
			return nil, err
		}
		return &InvocationMessage{InvocationID: env.InvocationID, Target: env.Target, Arguments: args}, nil
	case msgTypeStreamInvocation:
		args, err := bindArguments(binder.ParamTypesFor(env.Target), env.Arguments)
		if err != nil {
			return nil, err
		}
		return &StreamInvocationMessage{InvocationID: env.InvocationID, Target: env.Target, Arguments: args}, nil
	case msgTypeStreamItem:
		item, err := bindValue(binder.ResultTypeFor(env.InvocationID), env.Item)
		if err != nil {
			return nil, err
		}
		return &StreamItemMessage{InvocationID: env.InvocationID, Item: item}, nil
	case msgTypeCompletion:
		cm := &CompletionMessage{InvocationID: env.InvocationID, Error: env.Error}
		if len(env.Result) > 0 && env.Error == "" {
			item, err := bindValue(binder.ResultTypeFor(env.InvocationID), env.Result)
			if err != nil {
				return nil, err
			}
			cm.HasResult = true
			cm.Result = item
		}
		return cm, nil
	case msgTypeCancelInvocation:
		return &CancelInvocationMessage{InvocationID: env.InvocationID}, nil
	case msgTypePing:
		return &PingMessage{}, nil
	case msgTypeClose:
		// A Close frame is a transport-level shutdown signal, not something
		// this codec resolves; the transport's own Closed callback drives
		// shutdown. Returning nil here means "nothing to dispatch".
		return nil, nil
	default:
		return nil, fmt.Errorf("hubconn: unknown message type %d: %w", env.Type, ErrProtocolViolation)
	}
}

// bindArguments unmarshals each raw argument into the corresponding declared
// paramType. When paramTypes is shorter than args (or nil), the remaining
// arguments are left as json.RawMessage for the handler to deal with.
func bindArguments(paramTypes []reflect.Type, raw []json.RawMessage) ([]interface{}, error) {
	out := make([]interface{}, len(raw))
	for i, r := range raw {
		var t reflect.Type
		if i < len(paramTypes) {
			t = paramTypes[i]
		}
		v, err := bindValue(t, r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// bindValue unmarshals raw into a fresh value of type t. A nil t (unknown
// declared type — "discard", per spec §4.4) leaves the value as
// json.RawMessage.
func bindValue(t reflect.Type, raw json.RawMessage) (interface{}, error) {
	if t == nil || len(raw) == 0 {
		return raw, nil
	}
	dst := reflect.New(t)
	if err := json.Unmarshal(raw, dst.Interface()); err != nil {
		return nil, HubMessageError(fmt.Sprintf("unable to unmarshal %q into %s: %s", string(raw), t, err.Error()))
	}
	return dst.Elem().Interface(), nil
}
