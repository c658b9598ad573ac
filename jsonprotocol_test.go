package hubconn

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinder lets jsonprotocol tests declare exactly the types a real
// HandlerRegistry/pendingCallTable would report, without standing up a full
// HubConnection.
type fakeBinder struct {
	paramTypes map[string][]reflect.Type
	resultType map[string]reflect.Type
}

func (b *fakeBinder) ParamTypesFor(method string) []reflect.Type { return b.paramTypes[method] }
func (b *fakeBinder) ResultTypeFor(id string) reflect.Type       { return b.resultType[id] }

func TestJSONHubProtocol_WriteThenParseInvocationRoundTrips(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{paramTypes: map[string][]reflect.Type{
		"Add": {reflect.TypeOf(0), reflect.TypeOf(0)},
	}}

	data, err := p.WriteMessage(&InvocationMessage{InvocationID: "1", Target: "Add", Arguments: []interface{}{2, 3}})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, binder)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	inv, ok := messages[0].(*InvocationMessage)
	require.True(t, ok)
	assert.Equal(t, "1", inv.InvocationID)
	assert.Equal(t, "Add", inv.Target)
	assert.Equal(t, []interface{}{2, 3}, inv.Arguments)
}

func TestJSONHubProtocol_ParseCompletionWithResult(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{resultType: map[string]reflect.Type{"1": reflect.TypeOf(0)}}

	data, err := p.WriteMessage(&CompletionMessage{InvocationID: "1", HasResult: true, Result: 5})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, binder)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	cm := messages[0].(*CompletionMessage)
	assert.True(t, cm.HasResult)
	assert.Equal(t, 5, cm.Result)
	assert.Empty(t, cm.Error)
}

func TestJSONHubProtocol_ParseCompletionWithError(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{}

	data, err := p.WriteMessage(&CompletionMessage{InvocationID: "1", Error: "no"})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, binder)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	cm := messages[0].(*CompletionMessage)
	assert.False(t, cm.HasResult)
	assert.Equal(t, "no", cm.Error)
}

func TestJSONHubProtocol_ParseStreamItem(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{resultType: map[string]reflect.Type{"1": reflect.TypeOf(0)}}

	data, err := p.WriteMessage(&StreamItemMessage{InvocationID: "1", Item: 10})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, binder)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	si := messages[0].(*StreamItemMessage)
	assert.Equal(t, 10, si.Item)
}

func TestJSONHubProtocol_ParseMultipleFramesInOneBatch(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{resultType: map[string]reflect.Type{"1": reflect.TypeOf(0)}}

	first, err := p.WriteMessage(&StreamItemMessage{InvocationID: "1", Item: 10})
	require.NoError(t, err)
	second, err := p.WriteMessage(&StreamItemMessage{InvocationID: "1", Item: 20})
	require.NoError(t, err)

	batch := append(append([]byte{}, first...), second...)
	messages, err := p.ParseMessages(batch, binder)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, 10, messages[0].(*StreamItemMessage).Item)
	assert.Equal(t, 20, messages[1].(*StreamItemMessage).Item)
}

func TestJSONHubProtocol_ParsePing(t *testing.T) {
	p := NewJSONHubProtocol()
	data, err := p.WriteMessage(&PingMessage{})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, &fakeBinder{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	_, ok := messages[0].(*PingMessage)
	assert.True(t, ok)
}

func TestJSONHubProtocol_UnknownTypeIsProtocolViolation(t *testing.T) {
	p := NewJSONHubProtocol()
	data := append([]byte(`{"type":99}`), recordSeparator)

	_, err := p.ParseMessages(data, &fakeBinder{})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestJSONHubProtocol_MalformedFrameIsHubMessageError(t *testing.T) {
	p := NewJSONHubProtocol()
	data := append([]byte(`not json`), recordSeparator)

	_, err := p.ParseMessages(data, &fakeBinder{})
	var hme HubMessageError
	assert.ErrorAs(t, err, &hme)
}

func TestJSONHubProtocol_ArgumentWithoutDeclaredTypeStaysRaw(t *testing.T) {
	p := NewJSONHubProtocol()
	binder := &fakeBinder{} // no paramTypes registered for "Notify"

	data, err := p.WriteMessage(&InvocationMessage{Target: "Notify", Arguments: []interface{}{"hi"}})
	require.NoError(t, err)

	messages, err := p.ParseMessages(data, binder)
	require.NoError(t, err)
	inv := messages[0].(*InvocationMessage)
	require.Len(t, inv.Arguments, 1)
	_, isRaw := inv.Arguments[0].(interface{ MarshalJSON() ([]byte, error) })
	assert.True(t, isRaw, "expected json.RawMessage fallback when no param type is declared")
}
