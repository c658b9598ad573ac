package hubconn

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegistry_SnapshotEmpty(t *testing.T) {
	r := newHandlerRegistry()
	assert.Nil(t, r.snapshot("Notify"))
	assert.Nil(t, r.paramTypesFor("Notify"))
}

func TestHandlerRegistry_RegisterAndDispatch(t *testing.T) {
	r := newHandlerRegistry()

	var calls []string
	sub := r.register("Notify", []reflect.Type{reflect.TypeOf("")}, func(args []interface{}, state interface{}) {
		calls = append(calls, args[0].(string))
	}, nil)
	require.NotNil(t, sub)

	entries := r.snapshot("Notify")
	require.Len(t, entries, 1)
	entries[0].callback([]interface{}{"hi"}, entries[0].state)

	assert.Equal(t, []string{"hi"}, calls)
}

func TestHandlerRegistry_FirstHandlerParamTypesAreAuthoritative(t *testing.T) {
	r := newHandlerRegistry()

	firstTypes := []reflect.Type{reflect.TypeOf("")}
	secondTypes := []reflect.Type{reflect.TypeOf(0)}

	r.register("Notify", firstTypes, func([]interface{}, interface{}) {}, nil)
	r.register("Notify", secondTypes, func([]interface{}, interface{}) {}, nil)

	assert.Equal(t, firstTypes, r.paramTypesFor("Notify"))
}

func TestSubscription_UnsubscribeRemovesOnlyThatEntry(t *testing.T) {
	r := newHandlerRegistry()

	var firstCalled, secondCalled bool
	sub1 := r.register("Notify", nil, func([]interface{}, interface{}) { firstCalled = true }, nil)
	r.register("Notify", nil, func([]interface{}, interface{}) { secondCalled = true }, nil)

	sub1.Unsubscribe()

	entries := r.snapshot("Notify")
	require.Len(t, entries, 1)
	entries[0].callback(nil, nil)

	assert.False(t, firstCalled)
	assert.True(t, secondCalled)
}

func TestSubscription_DoubleUnsubscribeIsNoop(t *testing.T) {
	r := newHandlerRegistry()
	sub := r.register("Notify", nil, func([]interface{}, interface{}) {}, nil)

	sub.Unsubscribe()
	assert.NotPanics(t, func() { sub.Unsubscribe() })

	assert.Len(t, r.snapshot("Notify"), 0)
}

func TestHandlerRegistry_ConcurrentRegister(t *testing.T) {
	r := newHandlerRegistry()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r.register("Notify", nil, func([]interface{}, interface{}) {}, nil)
		}()
	}
	wg.Wait()

	assert.Len(t, r.snapshot("Notify"), n)
}
