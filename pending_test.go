package hubconn

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCallTable_InsertRejectedBeforeReset(t *testing.T) {
	tbl := newPendingCallTable()
	req := newUnaryRequest("1", reflect.TypeOf(0))

	err := tbl.insert(req)
	assert.ErrorIs(t, err, ErrConnectionTerminated)
}

func TestPendingCallTable_InsertGetRemove(t *testing.T) {
	tbl := newPendingCallTable()
	tbl.reset()

	req := newUnaryRequest("1", reflect.TypeOf(0))
	require.NoError(t, tbl.insert(req))

	got, ok := tbl.get("1")
	assert.True(t, ok)
	assert.Same(t, req, got)

	removed, ok := tbl.remove("1")
	assert.True(t, ok)
	assert.Same(t, req, removed)

	_, ok = tbl.get("1")
	assert.False(t, ok)
}

func TestPendingCallTable_DuplicateIDRejected(t *testing.T) {
	tbl := newPendingCallTable()
	tbl.reset()

	first := newUnaryRequest("1", reflect.TypeOf(0))
	require.NoError(t, tbl.insert(first))

	second := newUnaryRequest("1", reflect.TypeOf(0))
	err := tbl.insert(second)
	assert.ErrorIs(t, err, ErrDuplicateInvocationId)

	// the first entry is untouched.
	got, ok := tbl.get("1")
	assert.True(t, ok)
	assert.Same(t, first, got)
}

func TestPendingCallTable_ShutdownFailsAndClearsEntries(t *testing.T) {
	tbl := newPendingCallTable()
	tbl.reset()

	reqs := make([]*invocationRequest, 5)
	for i := range reqs {
		id := string(rune('1' + i))
		reqs[i] = newUnaryRequest(id, reflect.TypeOf(0))
		require.NoError(t, tbl.insert(reqs[i]))
	}

	terminating := errors.New("connection reset")
	tbl.shutdown(terminating)

	for _, req := range reqs {
		select {
		case <-req.done:
		default:
			t.Fatalf("request %s was not resolved by shutdown", req.id)
		}
		assert.ErrorIs(t, req.err, terminating)
	}

	assert.False(t, tbl.isActive())
	_, ok := tbl.get(reqs[0].id)
	assert.False(t, ok)

	// insert after shutdown is rejected.
	err := tbl.insert(newUnaryRequest("new", reflect.TypeOf(0)))
	assert.ErrorIs(t, err, ErrConnectionTerminated)
}

func TestPendingCallTable_ResetAfterShutdownReactivates(t *testing.T) {
	tbl := newPendingCallTable()
	tbl.reset()
	tbl.shutdown(nil)
	assert.False(t, tbl.isActive())

	tbl.reset()
	assert.True(t, tbl.isActive())

	req := newUnaryRequest("1", reflect.TypeOf(0))
	assert.NoError(t, tbl.insert(req))
}
