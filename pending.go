package hubconn

import "sync"

// pendingCallTable maps invocation id -> invocationRequest. It also owns the
// session-scoped "active" signal (spec §4.1/§9): insert checks it under the
// same lock that shutdown uses to flip it off and clear the table, so no entry
// can be added after shutdown has begun (spec §3 PendingCallTable invariant b)
// and lookups made after shutdown find nothing.
type pendingCallTable struct {
	mu      sync.Mutex
	entries map[string]*invocationRequest
	active  bool
}

func newPendingCallTable() *pendingCallTable {
	return &pendingCallTable{entries: make(map[string]*invocationRequest)}
}

// reset (re)activates the table for a fresh session, as done at the start of
// HubConnection.Start. Any entries left over from a prior session (there
// should be none, since shutdown clears the table) are discarded.
func (t *pendingCallTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.entries = make(map[string]*invocationRequest)
}

// insert adds req under its id. It fails with ErrConnectionTerminated if the
// table is not active (shutdown has begun or Start was never called) and with
// ErrDuplicateInvocationId if the id is already tracked.
func (t *pendingCallTable) insert(req *invocationRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrConnectionTerminated
	}
	if _, exists := t.entries[req.id]; exists {
		return ErrDuplicateInvocationId
	}
	t.entries[req.id] = req
	return nil
}

// remove removes and returns the entry for id, if any.
func (t *pendingCallTable) remove(id string) (*invocationRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return req, ok
}

// get looks up the entry for id without removing it (used for StreamItem
// dispatch, which must not remove the entry until a terminal Completion
// arrives).
func (t *pendingCallTable) get(id string) (*invocationRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.entries[id]
	return req, ok
}

func (t *pendingCallTable) isActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// shutdown cancels the active signal and fails every outstanding entry with
// err (nil for a clean shutdown), then clears the table — all under one
// critical section, per spec §4.1 step 1.
func (t *pendingCallTable) shutdown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	for _, req := range t.entries {
		req.complete(nil, err)
	}
	t.entries = make(map[string]*invocationRequest)
}
