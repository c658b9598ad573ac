package hubconn

import (
	"reflect"
	"sync"
)

// handlerEntry is one registered callback for a method name: its declared
// parameter types (used by the Binder to tell the Protocol what to unmarshal
// arguments into), the callback itself, and an opaque user-state value handed
// back on every invocation.
type handlerEntry struct {
	paramTypes []reflect.Type
	callback   func(args []interface{}, state interface{})
	state      interface{}
}

// handlerList backs every registration for one method name. It is reified as
// its own value (rather than a plain slice living in the registry's map) so a
// Subscription can keep referencing it after the registry would otherwise
// have dropped the method's key — list identity must outlive any one
// registration (spec §3 HandlerRegistry invariant a).
type handlerList struct {
	mu       sync.Mutex
	handlers []*handlerEntry
}

func (l *handlerList) append(e *handlerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, e)
}

func (l *handlerList) remove(e *handlerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, h := range l.handlers {
		if h == e {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return
		}
	}
}

func (l *handlerList) snapshot() []*handlerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*handlerEntry, len(l.handlers))
	copy(out, l.handlers)
	return out
}

// HandlerRegistry maps method name to the list of handlers registered for it.
// Registration is concurrency-safe across methods (guarded by the registry's
// own lock for map access) and within a method (guarded by that method's
// handlerList lock).
//
// Known limitation (spec §9): when binding an inbound Invocation's arguments,
// the Binder consults only the *first* registered handler's parameter types.
// This is the documented behavior, not a bug — no type-merging logic across
// handlers for the same method is attempted.
type HandlerRegistry struct {
	mu    sync.Mutex
	lists map[string]*handlerList
}

func newHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{lists: make(map[string]*handlerList)}
}

func (r *HandlerRegistry) listFor(method string) *handlerList {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[method]
	if !ok {
		l = &handlerList{}
		r.lists[method] = l
	}
	return l
}

// register adds a handler for method and returns a Subscription whose
// Unsubscribe removes exactly this entry.
func (r *HandlerRegistry) register(method string, paramTypes []reflect.Type, callback func([]interface{}, interface{}), state interface{}) *Subscription {
	list := r.listFor(method)
	entry := &handlerEntry{paramTypes: paramTypes, callback: callback, state: state}
	list.append(entry)
	return &Subscription{list: list, entry: entry}
}

// snapshot returns a copy of the handlers registered for method, suitable for
// dispatching outside of any lock.
func (r *HandlerRegistry) snapshot(method string) []*handlerEntry {
	r.mu.Lock()
	l, ok := r.lists[method]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.snapshot()
}

// paramTypesFor implements the Binder's method parameter lookup: the first
// registered handler's declared types, or nil if none are registered.
func (r *HandlerRegistry) paramTypesFor(method string) []reflect.Type {
	entries := r.snapshot(method)
	if len(entries) == 0 {
		return nil
	}
	return entries[0].paramTypes
}

// Subscription is the token returned by HubConnection.On. Calling Unsubscribe
// removes exactly the handler it was issued for; it is safe to call more than
// once.
type Subscription struct {
	mu    sync.Mutex
	list  *handlerList
	entry *handlerEntry
}

// Unsubscribe removes this subscription's handler from its method's list.
// It is a no-op if already unsubscribed.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.mu.Lock()
	list, entry := s.list, s.entry
	s.list = nil
	s.entry = nil
	s.mu.Unlock()

	if list == nil {
		return
	}
	list.remove(entry)
}
