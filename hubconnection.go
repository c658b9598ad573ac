package hubconn

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// defaultServerTimeout matches the SignalR client default: abort the
// transport if 30 seconds pass with no inbound frame.
const defaultServerTimeout = 30 * time.Second

// defaultStreamBufferSize sizes the channel Stream hands back to its caller.
// It is only a smoothing buffer: request.go's pump goroutine, not this
// capacity, is what keeps a slow consumer from ever blocking or losing
// frames on the shared receive path.
const defaultStreamBufferSize = 16

// ConnectionFactory builds a fresh Connection for HubConnection.Start to use.
// Called once per Start call, never reused across sessions.
type ConnectionFactory func() (Connection, error)

// state is HubConnection's lifecycle, per spec §3: Unstarted -> Starting ->
// Running -> Stopping -> Stopped/Disposed.
type state int

const (
	stateUnstarted state = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
	stateDisposed
)

// HubConnection is the orchestrator described in spec §4.1: the lifecycle
// state machine, the single-writer send path, the demultiplexing receive
// path, and the shutdown fan-out that releases every outstanding invocation
// exactly once.
//
// Two locks are acquired in a fixed order to prevent deadlock:
// connMu (connection-lock) -> the pendingCallTable's own lock
// (pending-calls-lock). Never the reverse. Handler lists (registry.go) carry
// an independent lock that is never held together with either of these.
type HubConnection struct {
	factory  ConnectionFactory
	protocol Protocol
	logger   Logger
	ids      IDGenerator

	registry *HandlerRegistry
	pending  *pendingCallTable
	watchdog *watchdog
	binder   Binder

	timeoutMu     sync.RWMutex
	serverTimeout time.Duration

	// connMu is the connection-lock: it serializes lifecycle transitions and
	// every outbound transmission.
	connMu   sync.Mutex
	st       state
	disposed bool
	conn     Connection

	shutdownMu   sync.Mutex
	shutdownDone bool

	closedMu       sync.Mutex
	closedHandlers []func(error)
}

// Option configures a HubConnection at construction time.
type Option func(*HubConnection)

// WithLogger overrides the default no-op Logger.
func WithLogger(l Logger) Option {
	return func(h *HubConnection) { h.logger = l }
}

// WithServerTimeout overrides the default 30-second idle watchdog window.
func WithServerTimeout(d time.Duration) Option {
	return func(h *HubConnection) { h.serverTimeout = d }
}

// WithIDGenerator overrides the default monotonic IDGenerator — primarily a
// test seam for exercising the duplicate-invocation-id guard.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *HubConnection) { h.ids = g }
}

// NewHubConnection builds a HubConnection that will use factory to create a
// transport on Start and protocol to serialize/parse frames on it.
func NewHubConnection(factory ConnectionFactory, protocol Protocol, opts ...Option) *HubConnection {
	h := &HubConnection{
		factory:       factory,
		protocol:      protocol,
		logger:        noopLogger{},
		ids:           newIDGenerator(),
		registry:      newHandlerRegistry(),
		pending:       newPendingCallTable(),
		watchdog:      newWatchdog(),
		st:            stateUnstarted,
		serverTimeout: defaultServerTimeout,
	}
	h.binder = &hubBinder{registry: h.registry, pending: h.pending}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// checkActive reports the precondition error (if any) for Send/Invoke/Stream:
// ErrDisposed once Dispose has been called, ErrNotStarted before the first
// successful Start, ErrConnectionTerminated once a prior session has ended,
// nil while a session is running.
func (h *HubConnection) checkActive() error {
	h.connMu.Lock()
	st, disposed := h.st, h.disposed
	h.connMu.Unlock()

	if disposed {
		return ErrDisposed
	}
	switch st {
	case stateUnstarted, stateStarting:
		return ErrNotStarted
	case stateRunning:
		return nil
	default:
		return ErrConnectionTerminated
	}
}

func (h *HubConnection) getServerTimeout() time.Duration {
	h.timeoutMu.RLock()
	defer h.timeoutMu.RUnlock()
	return h.serverTimeout
}

// SetServerTimeout changes the idle watchdog window. The new value takes
// effect at the next rearm, not retroactively on any timer already pending.
func (h *HubConnection) SetServerTimeout(d time.Duration) {
	h.timeoutMu.Lock()
	defer h.timeoutMu.Unlock()
	h.serverTimeout = d
}

// Start connects the transport, performs the one-time handshake, and arms
// the idle watchdog. It fails with ErrDisposed if Dispose has been called,
// and ErrAlreadyStarted if a transport is already connected.
//
// Per spec §9(a), receive/closed callbacks are registered on the
// freshly-created transport before it is started, and the transport is only
// assigned to h.conn after Start on it succeeds.
func (h *HubConnection) Start() error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.disposed {
		return ErrDisposed
	}
	if h.conn != nil {
		return ErrAlreadyStarted
	}

	h.st = stateStarting

	conn, err := h.factory()
	if err != nil {
		return err
	}
	conn.SetReceiveHandler(h.handleReceive)
	conn.SetClosedHandler(h.handleClosed)

	if err := conn.Start(h.protocol.TransferFormat()); err != nil {
		return err
	}

	h.conn = conn
	h.watchdog.reset(!conn.HasInherentKeepAlive())
	h.pending.reset()

	h.shutdownMu.Lock()
	h.shutdownDone = false
	h.shutdownMu.Unlock()

	handshake, err := writeHandshake(h.protocol.Name())
	if err != nil {
		return err
	}
	if err := conn.Send(context.Background(), handshake); err != nil {
		return err
	}

	h.watchdog.rearm(h.getServerTimeout(), h.onTimeout)
	h.st = stateRunning
	return nil
}

// Stop asks the transport to close cleanly. The transport's closed callback
// drives the actual shutdown fan-out.
func (h *HubConnection) Stop() error {
	h.connMu.Lock()
	if h.disposed {
		h.connMu.Unlock()
		return ErrDisposed
	}
	if h.conn == nil {
		h.connMu.Unlock()
		return ErrNotConnected
	}
	conn := h.conn
	h.st = stateStopping
	h.connMu.Unlock()

	return conn.Close()
}

// Dispose is idempotent: the first call tears down any active transport
// (which in turn drives shutdown); subsequent calls are no-ops.
func (h *HubConnection) Dispose() error {
	h.connMu.Lock()
	if h.disposed {
		h.connMu.Unlock()
		return nil
	}
	h.disposed = true
	h.st = stateDisposed
	conn := h.conn
	h.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	h.shutdown(nil)
	return nil
}

// On registers callback for method, to be invoked whenever the server sends
// an Invocation frame targeting it. paramTypes declares the Go types
// arguments should be unmarshaled into. Dropping the returned Subscription
// removes exactly this registration.
//
// Concurrent calls to On for the same method are safe; per spec §9(c), only
// the first registered handler's paramTypes are used by the Binder — this is
// a documented limitation, not a bug.
func (h *HubConnection) On(method string, paramTypes []reflect.Type, callback func(args []interface{}, state interface{}), state interface{}) *Subscription {
	return h.registry.register(method, paramTypes, callback, state)
}

// OnClosed registers a callback invoked exactly once when the session
// terminates, with the terminating error (nil for a clean Stop/Dispose).
// Panics from callback are logged and swallowed.
func (h *HubConnection) OnClosed(callback func(err error)) {
	h.closedMu.Lock()
	defer h.closedMu.Unlock()
	h.closedHandlers = append(h.closedHandlers, callback)
}

// transmit serializes and sends data under the connection lock, the single
// writer lock that makes every outbound frame an atomic, totally-ordered
// unit on the wire.
func (h *HubConnection) transmit(ctx context.Context, data []byte) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.disposed {
		return ErrDisposed
	}
	if h.conn == nil {
		return ErrNotConnected
	}
	return h.conn.Send(ctx, data)
}

// Send is a fire-and-forget call: no invocation id is allocated, nothing is
// tracked in the pending-call table, and the call returns as soon as the
// transport accepts the bytes.
func (h *HubConnection) Send(ctx context.Context, method string, args ...interface{}) error {
	if err := h.checkActive(); err != nil {
		return err
	}
	data, err := h.protocol.WriteMessage(&InvocationMessage{Target: method, Arguments: args})
	if err != nil {
		return err
	}
	return h.transmit(ctx, data)
}

// Invoke calls method and blocks for its single result, unmarshaled into
// resultType. Canceling ctx fails the call locally with ErrInvocationCanceled
// — it does not send a cancel frame; the server's eventual completion (if any)
// arrives after the entry is gone and is silently dropped.
func (h *HubConnection) Invoke(ctx context.Context, method string, resultType reflect.Type, args ...interface{}) (interface{}, error) {
	if err := h.checkActive(); err != nil {
		return nil, err
	}

	id := h.ids.Next()
	req := newUnaryRequest(id, resultType)
	if err := h.pending.insert(req); err != nil {
		return nil, err
	}

	data, err := h.protocol.WriteMessage(&InvocationMessage{InvocationID: id, Target: method, Arguments: args})
	if err != nil {
		h.pending.remove(id)
		return nil, err
	}
	if err := h.transmit(ctx, data); err != nil {
		h.pending.remove(id)
		return nil, err
	}

	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		h.pending.remove(id)
		req.complete(nil, ErrInvocationCanceled)
		return nil, ErrInvocationCanceled
	}
}

// Stream calls method and returns a channel of items and a channel that
// receives at most one terminal error (nil for a clean completion) before
// closing. Canceling ctx sends a best-effort cancel-invocation frame (its
// failure is swallowed), removes the pending entry, and completes the item
// channel locally.
func (h *HubConnection) Stream(ctx context.Context, method string, itemType reflect.Type, args ...interface{}) (<-chan interface{}, <-chan error) {
	items := make(chan interface{}, defaultStreamBufferSize)
	errs := make(chan error, 1)

	// failBeforeRequest is only for preconditions checked before an
	// invocationRequest (and its pump goroutine) exists: items can simply be
	// closed directly.
	failBeforeRequest := func(err error) (<-chan interface{}, <-chan error) {
		close(items)
		errs <- err
		close(errs)
		return items, errs
	}

	if err := h.checkActive(); err != nil {
		return failBeforeRequest(err)
	}

	id := h.ids.Next()
	req := newStreamRequest(id, itemType, items)

	// failAfterRequest completes req instead of closing items directly, so
	// the pump goroutine newStreamRequest started is told to drain and exit
	// rather than being left blocked forever.
	failAfterRequest := func(err error) (<-chan interface{}, <-chan error) {
		req.complete(nil, err)
		errs <- err
		close(errs)
		return items, errs
	}

	if err := h.pending.insert(req); err != nil {
		return failAfterRequest(err)
	}

	data, err := h.protocol.WriteMessage(&StreamInvocationMessage{InvocationID: id, Target: method, Arguments: args})
	if err != nil {
		h.pending.remove(id)
		return failAfterRequest(err)
	}
	if err := h.transmit(ctx, data); err != nil {
		h.pending.remove(id)
		return failAfterRequest(err)
	}

	go func() {
		select {
		case <-req.done:
			errs <- req.err
			close(errs)
		case <-ctx.Done():
			if req.cancelLocally() {
				if h.pending.isActive() {
					if cancelData, err := h.protocol.WriteMessage(&CancelInvocationMessage{InvocationID: id}); err == nil {
						_ = h.transmit(context.Background(), cancelData)
					}
				}
				h.pending.remove(id)
				req.complete(nil, nil)
			}
			errs <- req.err
			close(errs)
		}
	}()

	return items, errs
}

// handleReceive is the Connection's receive callback: it rearms the
// watchdog before doing anything else with the batch (spec §8 invariant 4),
// parses it, and dispatches each resulting message in order.
func (h *HubConnection) handleReceive(data []byte) {
	h.watchdog.rearm(h.getServerTimeout(), h.onTimeout)

	messages, err := h.protocol.ParseMessages(data, h.binder)
	if err != nil {
		if errors.Is(err, ErrProtocolViolation) {
			h.fatal(ErrProtocolViolation)
			return
		}
		h.logger.Logf("hubconn: dropping batch, parse error: %v", err)
		return
	}

	for _, m := range messages {
		h.dispatch(m)
	}
}

func (h *HubConnection) dispatch(m HubMessage) {
	switch msg := m.(type) {
	case *InvocationMessage:
		h.dispatchInvocation(msg)
	case *CompletionMessage:
		h.dispatchCompletion(msg)
	case *StreamItemMessage:
		h.dispatchStreamItem(msg)
	case *PingMessage:
		// no action beyond the watchdog rearm already done.
	default:
		h.fatal(ErrProtocolViolation)
	}
}

func (h *HubConnection) dispatchInvocation(msg *InvocationMessage) {
	handlers := h.registry.snapshot(msg.Target)
	if len(handlers) == 0 {
		h.logger.Logf("hubconn: no handler registered for %q, dropping", msg.Target)
		return
	}
	for _, entry := range handlers {
		h.invokeHandlerSafely(entry, msg.Arguments)
	}
}

func (h *HubConnection) invokeHandlerSafely(entry *handlerEntry, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Logf("hubconn: handler panic: %v", r)
		}
	}()
	entry.callback(args, entry.state)
}

func (h *HubConnection) dispatchCompletion(msg *CompletionMessage) {
	req, ok := h.pending.remove(msg.InvocationID)
	if !ok {
		h.logger.Logf("hubconn: completion for unknown invocation %q, dropping", msg.InvocationID)
		return
	}
	if req.isCancelled() {
		return
	}
	if msg.Error != "" {
		req.complete(nil, errors.New(msg.Error))
		return
	}
	if msg.HasResult {
		req.complete(msg.Result, nil)
		return
	}
	req.complete(nil, nil)
}

func (h *HubConnection) dispatchStreamItem(msg *StreamItemMessage) {
	req, ok := h.pending.get(msg.InvocationID)
	if !ok {
		return
	}
	if req.isCancelled() {
		return
	}
	if !req.streamItem(msg.Item) {
		h.logger.Logf("hubconn: stream item dropped for invocation %q, already completed or cancelled", msg.InvocationID)
	}
}

func (h *HubConnection) onTimeout() {
	h.connMu.Lock()
	conn := h.conn
	h.connMu.Unlock()
	if conn != nil {
		conn.Abort(ErrServerTimeout)
	}
	h.shutdown(ErrServerTimeout)
}

func (h *HubConnection) handleClosed(err error) {
	h.shutdown(err)
}

// fatal tears the session down immediately in response to an unrecoverable
// protocol error (spec §7: unknown inbound message kind is a hard fault).
func (h *HubConnection) fatal(err error) {
	h.connMu.Lock()
	conn := h.conn
	h.connMu.Unlock()
	if conn != nil {
		conn.Abort(err)
	}
	h.shutdown(err)
}

// shutdown runs the shutdown protocol (spec §4.1) at most once: cancel the
// active signal and fail every pending invocation under the pending-calls
// lock, then fire the Closed event exactly once outside of any lock.
func (h *HubConnection) shutdown(err error) {
	h.shutdownMu.Lock()
	if h.shutdownDone {
		h.shutdownMu.Unlock()
		return
	}
	h.shutdownDone = true
	h.shutdownMu.Unlock()

	h.watchdog.stop()
	h.pending.shutdown(err)

	h.connMu.Lock()
	h.conn = nil
	if h.st != stateDisposed {
		h.st = stateStopped
	}
	h.connMu.Unlock()

	h.fireClosed(err)
}

func (h *HubConnection) fireClosed(err error) {
	h.closedMu.Lock()
	handlers := make([]func(error), len(h.closedHandlers))
	copy(handlers, h.closedHandlers)
	h.closedMu.Unlock()

	for _, cb := range handlers {
		h.invokeClosedSafely(cb, err)
	}
}

func (h *HubConnection) invokeClosedSafely(cb func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Logf("hubconn: closed-subscriber panic: %v", r)
		}
	}()
	cb(err)
}

// hubBinder implements Binder over a HubConnection's registry and pending
// table, as spec §4.4 describes.
type hubBinder struct {
	registry *HandlerRegistry
	pending  *pendingCallTable
}

func (b *hubBinder) ParamTypesFor(method string) []reflect.Type {
	return b.registry.paramTypesFor(method)
}

func (b *hubBinder) ResultTypeFor(id string) reflect.Type {
	req, ok := b.pending.get(id)
	if !ok {
		return nil
	}
	return req.resultType
}
