package hubconn

import "context"

// Connection is the transport collaborator HubConnection drives. It decides
// how bytes move (WebSocket, HTTP long-poll, pipe) — the core only ever sees
// ordered byte frames. See websocket_connection.go for the concrete
// implementation this module ships.
//
// Contract:
//   - Start dials/opens the transport using the given TransferFormat.
//   - Send transmits one already-framed outbound message; HubConnection
//     holds its own writer lock around the call, so a Connection need not be
//     safe for concurrent Send calls from multiple goroutines, only against
//     a concurrent Close/Abort.
//   - SetReceiveHandler/SetClosedHandler register callbacks the Connection
//     must invoke from its own read loop. HubConnection registers both
//     before calling Start (see DESIGN.md's note on spec §9(a)).
//   - Close asks the transport to shut down cleanly; it must still invoke the
//     closed handler exactly once (with a nil error for a clean shutdown).
//   - Abort asks the transport to tear down immediately because of err; it
//     must invoke the closed handler exactly once, with err.
//   - HasInherentKeepAlive reports whether the transport already guarantees
//     periodic traffic on its own (e.g. a long-poll transport's poll cycle),
//     in which case HubConnection's idle watchdog does not need to run.
type Connection interface {
	Start(format TransferFormat) error
	Send(ctx context.Context, data []byte) error
	SetReceiveHandler(handler func(data []byte))
	SetClosedHandler(handler func(err error))
	Close() error
	Abort(err error)
	HasInherentKeepAlive() bool
}
