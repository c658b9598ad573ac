package hubconn

import "log"

// Logger is the minimal sink HubConnection uses for the "log and drop" /
// "log and swallow" cases spec §7 describes (bad parse batches, handler
// panics, Closed-subscriber panics, unknown-method dispatch). The teacher
// itself never reaches for a logging framework — it pushes typed errors onto
// an errChan instead — so this stays a one-method stdlib-backed interface
// rather than adopting a third-party logging library no pack example uses
// for this role.
type Logger interface {
	Logf(format string, args ...interface{})
}

// noopLogger discards everything; it is the default when no Logger is
// configured.
type noopLogger struct{}

func (noopLogger) Logf(string, ...interface{}) {}

// stdLogger adapts the standard library's *log.Logger to the Logger
// interface.
type stdLogger struct {
	*log.Logger
}

// NewStdLogger wraps l as a Logger.
func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

func (s stdLogger) Logf(format string, args ...interface{}) {
	s.Logger.Printf(format, args...)
}
