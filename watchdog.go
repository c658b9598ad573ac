package hubconn

import (
	"sync"
	"time"
)

// watchdog is the server-idle timer described in spec §3/§4.1. It is "needed"
// only when the active transport has no inherent keep-alive of its own; when
// not needed it stays idle and rearm is a no-op. Rearming after stop is
// absorbed silently, which covers the shutdown race spec §4.1 calls out.
type watchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	needed  bool
	stopped bool
}

func newWatchdog() *watchdog {
	return &watchdog{stopped: true}
}

// reset prepares the watchdog for a fresh session: not stopped, no timer
// pending, needed as reported by the just-started transport.
func (w *watchdog) reset(needed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.needed = needed
	w.stopped = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// rearm schedules onFire to run after timeout unless the watchdog is stopped
// or was never needed for this transport.
func (w *watchdog) rearm(timeout time.Duration, onFire func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || !w.needed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(timeout, onFire)
}

// stop disarms the watchdog for good; a subsequent rearm is a no-op until the
// next reset.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
