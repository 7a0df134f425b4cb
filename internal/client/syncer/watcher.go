package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// Mode is the connectivity state shown to the user.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Pinger probes the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher pings the server periodically and remembers whether it answered.
type Watcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
	online   atomic.Bool
	onOnline func()
}

func NewWatcher(p Pinger, interval time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{
		pinger:   p,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger.With("module", "watcher"),
	}
}

// OnOnline registers a callback for offline to online transitions. It must
// be set before Run.
func (w *Watcher) OnOnline(fn func()) { w.onOnline = fn }

func (w *Watcher) Online() bool { return w.online.Load() }

func (w *Watcher) Mode() Mode {
	if w.Online() {
		return ModeOnline
	}
	return ModeOffline
}

// Check pings once and records the outcome.
func (w *Watcher) Check(ctx context.Context) bool {
	if w.pinger == nil {
		w.online.Store(false)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(ctx)
	cancel()

	up := err == nil
	was := w.online.Swap(up)
	if up != was {
		if up {
			w.logger.Info(ctx, "Switched to online mode")
			if w.onOnline != nil {
				w.onOnline()
			}
		} else {
			w.logger.Info(ctx, "Switched to offline mode", "error", err)
		}
	}
	return up
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
