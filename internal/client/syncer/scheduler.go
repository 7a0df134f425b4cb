package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// Runner runs one sync round.
type Runner interface {
	Run(ctx context.Context, force bool) Result
}

// Scheduler runs rounds every interval and whenever Trigger is called.
// Start on a running scheduler restarts it; Stop is safe to call twice.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logging.Logger
	onResult func(Result)

	trigger chan bool

	// lifecycle serializes Start and Stop; mu guards the fields below.
	lifecycle sync.Mutex
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(r Runner, interval time.Duration, logger logging.Logger) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		logger:   logger.With("module", "scheduler"),
		trigger:  make(chan bool, 1),
	}
}

// OnResult registers a callback invoked after every scheduled round. It
// must be set before Start.
func (s *Scheduler) OnResult(fn func(Result)) { s.onResult = fn }

func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go s.loop(ctx, done)
}

func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stop()
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Trigger asks for a round as soon as possible. Triggers that arrive while
// one is already queued are merged; a forced request wins.
func (s *Scheduler) Trigger() { s.request(false) }

// TriggerForce asks for a round that first resets every watermark.
func (s *Scheduler) TriggerForce() { s.request(true) }

func (s *Scheduler) request(force bool) {
	select {
	case s.trigger <- force:
	default:
		if force {
			select {
			case <-s.trigger:
			default:
			}
			select {
			case s.trigger <- true:
			default:
			}
		}
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.round(ctx, false)
		case force := <-s.trigger:
			s.round(ctx, force)
		}
	}
}

func (s *Scheduler) round(ctx context.Context, force bool) {
	res := s.runner.Run(ctx, force)
	if ctx.Err() != nil {
		// Stopped mid-round.
		return
	}
	if res.Err != nil {
		s.logger.Debug(ctx, "scheduled round failed", "error", res.Err)
	}
	if s.onResult != nil {
		s.onResult(res)
	}
}
