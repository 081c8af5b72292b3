// Package poller tracks the backend's batch processing job until it reaches
// a terminal status.
//
// State machine:
//
//	Idle → Polling → Completed | Errored | TimedOut
//
// Each tick fetches the current status and decides termination from that
// freshly fetched value. A run is identified by a sequence number; a tick
// only takes effect while its run is still the current Polling run, so
// nothing fires after Stop or after a newer Start.
package poller

import (
	"context"
	"sync"
	"time"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"

	"github.com/sirupsen/logrus"
)

// State is the poller's lifecycle state.
type State string

const (
	Idle      State = "idle"
	Polling   State = "polling"
	Completed State = "completed"
	Errored   State = "errored"
	TimedOut  State = "timed_out"
)

// FetchFunc reads the current processing status.
type FetchFunc func(ctx context.Context) (domain.ProcessingStatus, error)

// Handlers receive the poller's events. All fields are optional.
//
// OnStatus is called with every successfully fetched status, including the
// terminal one. OnTerminal is called exactly once per run, after OnStatus,
// when a terminal status is observed. OnError is called for fetch failures
// (polling continues) and with ErrPollTimeout when the safety timeout ends
// the run.
type Handlers struct {
	OnStatus   func(domain.ProcessingStatus)
	OnTerminal func(domain.ProcessingStatus)
	OnError    func(error)
}

// Options configures a Poller.
type Options struct {
	// Interval between ticks.
	Interval time.Duration
	// Timeout ends a run that has not reached a terminal status. Zero polls
	// until a terminal status is observed.
	Timeout time.Duration
	// Immediate fires the first tick as soon as the run starts instead of
	// after one interval.
	Immediate bool
}

// DefaultInterval is the cadence used when Options.Interval is unset.
const DefaultInterval = 2 * time.Second

// Poller drives a fixed-interval status loop.
type Poller struct {
	fetch    FetchFunc
	handlers Handlers
	opts     Options
	log      *logrus.Entry

	mu     sync.Mutex
	state  State
	run    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle poller.
func New(fetch FetchFunc, handlers Handlers, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		fetch:    fetch,
		handlers: handlers,
		opts:     opts,
		state:    Idle,
		log:      logrus.WithField("component", "poller"),
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins a new polling run, superseding any run in progress. The run
// ends when ctx is cancelled, on Stop, or on a terminal status.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.run++
	id := p.run
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.state = Polling
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.log.WithField("run", id).Infof("⏳ Polling processing status every %v", p.opts.Interval)
	go p.loop(runCtx, id, done)
}

// Stop cancels the current run. The poller returns to Idle unless the run
// already reached a final state.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.state == Polling {
		p.state = Idle
		p.log.WithField("run", p.run).Info("🛑 Polling stopped")
	}
	// A stopped run can never become current again.
	p.run++
}

// Wait blocks until the most recently started run has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) loop(ctx context.Context, id uint64, done chan struct{}) {
	defer close(done)

	first := p.opts.Interval
	if p.opts.Immediate {
		first = 0
	}
	timer := time.NewTimer(first)
	defer timer.Stop()

	var deadline <-chan time.Time
	if p.opts.Timeout > 0 {
		t := time.NewTimer(p.opts.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			if p.finish(id, TimedOut) {
				p.log.WithField("run", id).Warnf("⚠️  No terminal status after %v, giving up", p.opts.Timeout)
				p.emitError(apperr.ErrPollTimeout)
			}
			return
		case <-timer.C:
		}

		ticks++
		status, err := p.fetch(ctx)
		if ctx.Err() != nil || !p.current(id) {
			return
		}

		if err != nil {
			p.log.WithField("run", id).WithError(err).Warn("⚠️  Failed to fetch processing status")
			p.emitError(err)
			timer.Reset(p.opts.Interval)
			continue
		}

		p.log.WithFields(logrus.Fields{
			"run":       id,
			"tick":      ticks,
			"status":    status.Status,
			"processed": status.Processed,
			"total":     status.Total,
		}).Debug("Processing status")

		if !status.Terminal() {
			if p.handlers.OnStatus != nil {
				p.handlers.OnStatus(status)
			}
			timer.Reset(p.opts.Interval)
			continue
		}

		final := Completed
		if status.Status == domain.JobError {
			final = Errored
		}
		if !p.finish(id, final) {
			return
		}
		p.log.WithField("run", id).Infof("✅ Processing reached %q after %d polls", status.Status, ticks)
		if p.handlers.OnStatus != nil {
			p.handlers.OnStatus(status)
		}
		if p.handlers.OnTerminal != nil {
			p.handlers.OnTerminal(status)
		}
		return
	}
}

// current reports whether run id is still the active Polling run.
func (p *Poller) current(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run == id && p.state == Polling
}

// finish moves run id out of Polling. It returns false when the run was
// already superseded or stopped.
func (p *Poller) finish(id uint64, final State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != id || p.state != Polling {
		return false
	}
	p.state = final
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return true
}

func (p *Poller) emitError(err error) {
	if p.handlers.OnError != nil {
		p.handlers.OnError(err)
	}
}
