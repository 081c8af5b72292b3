// Package scheduler refreshes the dashboard on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher reloads everything the dashboard shows without interrupting
// job status polling.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs a Refresher on a standard five-field cron spec (or a
// descriptor such as "@every 10m"). Overlapping runs are skipped.
type Scheduler struct {
	ctx       context.Context
	cron      *cron.Cron
	entry     cron.EntryID
	refresher Refresher
	timeout   time.Duration
	onError   func(error)
	log       *logrus.Entry
}

// Options tunes a Scheduler.
type Options struct {
	// Timeout bounds one refresh (0 = no bound).
	Timeout time.Duration
	// OnError is called when a scheduled refresh fails.
	OnError func(error)
}

// New parses spec and registers the refresh job. Scheduled runs derive their
// context from ctx, so cancelling it aborts a refresh in flight. The
// scheduler does not run until Start is called.
func New(ctx context.Context, spec string, r Refresher, opts Options) (*Scheduler, error) {
	log := logrus.WithField("component", "scheduler")
	logger := cron.PrintfLogger(log)

	s := &Scheduler{
		ctx:       ctx,
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		refresher: r,
		timeout:   opts.Timeout,
		onError:   opts.OnError,
		log:       log,
	}

	id, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(s.ctx) })
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infof("✅ Background refresh scheduled, next run at %s", s.Next().Format("2006-01-02 15:04:05"))
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("⚠️  Scheduled refresh still running at shutdown")
	}
}

// Next returns the time of the next scheduled refresh, or the zero time if
// the scheduler has not been started.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow performs one refresh immediately.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.log.Info("⏰ Scheduled dashboard refresh")
	err := s.refresher.Refresh(ctx)
	if err != nil {
		s.log.WithError(err).Warn("⚠️  Scheduled refresh failed")
		if s.onError != nil {
			s.onError(err)
		}
		return err
	}
	s.log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("✅ Scheduled refresh complete")
	return nil
}
