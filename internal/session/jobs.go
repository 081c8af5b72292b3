package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Init loads the first view: summary, the first customer page and the
// processing status. If a job is already running, polling resumes.
func (s *Session) Init(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.LoadSummary(ctx) })
	g.Go(func() error { return s.LoadCustomers(ctx, 1) })
	g.Go(func() error { return s.loadProcessingStatus(ctx) })
	err := g.Wait()

	s.mu.Lock()
	running := !s.closed && s.processing.Status == domain.JobProcessing
	s.mu.Unlock()
	if running {
		s.log.Info("⏳ A processing job is already running, resuming status polling")
		s.startPolling()
	}
	return err
}

// SubmitUpload sends a message file for processing. An accepted or
// successful upload starts status polling.
func (s *Session) SubmitUpload(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error) {
	switch {
	case strings.TrimSpace(filename) == "" || r == nil:
		return s.rejectInput(apperr.NewUserInputError("Please select a file first"))
	case s.opts.RequireJSON && !hasJSONSuffix(filename):
		return s.rejectInput(apperr.NewUserInputError("Please select a JSON file"))
	}

	return s.submit(ctx, "upload", filename, func(ctx context.Context) (domain.UploadResult, error) {
		return s.api.UploadFile(ctx, filename, r)
	})
}

// ProcessServerPath asks the backend to ingest a file already on the
// server. An accepted or successful request starts status polling.
func (s *Session) ProcessServerPath(ctx context.Context, path string) (domain.UploadResult, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return s.rejectInput(apperr.NewUserInputError("Please provide a file path on the server"))
	case s.opts.RequireJSON && !hasJSONSuffix(path):
		return s.rejectInput(apperr.NewUserInputError("Please provide a path to a JSON file"))
	}

	return s.submit(ctx, "process", path, func(ctx context.Context) (domain.UploadResult, error) {
		return s.api.ProcessPath(ctx, path)
	})
}

func (s *Session) rejectInput(err error) (domain.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginLocked(); err != nil {
		return domain.UploadResult{}, err
	}
	s.failLocked(err)
	return domain.UploadResult{Status: domain.UploadError, Message: err.Error()}, err
}

func (s *Session) submit(ctx context.Context, kind, name string, send func(context.Context) (domain.UploadResult, error)) (domain.UploadResult, error) {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return domain.UploadResult{}, err
	}
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"kind": kind, "file": name})

	ctx, done := s.opContext(ctx)
	defer done()

	result, err := send(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.UploadResult{}, apperr.ErrSessionClosed
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		log.WithError(err).Warn("⚠️  Submission failed")
		return domain.UploadResult{}, err
	}
	s.notifyLocked(string(result.Status), result.Message)
	if result.Status.StartsJob() {
		s.processing.Status = domain.JobProcessing
	}
	s.mu.Unlock()

	log.WithField("status", result.Status).Infof("📤 Submission answered: %s", result.Message)
	if result.Status.StartsJob() {
		s.startPolling()
	}
	return result, nil
}

// startPolling begins tracking the processing job on the session lifetime.
func (s *Session) startPolling() {
	s.poller.Start(s.ctx)
}

// commitPolledStatus stores each status the poller reads.
func (s *Session) commitPolledStatus(status domain.ProcessingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.statusSeq++
	s.processing = status
}

// jobFinished runs once per job that reaches a terminal status: it records
// the outcome, refreshes the dashboard, then reports to OnJobFinished.
func (s *Session) jobFinished(status domain.ProcessingStatus) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if status.Status == domain.JobError {
		s.failLocked(&apperr.TerminalJobError{
			Total:     status.Total,
			Processed: status.Processed,
			Succeeded: status.Succeeded,
			Failed:    status.Failed,
		})
	} else {
		s.notifyLocked(domain.NotifySuccess, fmt.Sprintf(
			"Processing completed: %d records processed (%d succeeded, %d failed)",
			status.Processed, status.Succeeded, status.Failed))
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"status":    status.Status,
		"succeeded": status.Succeeded,
		"failed":    status.Failed,
	}).Info("📬 Processing job finished, refreshing dashboard")

	_ = s.refreshAll(s.ctx)

	if s.opts.OnJobFinished != nil {
		s.opts.OnJobFinished(status)
	}
}

// pollFailed surfaces the safety timeout. Transient fetch errors are only
// logged by the poller.
func (s *Session) pollFailed(err error) {
	if errors.Is(err, apperr.ErrPollTimeout) {
		s.fail(err)
	}
}

// RefreshAll stops status polling and reloads everything the dashboard
// shows: summary, the current customer page, the processing status, and the
// selected customer and message type.
func (s *Session) RefreshAll(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.poller.Stop()
	return s.refreshAll(ctx)
}

// Refresh reloads the same data as RefreshAll but leaves status polling
// running, so a job in progress is still followed to its terminal status.
// Unattended callers such as a refresh schedule use it.
func (s *Session) Refresh(ctx context.Context) error {
	return s.refreshAll(ctx)
}

func (s *Session) refreshAll(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	page := s.customersPage.Page
	id, gen, txPage, typeFilter := s.selected, s.selection, s.txPage.Page, s.txFilter
	s.mu.Unlock()

	s.log.Debug("🔄 Refreshing dashboard")

	var g errgroup.Group
	g.Go(func() error { return s.LoadSummary(ctx) })
	g.Go(func() error { return s.LoadCustomers(ctx, page) })
	g.Go(func() error { return s.loadProcessingStatus(ctx) })
	if id != "" {
		g.Go(func() error { return s.loadCustomerSummary(ctx, id, gen) })
		g.Go(func() error { return s.loadTransactions(ctx, id, gen, txPage, typeFilter) })
	}
	if typ := s.messages.Selected(); typ != "" {
		g.Go(func() error { return s.LoadMessagesByType(ctx, typ) })
	}
	err := g.Wait()

	if err != nil {
		s.log.WithError(err).Warn("⚠️  Dashboard refresh incomplete")
	}
	if s.opts.OnRefresh != nil {
		s.opts.OnRefresh(err)
	}
	return err
}

// ResetProcessing stops polling and asks the backend to reset a stuck job
// status to idle.
func (s *Session) ResetProcessing(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.poller.Stop()

	ctx, done := s.opContext(ctx)
	defer done()

	message, err := s.api.ResetProcessingStatus(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.ErrSessionClosed
	}
	if err != nil {
		s.failLocked(err)
		return err
	}
	s.statusSeq++
	s.processing = domain.IdleStatus()
	if message == "" {
		message = "Processing status reset"
	}
	s.notifyLocked(domain.NotifySuccess, message)
	s.log.Info("♻️  Processing status reset")
	return nil
}
