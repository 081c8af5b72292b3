package session

import (
	"context"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
	"msgdash/internal/stats"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LoadSummary fetches the analytics summary and the per-type counts
// concurrently. Nothing is committed unless both succeed; the derived
// category totals are committed together with them.
func (s *Session) LoadSummary(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.summarySeq++
	seq := s.summarySeq
	s.summaryBusy = true
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	var (
		summary domain.SummaryData
		counts  domain.MessageTypeCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.api.Summary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.api.MessageTypeCounts(gctx)
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.summarySeq {
		return nil
	}
	s.summaryBusy = false
	if err != nil {
		s.log.WithError(err).Warn("⚠️  Failed to load summary")
		s.failLocked(err)
		return err
	}

	s.summary = summary
	s.typeCounts = counts.Counts
	if s.typeCounts == nil {
		s.typeCounts = map[string]int{}
	}
	s.categories = stats.Aggregate(summary.MessageTypeStats)
	s.log.WithFields(logrus.Fields{
		"customers":    summary.TotalCustomers,
		"transactions": summary.TotalTransactions,
		"types":        len(summary.MessageTypeStats),
	}).Debug("Summary loaded")
	return nil
}

// LoadCustomers fetches one page of the customer list.
func (s *Session) LoadCustomers(ctx context.Context, page int) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	want := s.customersPage.WithPage(page)
	s.customersSeq++
	seq := s.customersSeq
	s.customersBusy = true
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	result, err := s.api.Customers(ctx, want.Skip(), want.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.customersSeq {
		s.log.WithField("page", want.Page).Debug("Discarding stale customer page")
		return nil
	}
	s.customersBusy = false
	if err != nil {
		s.log.WithError(err).WithField("page", want.Page).Warn("⚠️  Failed to load customers")
		s.failLocked(err)
		return err
	}

	want.Total = result.Total
	s.customers = result.Customers
	s.customersPage = want
	return nil
}

// NextCustomersPage moves to the next customer page. It does nothing on the
// last page.
func (s *Session) NextCustomersPage(ctx context.Context) error {
	s.mu.Lock()
	state := s.customersPage
	s.mu.Unlock()
	if !state.CanNext() {
		return nil
	}
	return s.LoadCustomers(ctx, state.Next())
}

// PrevCustomersPage moves to the previous customer page. It does nothing on
// the first page.
func (s *Session) PrevCustomersPage(ctx context.Context) error {
	s.mu.Lock()
	state := s.customersPage
	s.mu.Unlock()
	if !state.CanPrev() {
		return nil
	}
	return s.LoadCustomers(ctx, state.Prev())
}

// SelectCustomer makes customerID the selected customer: the transaction
// page goes back to 1, the type filter is cleared, and the customer's
// summary and first transaction page are fetched concurrently. An empty id
// clears the selection without fetching.
func (s *Session) SelectCustomer(ctx context.Context, customerID string) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.selectLocked(customerID)
	gen := s.selection
	s.mu.Unlock()

	if customerID == "" {
		return nil
	}
	s.log.WithField("customer_id", customerID).Debug("Customer selected")

	var g errgroup.Group
	g.Go(func() error { return s.loadCustomerSummary(ctx, customerID, gen) })
	g.Go(func() error { return s.loadTransactions(ctx, customerID, gen, 1, "") })
	return g.Wait()
}

// selectLocked resets every per-customer field for a new selection and
// invalidates the requests still in flight for the old one.
func (s *Session) selectLocked(customerID string) {
	s.selection++
	s.selected = customerID
	s.customerSummary = nil
	s.transactions = nil
	s.txPage = s.txPage.Reset()
	s.txFilter = ""
	s.customerSummarySeq++
	s.txSeq++
	s.customerBusy = false
	s.txBusy = false
}

// LoadCustomerSummary fetches a customer's profile and per-type statistics.
// Loading a customer other than the selected one selects it.
func (s *Session) LoadCustomerSummary(ctx context.Context, customerID string) error {
	if customerID == "" {
		return apperr.NewUserInputError("no customer selected")
	}

	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.selected != customerID {
		s.selectLocked(customerID)
	}
	gen := s.selection
	s.mu.Unlock()

	return s.loadCustomerSummary(ctx, customerID, gen)
}

// loadCustomerSummary fetches the summary for selection generation gen. It
// does nothing once a newer selection has been made.
func (s *Session) loadCustomerSummary(ctx context.Context, customerID string, gen uint64) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if gen != s.selection {
		s.mu.Unlock()
		return nil
	}
	s.customerSummarySeq++
	seq := s.customerSummarySeq
	s.customerBusy = true
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	summary, err := s.api.CustomerSummary(ctx, customerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.customerSummarySeq || s.selected != customerID {
		return nil
	}
	s.customerBusy = false
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Warn("⚠️  Failed to load customer summary")
		s.failLocked(err)
		return err
	}
	s.customerSummary = &summary
	return nil
}

// LoadCustomerTransactions fetches one page of a customer's transactions,
// optionally restricted to one message type. The arguments become the
// current transaction query; loading a customer other than the selected one
// selects it.
func (s *Session) LoadCustomerTransactions(ctx context.Context, customerID string, page int, typeFilter string) error {
	if customerID == "" {
		return apperr.NewUserInputError("no customer selected")
	}

	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.selected != customerID {
		s.selectLocked(customerID)
	}
	gen := s.selection
	s.mu.Unlock()

	return s.loadTransactions(ctx, customerID, gen, page, typeFilter)
}

// loadTransactions fetches a transaction page for selection generation gen.
// It does nothing once a newer selection has been made.
func (s *Session) loadTransactions(ctx context.Context, customerID string, gen uint64, page int, typeFilter string) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if gen != s.selection {
		s.mu.Unlock()
		return nil
	}
	want := s.txPage.WithPage(page)
	s.txFilter = typeFilter
	s.txSeq++
	seq := s.txSeq
	s.txBusy = true
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	result, err := s.api.CustomerTransactions(ctx, customerID, want.Skip(), want.Limit, typeFilter)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.txSeq || s.selected != customerID {
		s.log.WithFields(logrus.Fields{
			"customer_id": customerID,
			"page":        want.Page,
		}).Debug("Discarding stale transaction page")
		return nil
	}
	s.txBusy = false
	if err != nil {
		s.log.WithError(err).WithField("customer_id", customerID).Warn("⚠️  Failed to load transactions")
		s.failLocked(err)
		return err
	}

	want.Total = result.Total
	s.transactions = result.Transactions
	s.txPage = want
	return nil
}

// NextTransactionsPage moves the selected customer's transactions to the
// next page. It does nothing without a selection or on the last page.
func (s *Session) NextTransactionsPage(ctx context.Context) error {
	s.mu.Lock()
	id, gen, state, typeFilter := s.selected, s.selection, s.txPage, s.txFilter
	s.mu.Unlock()
	if id == "" || !state.CanNext() {
		return nil
	}
	return s.loadTransactions(ctx, id, gen, state.Next(), typeFilter)
}

// PrevTransactionsPage moves the selected customer's transactions to the
// previous page. It does nothing without a selection or on the first page.
func (s *Session) PrevTransactionsPage(ctx context.Context) error {
	s.mu.Lock()
	id, gen, state, typeFilter := s.selected, s.selection, s.txPage, s.txFilter
	s.mu.Unlock()
	if id == "" || !state.CanPrev() {
		return nil
	}
	return s.loadTransactions(ctx, id, gen, state.Prev(), typeFilter)
}

// SetTransactionFilter restricts the selected customer's transactions to one
// message type, or to all types when messageType is empty, and reloads from
// page 1. Only the transaction list is refetched.
func (s *Session) SetTransactionFilter(ctx context.Context, messageType string) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	id, gen := s.selected, s.selection
	if id == "" {
		s.txFilter = messageType
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.loadTransactions(ctx, id, gen, 1, messageType)
}

// SelectMessageType changes the drill-down type. A new type is fetched once;
// an empty type clears the drill-down without a request.
func (s *Session) SelectMessageType(ctx context.Context, messageType string) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	if err := s.messages.Select(ctx, messageType); err != nil {
		s.log.WithError(err).WithField("message_type", messageType).Warn("⚠️  Failed to load messages")
		s.fail(err)
		return err
	}
	return nil
}

// LoadMessagesByType fetches the drill-down messages of messageType, making
// it the selected type. Unlike SelectMessageType it refetches when the type
// is already selected.
func (s *Session) LoadMessagesByType(ctx context.Context, messageType string) error {
	if messageType == "" || messageType != s.messages.Selected() {
		return s.SelectMessageType(ctx, messageType)
	}

	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	if err := s.messages.Reload(ctx); err != nil {
		s.log.WithError(err).WithField("message_type", messageType).Warn("⚠️  Failed to load messages")
		s.fail(err)
		return err
	}
	return nil
}

// loadProcessingStatus reads the job status once.
func (s *Session) loadProcessingStatus(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.statusSeq++
	seq := s.statusSeq
	s.mu.Unlock()

	ctx, done := s.opContext(ctx)
	defer done()

	status, err := s.api.ProcessingStatus(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.statusSeq {
		return nil
	}
	if err != nil {
		s.log.WithError(err).Warn("⚠️  Failed to load processing status")
		s.failLocked(err)
		return err
	}
	s.processing = status
	return nil
}
