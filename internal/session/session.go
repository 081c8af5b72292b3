// Package session is the dashboard's data layer: it owns the canonical
// client-side state, issues backend reads, and keeps dependent result sets
// consistent with the current selection.
//
// Every completion handler commits under the session mutex, and only when
// the request that produced it is still the latest one for that resource.
// Responses that arrive after the selection moved on are dropped along with
// their errors.
package session

import (
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
	"msgdash/internal/filter"
	"msgdash/internal/paging"
	"msgdash/internal/poller"
	"msgdash/internal/stats"

	"github.com/sirupsen/logrus"
)

// API is the backend surface the session reads from.
type API interface {
	Summary(ctx context.Context) (domain.SummaryData, error)
	MessageTypeCounts(ctx context.Context) (domain.MessageTypeCounts, error)
	Customers(ctx context.Context, skip, limit int) (domain.CustomerPage, error)
	CustomerSummary(ctx context.Context, customerID string) (domain.CustomerSummary, error)
	CustomerTransactions(ctx context.Context, customerID string, skip, limit int, messageType string) (domain.TransactionPage, error)
	ProcessingStatus(ctx context.Context) (domain.ProcessingStatus, error)
	ResetProcessingStatus(ctx context.Context) (string, error)
	MessagesByType(ctx context.Context, messageType string) ([]domain.TypedMessage, error)
	UploadFile(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error)
	ProcessPath(ctx context.Context, path string) (domain.UploadResult, error)
}

// Options configures a Session.
type Options struct {
	CustomersPageSize    int
	TransactionsPageSize int

	PollInterval  time.Duration
	PollTimeout   time.Duration
	PollImmediate bool

	// RequireJSON rejects uploads and server paths without a .json suffix.
	RequireJSON bool

	// OnRefresh is called after every full refresh with its first error.
	OnRefresh func(err error)
	// OnJobFinished is called once per processing job that reaches a
	// terminal status, after the dashboard has been refreshed.
	OnJobFinished func(status domain.ProcessingStatus)

	// Now overrides the notification clock (useful for testing).
	Now func() time.Time
}

// Loading reports which fetches are in flight.
type Loading struct {
	Summary         bool `json:"summary"`
	Customers       bool `json:"customers"`
	CustomerSummary bool `json:"customer_summary"`
	Transactions    bool `json:"transactions"`
	Messages        bool `json:"messages"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Summary    domain.SummaryData `json:"summary"`
	TypeCounts map[string]int     `json:"message_type_counts"`
	Categories []stats.Category   `json:"categories"`

	Customers     []domain.Customer `json:"customers"`
	CustomersPage paging.State      `json:"customers_page"`

	SelectedCustomer  string                  `json:"selected_customer_id"`
	CustomerSummary   *domain.CustomerSummary `json:"customer_summary"`
	Transactions      []domain.Transaction    `json:"transactions"`
	TransactionsPage  paging.State            `json:"transactions_page"`
	TransactionFilter string                  `json:"transaction_filter"`

	Messages filter.View `json:"messages"`

	Processing   domain.ProcessingStatus `json:"processing_status"`
	Polling      poller.State            `json:"polling"`
	Notification *domain.Notification    `json:"notification"`
	Loading      Loading                 `json:"loading"`
}

// Session holds the dashboard state for one viewer.
type Session struct {
	api      API
	opts     Options
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	poller   *poller.Poller
	messages *filter.Cache

	mu     sync.Mutex
	closed bool

	summary     domain.SummaryData
	typeCounts  map[string]int
	categories  stats.Totals
	summarySeq  uint64
	summaryBusy bool

	customers     []domain.Customer
	customersPage paging.State
	customersSeq  uint64
	customersBusy bool

	selected           string
	selection          uint64
	customerSummary    *domain.CustomerSummary
	customerSummarySeq uint64
	customerBusy       bool

	transactions []domain.Transaction
	txPage       paging.State
	txFilter     string
	txSeq        uint64
	txBusy       bool

	processing domain.ProcessingStatus
	statusSeq  uint64

	notification *domain.Notification
}

// New creates an idle session. Call Init to load the first view and Close
// to release it.
func New(api API, opts Options) *Session {
	if opts.CustomersPageSize <= 0 {
		opts.CustomersPageSize = 10
	}
	if opts.TransactionsPageSize <= 0 {
		opts.TransactionsPageSize = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		api:           api,
		opts:          opts,
		log:           logrus.WithField("component", "session"),
		ctx:           ctx,
		cancel:        cancel,
		typeCounts:    map[string]int{},
		categories:    stats.Empty(),
		customersPage: paging.New(opts.CustomersPageSize),
		txPage:        paging.New(opts.TransactionsPageSize),
		processing:    domain.IdleStatus(),
	}
	s.messages = filter.New(api.MessagesByType)
	s.poller = poller.New(api.ProcessingStatus, poller.Handlers{
		OnStatus:   s.commitPolledStatus,
		OnTerminal: s.jobFinished,
		OnError:    s.pollFailed,
	}, poller.Options{
		Interval:  opts.PollInterval,
		Timeout:   opts.PollTimeout,
		Immediate: opts.PollImmediate,
	})
	return s
}

// Close cancels in-flight fetches and stops polling. Late completions are
// ignored afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.poller.Stop()
	s.log.Info("🛑 Session closed")
}

// PollerState returns the processing poller's state.
func (s *Session) PollerState() poller.State {
	return s.poller.State()
}

// WaitPolling blocks until the current polling run, including its terminal
// refresh, has exited.
func (s *Session) WaitPolling() {
	s.poller.Wait()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	view := s.messages.View()
	polling := s.poller.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Summary:           s.summary,
		TypeCounts:        maps.Clone(s.typeCounts),
		Categories:        s.categories.Ordered(),
		Customers:         slices.Clone(s.customers),
		CustomersPage:     s.customersPage,
		SelectedCustomer:  s.selected,
		Transactions:      slices.Clone(s.transactions),
		TransactionsPage:  s.txPage,
		TransactionFilter: s.txFilter,
		Messages:          view,
		Processing:        s.processing,
		Polling:           polling,
		Loading: Loading{
			Summary:         s.summaryBusy,
			Customers:       s.customersBusy,
			CustomerSummary: s.customerBusy,
			Transactions:    s.txBusy,
			Messages:        view.Loading,
		},
	}
	snap.Summary.MessageTypeStats = slices.Clone(s.summary.MessageTypeStats)
	snap.Summary.RecentTransactions = slices.Clone(s.summary.RecentTransactions)
	if s.customerSummary != nil {
		cs := *s.customerSummary
		cs.MessageTypeStats = slices.Clone(cs.MessageTypeStats)
		snap.CustomerSummary = &cs
	}
	if s.notification != nil {
		n := *s.notification
		snap.Notification = &n
	}
	return snap
}

// Categories returns the category totals derived from the last summary.
func (s *Session) Categories() stats.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.categories)
}

// Notification returns the most recent notification, or nil.
func (s *Session) Notification() *domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notification == nil {
		return nil
	}
	n := *s.notification
	return &n
}

// opContext derives a context for one operation that is also cancelled when
// the session closes.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// beginLocked checks that the session is open. The caller holds s.mu.
func (s *Session) beginLocked() error {
	if s.closed {
		return apperr.ErrSessionClosed
	}
	return nil
}

// notifyLocked replaces the notification slot. The caller holds s.mu.
func (s *Session) notifyLocked(status, message string) {
	s.notification = &domain.Notification{
		Status:  status,
		Message: message,
		At:      s.opts.Now(),
	}
}

// failLocked records err as the current notification. The caller holds s.mu.
func (s *Session) failLocked(err error) {
	s.notifyLocked(domain.NotifyError, Describe(err))
}

// fail records err unless the session has been closed.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.failLocked(err)
	}
}

// Describe renders err the way it appears in the notification slot.
func Describe(err error) string {
	if apperr.IsNetworkFailure(err) {
		return "Failed to " + err.Error()
	}
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}

// hasJSONSuffix reports whether name looks like a JSON file.
func hasJSONSuffix(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}
