package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
	"msgdash/internal/poller"
	"msgdash/internal/stats"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory backend. Hooks left nil return canned data.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	summary    domain.SummaryData
	summaryErr error
	countsErr  error

	customers       func(skip, limit int) (domain.CustomerPage, error)
	customerSummary func(id string) (domain.CustomerSummary, error)
	transactions    func(id string, skip, limit int, messageType string) (domain.TransactionPage, error)
	messages        func(messageType string) ([]domain.TypedMessage, error)

	statuses []domain.JobStatus
	upload   domain.UploadResult
	resetErr error

	lastUpload string
	lastTx     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls: map[string]int{},
		summary: domain.SummaryData{
			TotalCustomers:    2,
			TotalTransactions: 10,
			MessageTypeStats: []domain.MessageTypeStat{
				{MessageType: "SALARY_CREDIT", Count: 5, TotalAmount: domain.NewAmount(50000)},
				{MessageType: "FOO", Count: 2, TotalAmount: domain.NewAmount(100)},
				{MessageType: "FOO", Count: 3, TotalAmount: domain.NewAmount(50)},
			},
		},
		statuses: []domain.JobStatus{domain.JobIdle},
		upload:   domain.UploadResult{Status: domain.UploadAccepted, Message: "Processing started"},
	}
}

func (f *fakeAPI) record(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) Summary(ctx context.Context) (domain.SummaryData, error) {
	f.record("summary")
	return f.summary, f.summaryErr
}

func (f *fakeAPI) MessageTypeCounts(ctx context.Context) (domain.MessageTypeCounts, error) {
	f.record("counts")
	if f.countsErr != nil {
		return domain.MessageTypeCounts{}, f.countsErr
	}
	return domain.MessageTypeCounts{Counts: map[string]int{"SALARY_CREDIT": 5, "FOO": 5}}, nil
}

func (f *fakeAPI) Customers(ctx context.Context, skip, limit int) (domain.CustomerPage, error) {
	f.record("customers")
	if f.customers != nil {
		return f.customers(skip, limit)
	}
	return domain.CustomerPage{
		Customers: []domain.Customer{{CustomerID: "C1", Name: "Asha"}, {CustomerID: "C2", Name: "Ravi"}},
		Total:     25,
	}, nil
}

func (f *fakeAPI) CustomerSummary(ctx context.Context, id string) (domain.CustomerSummary, error) {
	f.record("customer_summary:" + id)
	if f.customerSummary != nil {
		return f.customerSummary(id)
	}
	return domain.CustomerSummary{Customer: domain.Customer{CustomerID: id}, TotalTransactions: 30}, nil
}

func (f *fakeAPI) CustomerTransactions(ctx context.Context, id string, skip, limit int, messageType string) (domain.TransactionPage, error) {
	f.record("transactions:" + id)
	f.mu.Lock()
	f.lastTx = []string{id, messageType}
	f.mu.Unlock()
	if f.transactions != nil {
		return f.transactions(id, skip, limit, messageType)
	}
	return domain.TransactionPage{
		Transactions: []domain.Transaction{{MessageType: "EMI_PAYMENT", Amount: domain.NewAmount(float64(skip))}},
		Total:        30,
	}, nil
}

func (f *fakeAPI) ProcessingStatus(ctx context.Context) (domain.ProcessingStatus, error) {
	n := f.record("status")
	i := min(n-1, len(f.statuses)-1)
	return domain.ProcessingStatus{Total: 3, Processed: i, Succeeded: i, Status: f.statuses[i]}, nil
}

func (f *fakeAPI) ResetProcessingStatus(ctx context.Context) (string, error) {
	f.record("reset")
	return "Processing status reset successfully", f.resetErr
}

func (f *fakeAPI) MessagesByType(ctx context.Context, messageType string) ([]domain.TypedMessage, error) {
	f.record("messages:" + messageType)
	if f.messages != nil {
		return f.messages(messageType)
	}
	return []domain.TypedMessage{{Message: "m", Details: map[string]any{"amount": 1.0}}}, nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error) {
	f.record("upload")
	f.mu.Lock()
	f.lastUpload = filename
	f.mu.Unlock()
	return f.upload, nil
}

func (f *fakeAPI) ProcessPath(ctx context.Context, path string) (domain.UploadResult, error) {
	f.record("process")
	return f.upload, nil
}

func newTestSession(t *testing.T, api *fakeAPI, opts Options) *Session {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	s := New(api, opts)
	t.Cleanup(s.Close)
	return s
}

func TestInitLoadsDashboard(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})

	require.NoError(t, s.Init(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Summary.TotalCustomers)
	assert.Equal(t, 5, snap.TypeCounts["SALARY_CREDIT"])
	assert.Len(t, snap.Customers, 2)
	assert.Equal(t, 25, snap.CustomersPage.Total)
	assert.Equal(t, 3, snap.CustomersPage.PageCount())
	assert.Equal(t, domain.JobIdle, snap.Processing.Status)
	assert.Equal(t, poller.Idle, snap.Polling)
	assert.Nil(t, snap.Notification)

	cats := s.Categories()
	assert.Equal(t, 5, cats[stats.Salary].Count)
	assert.True(t, cats[stats.Salary].Total.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 5, cats[stats.Other].Count)
	assert.True(t, cats[stats.Other].Total.Equal(decimal.NewFromInt(150)))
}

func TestInitResumesRunningJob(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []domain.JobStatus{domain.JobProcessing, domain.JobProcessing, domain.JobCompleted}
	var finished atomic.Int32
	s := newTestSession(t, api, Options{OnJobFinished: func(domain.ProcessingStatus) { finished.Add(1) }})

	require.NoError(t, s.Init(context.Background()))
	require.Eventually(t, func() bool { return finished.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, poller.Completed, s.PollerState())
}

func TestLoadSummaryCommitsAtomically(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	require.NoError(t, s.LoadSummary(context.Background()))

	api.summary.TotalCustomers = 99
	api.countsErr = apperr.NewStatusError("fetch message type counts", 500, "boom")

	err := s.LoadSummary(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsNetworkFailure(err))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Summary.TotalCustomers, "summary untouched when counts fail")
	require.NotNil(t, snap.Notification)
	assert.Equal(t, domain.NotifyError, snap.Notification.Status)
	assert.Equal(t, "Failed to fetch message type counts: HTTP 500: boom", snap.Notification.Message)
	assert.False(t, snap.Loading.Summary)
}

func TestSelectCustomerResetsAndFetchesOnce(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()

	require.NoError(t, s.SelectCustomer(ctx, "C1"))
	require.NoError(t, s.NextTransactionsPage(ctx))
	require.NoError(t, s.SetTransactionFilter(ctx, "EMI_PAYMENT"))
	require.NoError(t, s.NextTransactionsPage(ctx))
	before := s.Snapshot()
	require.Equal(t, 2, before.TransactionsPage.Page)
	require.Equal(t, "EMI_PAYMENT", before.TransactionFilter)

	require.NoError(t, s.SelectCustomer(ctx, "C2"))

	snap := s.Snapshot()
	assert.Equal(t, "C2", snap.SelectedCustomer)
	assert.Equal(t, 1, snap.TransactionsPage.Page)
	assert.Empty(t, snap.TransactionFilter)
	require.NotNil(t, snap.CustomerSummary)
	assert.Equal(t, "C2", snap.CustomerSummary.Customer.CustomerID)
	assert.Equal(t, 1, api.count("customer_summary:C2"))
	assert.Equal(t, 1, api.count("transactions:C2"))
	assert.Equal(t, []string{"C2", ""}, api.lastTx)
}

func TestSelectCustomerEmptyClears(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	require.NoError(t, s.SelectCustomer(context.Background(), "C1"))

	require.NoError(t, s.SelectCustomer(context.Background(), ""))
	snap := s.Snapshot()
	assert.Empty(t, snap.SelectedCustomer)
	assert.Nil(t, snap.CustomerSummary)
	assert.Empty(t, snap.Transactions)
	assert.Equal(t, 1, api.count("customer_summary:C1"))
}

func TestStaleCustomerPageDiscarded(t *testing.T) {
	api := newFakeAPI()
	started := make(chan struct{})
	release := make(chan struct{})
	api.customers = func(skip, limit int) (domain.CustomerPage, error) {
		if skip == 0 {
			close(started)
			<-release
			return domain.CustomerPage{Customers: []domain.Customer{{CustomerID: "page1"}}, Total: 25}, nil
		}
		return domain.CustomerPage{Customers: []domain.Customer{{CustomerID: "page2"}}, Total: 25}, nil
	}
	s := newTestSession(t, api, Options{})

	done := make(chan error, 1)
	go func() { done <- s.LoadCustomers(context.Background(), 1) }()
	<-started

	require.NoError(t, s.LoadCustomers(context.Background(), 2))
	close(release)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.CustomersPage.Page)
	require.Len(t, snap.Customers, 1)
	assert.Equal(t, "page2", snap.Customers[0].CustomerID)
	assert.False(t, snap.Loading.Customers)
}

func TestStaleTransactionPageDiscarded(t *testing.T) {
	api := newFakeAPI()
	var hold atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	api.transactions = func(id string, skip, limit int, messageType string) (domain.TransactionPage, error) {
		if skip == 0 && hold.Load() {
			close(started)
			<-release
			return domain.TransactionPage{Transactions: []domain.Transaction{{LoanReference: "page1"}}, Total: 30}, nil
		}
		return domain.TransactionPage{Transactions: []domain.Transaction{{LoanReference: "skip"}}, Total: 30}, nil
	}
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectCustomer(ctx, "C1"))

	hold.Store(true)
	done := make(chan error, 1)
	go func() { done <- s.LoadCustomerTransactions(ctx, "C1", 1, "") }()
	<-started

	require.NoError(t, s.NextTransactionsPage(ctx))
	close(release)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TransactionsPage.Page)
	assert.Equal(t, 30, snap.TransactionsPage.Total)
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, "skip", snap.Transactions[0].LoanReference)
	assert.False(t, snap.Loading.Transactions)
}

func TestStaleErrorDiscarded(t *testing.T) {
	api := newFakeAPI()
	started := make(chan struct{})
	release := make(chan struct{})
	api.transactions = func(id string, skip, limit int, messageType string) (domain.TransactionPage, error) {
		if id == "C1" {
			close(started)
			<-release
			return domain.TransactionPage{}, errors.New("late failure")
		}
		return domain.TransactionPage{Total: 1}, nil
	}
	s := newTestSession(t, api, Options{})

	done := make(chan error, 1)
	go func() { done <- s.LoadCustomerTransactions(context.Background(), "C1", 1, "") }()
	<-started

	require.NoError(t, s.SelectCustomer(context.Background(), "C2"))
	close(release)
	assert.NoError(t, <-done)
	assert.Nil(t, s.Notification())
	assert.Equal(t, "C2", s.Snapshot().SelectedCustomer)
}

func TestCustomerPaging(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadCustomers(ctx, 1))

	require.NoError(t, s.PrevCustomersPage(ctx))
	assert.Equal(t, 1, api.count("customers"), "prev on page 1 is a no-op")

	require.NoError(t, s.NextCustomersPage(ctx))
	require.NoError(t, s.NextCustomersPage(ctx))
	assert.Equal(t, 3, s.Snapshot().CustomersPage.Page)

	require.NoError(t, s.NextCustomersPage(ctx))
	assert.Equal(t, 3, api.count("customers"), "next on the last page is a no-op")

	require.NoError(t, s.PrevCustomersPage(ctx))
	assert.Equal(t, 2, s.Snapshot().CustomersPage.Page)
}

func TestFailedPageKeepsPriorState(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.LoadCustomers(ctx, 1))

	api.customers = func(skip, limit int) (domain.CustomerPage, error) {
		return domain.CustomerPage{}, apperr.NewNetworkError("fetch customers", errors.New("connection refused"))
	}
	require.Error(t, s.NextCustomersPage(ctx))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CustomersPage.Page)
	assert.Len(t, snap.Customers, 2)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, "Failed to fetch customers: connection refused", snap.Notification.Message)
}

func TestSetTransactionFilterRefetchesTransactionsOnly(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()
	require.NoError(t, s.SelectCustomer(ctx, "C1"))
	require.NoError(t, s.NextTransactionsPage(ctx))

	require.NoError(t, s.SetTransactionFilter(ctx, "SIP_INVESTMENT"))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.TransactionsPage.Page)
	assert.Equal(t, "SIP_INVESTMENT", snap.TransactionFilter)
	assert.Equal(t, []string{"C1", "SIP_INVESTMENT"}, api.lastTx)
	assert.Equal(t, 1, api.count("customer_summary:C1"))
	assert.Equal(t, 3, api.count("transactions:C1"))
}

func TestTransactionPagingWithoutSelection(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})

	require.NoError(t, s.NextTransactionsPage(context.Background()))
	require.NoError(t, s.SetTransactionFilter(context.Background(), "EMI_PAYMENT"))
	assert.Zero(t, api.count("transactions:"))

	err := s.LoadCustomerTransactions(context.Background(), "", 1, "")
	assert.True(t, apperr.IsUserInput(err))
}

func TestCustomerNotFound(t *testing.T) {
	api := newFakeAPI()
	api.customerSummary = func(id string) (domain.CustomerSummary, error) {
		return domain.CustomerSummary{}, apperr.NewNotFoundError("customer", id)
	}
	s := newTestSession(t, api, Options{})

	err := s.LoadCustomerSummary(context.Background(), "ghost")
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, `Customer "ghost" not found`, s.Notification().Message)
	assert.Equal(t, "ghost", s.Snapshot().SelectedCustomer)
}

func TestUploadPollsToCompletionAndRefreshesOnce(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []domain.JobStatus{domain.JobProcessing, domain.JobProcessing, domain.JobCompleted}

	var refreshes, finished atomic.Int32
	s := newTestSession(t, api, Options{
		OnRefresh:     func(error) { refreshes.Add(1) },
		OnJobFinished: func(domain.ProcessingStatus) { finished.Add(1) },
	})

	res, err := s.SubmitUpload(context.Background(), "sms.json", strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Equal(t, domain.UploadAccepted, res.Status)
	assert.Equal(t, domain.JobProcessing, s.Snapshot().Processing.Status)

	s.WaitPolling()

	assert.Equal(t, poller.Completed, s.PollerState())
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(1), finished.Load())
	assert.Equal(t, 1, api.count("summary"))
	// Three polls plus the status read of the refresh.
	assert.Equal(t, 4, api.count("status"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, api.count("status"), "no polling after completion")

	snap := s.Snapshot()
	assert.Equal(t, domain.JobCompleted, snap.Processing.Status)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, domain.NotifySuccess, snap.Notification.Status)
	assert.Contains(t, snap.Notification.Message, "Processing completed")
}

func TestTerminalErrorStillRefreshes(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []domain.JobStatus{domain.JobProcessing, domain.JobError}
	var refreshes atomic.Int32
	s := newTestSession(t, api, Options{OnRefresh: func(error) { refreshes.Add(1) }})

	_, err := s.ProcessServerPath(context.Background(), "/data/sms.json")
	require.NoError(t, err)
	s.WaitPolling()

	assert.Equal(t, poller.Errored, s.PollerState())
	assert.Equal(t, int32(1), refreshes.Load())
	n := s.Notification()
	require.NotNil(t, n)
	assert.Equal(t, domain.NotifyError, n.Status)
	assert.Contains(t, n.Message, "Processing failed")
}

func TestUploadInputValidation(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{RequireJSON: true})
	ctx := context.Background()

	_, err := s.SubmitUpload(ctx, "sms.csv", strings.NewReader("a,b"))
	assert.True(t, apperr.IsUserInput(err))
	assert.Equal(t, "Please select a JSON file", s.Notification().Message)

	_, err = s.SubmitUpload(ctx, "", strings.NewReader(""))
	assert.True(t, apperr.IsUserInput(err))

	_, err = s.ProcessServerPath(ctx, "   ")
	assert.True(t, apperr.IsUserInput(err))

	_, err = s.ProcessServerPath(ctx, "/data/sms.txt")
	assert.True(t, apperr.IsUserInput(err))

	assert.Zero(t, api.count("upload"))
	assert.Zero(t, api.count("process"))
	assert.Equal(t, poller.Idle, s.PollerState())
}

func TestUploadErrorVerdictDoesNotPoll(t *testing.T) {
	api := newFakeAPI()
	api.upload = domain.UploadResult{Status: domain.UploadError, Message: "Invalid JSON"}
	s := newTestSession(t, api, Options{})

	res, err := s.SubmitUpload(context.Background(), "SMS.JSON", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, domain.UploadError, res.Status)
	assert.Equal(t, poller.Idle, s.PollerState())
	assert.Equal(t, "Invalid JSON", s.Notification().Message)
	assert.Equal(t, "SMS.JSON", api.lastUpload)
}

func TestRefreshAllStopsPolling(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []domain.JobStatus{domain.JobProcessing}
	var refreshes atomic.Int32
	s := newTestSession(t, api, Options{OnRefresh: func(error) { refreshes.Add(1) }})
	ctx := context.Background()

	require.NoError(t, s.SelectCustomer(ctx, "C1"))
	require.NoError(t, s.SelectMessageType(ctx, "EMI_PAYMENT"))
	_, err := s.SubmitUpload(ctx, "sms.json", strings.NewReader("[]"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return api.count("status") >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.RefreshAll(ctx))

	assert.Equal(t, poller.Idle, s.PollerState())
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, 1, api.count("summary"))
	assert.Equal(t, 1, api.count("customers"))
	assert.Equal(t, 2, api.count("customer_summary:C1"))
	assert.Equal(t, 2, api.count("transactions:C1"))
	assert.Equal(t, 2, api.count("messages:EMI_PAYMENT"))

	s.WaitPolling()
	polled := api.count("status")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polled, api.count("status"))
}

func TestRefreshKeepsPolling(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []domain.JobStatus{domain.JobProcessing, domain.JobProcessing, domain.JobProcessing, domain.JobCompleted}
	var finished atomic.Int32
	s := newTestSession(t, api, Options{OnJobFinished: func(domain.ProcessingStatus) { finished.Add(1) }})
	ctx := context.Background()

	_, err := s.SubmitUpload(ctx, "sms.json", strings.NewReader("[]"))
	require.NoError(t, err)
	require.NoError(t, s.Refresh(ctx))
	assert.NotEqual(t, poller.Idle, s.PollerState())

	s.WaitPolling()
	assert.Equal(t, poller.Completed, s.PollerState())
	assert.Equal(t, int32(1), finished.Load())
	assert.Equal(t, domain.JobCompleted, s.Snapshot().Processing.Status)
}

func TestSelectMessageType(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})
	ctx := context.Background()

	require.NoError(t, s.SelectMessageType(ctx, "PROMOTIONAL"))
	require.NoError(t, s.SelectMessageType(ctx, "PROMOTIONAL"))
	assert.Equal(t, 1, api.count("messages:PROMOTIONAL"))

	require.NoError(t, s.LoadMessagesByType(ctx, "PROMOTIONAL"))
	assert.Equal(t, 2, api.count("messages:PROMOTIONAL"))

	snap := s.Snapshot()
	assert.Equal(t, "PROMOTIONAL", snap.Messages.Selected)
	assert.Equal(t, []string{"amount"}, snap.Messages.Headers)

	api.messages = func(string) ([]domain.TypedMessage, error) {
		return nil, apperr.NewStatusError("fetch messages", 503, "")
	}
	require.Error(t, s.SelectMessageType(ctx, "DEBIT_TRANSACTION"))
	assert.Equal(t, "Failed to fetch messages: HTTP 503", s.Notification().Message)

	require.NoError(t, s.SelectMessageType(ctx, ""))
	assert.Empty(t, s.Snapshot().Messages.Selected)
}

func TestResetProcessing(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, Options{})

	require.NoError(t, s.ResetProcessing(context.Background()))
	n := s.Notification()
	require.NotNil(t, n)
	assert.Equal(t, domain.NotifySuccess, n.Status)
	assert.Equal(t, "Processing status reset successfully", n.Message)
	assert.Equal(t, domain.JobIdle, s.Snapshot().Processing.Status)

	api.resetErr = apperr.NewStatusError("reset processing status", 500, "")
	assert.Error(t, s.ResetProcessing(context.Background()))
	assert.Equal(t, domain.NotifyError, s.Notification().Status)
}

func TestCloseIgnoresLateCompletions(t *testing.T) {
	api := newFakeAPI()
	started := make(chan struct{})
	release := make(chan struct{})
	api.customers = func(skip, limit int) (domain.CustomerPage, error) {
		close(started)
		<-release
		return domain.CustomerPage{Customers: []domain.Customer{{CustomerID: "late"}}, Total: 1}, nil
	}
	s := New(api, Options{})

	done := make(chan error, 1)
	go func() { done <- s.LoadCustomers(context.Background(), 1) }()
	<-started
	s.Close()
	close(release)

	assert.NoError(t, <-done)
	assert.Empty(t, s.Snapshot().Customers)
	assert.ErrorIs(t, s.LoadSummary(context.Background()), apperr.ErrSessionClosed)
	assert.ErrorIs(t, s.RefreshAll(context.Background()), apperr.ErrSessionClosed)

	s.Close()
}

func TestNotificationClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	api := newFakeAPI()
	api.summaryErr = errors.New("boom")
	s := newTestSession(t, api, Options{Now: func() time.Time { return at }})

	require.Error(t, s.LoadSummary(context.Background()))
	n := s.Notification()
	require.NotNil(t, n)
	assert.Equal(t, at, n.At)
	assert.Equal(t, "Boom", n.Message)
}
