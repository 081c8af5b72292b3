package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
	"msgdash/internal/format"
	"msgdash/internal/session"
	"msgdash/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// backend is an in-memory session.API.
type backend struct {
	mu      sync.Mutex
	status  domain.JobStatus
	uploads []string
}

func (b *backend) Summary(ctx context.Context) (domain.SummaryData, error) {
	return domain.SummaryData{
		TotalCustomers:    1200,
		TotalTransactions: 9,
		MessageTypeStats: []domain.MessageTypeStat{
			{MessageType: "SALARY_CREDIT", Count: 5, TotalAmount: domain.NewAmount(50000)},
			{MessageType: "CREDIT_CARD_TRANSACTION", Count: 4, TotalAmount: domain.NewAmount(8000), MaxOutstanding: domain.NewAmount(15000)},
		},
		RecentTransactions: []domain.Transaction{
			{MessageType: "EMI_PAYMENT", Amount: domain.NewAmount(1200), CreatedAt: "2024-03-05T10:00:00", LoanReference: "LN-9"},
		},
	}, nil
}

func (b *backend) MessageTypeCounts(ctx context.Context) (domain.MessageTypeCounts, error) {
	return domain.MessageTypeCounts{Counts: map[string]int{"SALARY_CREDIT": 5, "CREDIT_CARD_TRANSACTION": 4}}, nil
}

func (b *backend) Customers(ctx context.Context, skip, limit int) (domain.CustomerPage, error) {
	return domain.CustomerPage{
		Customers: []domain.Customer{{CustomerID: fmt.Sprintf("C%d", skip+1), Name: "Asha"}},
		Total:     25,
	}, nil
}

func (b *backend) CustomerSummary(ctx context.Context, customerID string) (domain.CustomerSummary, error) {
	if customerID == "ghost" {
		return domain.CustomerSummary{}, apperr.NewNotFoundError("customer", customerID)
	}
	return domain.CustomerSummary{Customer: domain.Customer{CustomerID: customerID}, TotalTransactions: 1}, nil
}

func (b *backend) CustomerTransactions(ctx context.Context, customerID string, skip, limit int, messageType string) (domain.TransactionPage, error) {
	if customerID == "ghost" {
		return domain.TransactionPage{}, apperr.NewNotFoundError("customer", customerID)
	}
	return domain.TransactionPage{
		Transactions: []domain.Transaction{{MessageType: "SALARY_CREDIT", Amount: domain.NewAmount(100)}},
		Total:        1,
	}, nil
}

func (b *backend) ProcessingStatus(ctx context.Context) (domain.ProcessingStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == "" {
		return domain.IdleStatus(), nil
	}
	return domain.ProcessingStatus{Total: 2, Processed: 2, Succeeded: 2, Status: b.status}, nil
}

func (b *backend) ResetProcessingStatus(ctx context.Context) (string, error) {
	return "Processing status reset to idle", nil
}

func (b *backend) MessagesByType(ctx context.Context, messageType string) ([]domain.TypedMessage, error) {
	return []domain.TypedMessage{
		{Message: "EMI due", Details: map[string]any{"emi_amount": 1200.0, "due_date": "2024-01-05"}},
		{Message: "EMI paid", Details: map[string]any{"emi_amount": 1200.0}},
	}, nil
}

func (b *backend) UploadFile(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error) {
	data, _ := io.ReadAll(r)
	b.mu.Lock()
	b.uploads = append(b.uploads, filename+":"+string(data))
	b.status = domain.JobCompleted
	b.mu.Unlock()
	return domain.UploadResult{Status: domain.UploadAccepted, Message: "Processing started"}, nil
}

func (b *backend) ProcessPath(ctx context.Context, path string) (domain.UploadResult, error) {
	b.mu.Lock()
	b.status = domain.JobCompleted
	b.mu.Unlock()
	return domain.UploadResult{Status: domain.UploadAccepted, Message: "Processing " + path}, nil
}

type fixture struct {
	api     *backend
	sess    *session.Session
	monitor *Monitor
	jobs    *storage.Storage
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{api: &backend{}, monitor: NewMonitor(), jobs: storage.New("")}
	fx.sess = session.New(fx.api, session.Options{
		PollInterval: time.Millisecond,
		RequireJSON:  true,
		OnRefresh:    fx.monitor.RecordRefresh,
		OnJobFinished: func(status domain.ProcessingStatus) {
			fx.monitor.RecordJob(status)
			_, _ = fx.jobs.Append(status, time.Now())
		},
	})
	t.Cleanup(fx.sess.Close)
	require.NoError(t, fx.sess.Init(context.Background()))

	f, err := format.New("en-US", "₹")
	require.NoError(t, err)
	fx.handler = New(fx.sess, fx.monitor, f, fx.jobs).Handler()
	return fx
}

func (fx *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	fx.monitor.RecordRefresh(errors.New("backend down"))
	body := decode(t, fx.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error: backend down", body["last_refresh_status"])
	assert.EqualValues(t, 1, body["refresh_failures"])
}

func TestStats(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "1,200", out.TotalCustomers)
	require.Len(t, out.Cards, 8)
	assert.Equal(t, "Salary", out.Cards[0].Label)
	assert.Equal(t, "₹50,000", out.Cards[0].TotalDisplay)
	assert.Equal(t, "Credit Card", out.Cards[2].Label)
	assert.Equal(t, "₹15,000", out.Cards[2].HighestDisplay)
	assert.Equal(t, "9", out.CategorizedCount)
	assert.Equal(t, "₹58,000", out.CategorizedAmount)
	assert.Zero(t, out.ProcessingProgress)

	require.Len(t, out.RecentTransactions, 1)
	assert.Equal(t, TransactionRow{MessageType: "EMI_PAYMENT", Amount: "₹1,200", Date: "05 Mar 2024", Reference: "LN-9"}, out.RecentTransactions[0])
	assert.Empty(t, out.CustomerTransactions)
}

func TestSelectCustomer(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodPost, "/api/customers/select", `{"customer_id":"C7"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "C7", body["selected_customer_id"])
	assert.Len(t, body["transactions"], 1)

	w = fx.do(t, http.MethodPost, "/api/customers/select", `{"customer_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `Customer "ghost" not found`, decode(t, w)["error"])

	w = fx.do(t, http.MethodPost, "/api/customers/select", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomerPaging(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodPost, "/api/customers/page/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)["customers_page"].(map[string]any)
	assert.EqualValues(t, 2, page["page"])
	assert.EqualValues(t, 3, page["page_count"])
	assert.Equal(t, true, page["can_next"])
	assert.Equal(t, true, page["can_prev"])

	w = fx.do(t, http.MethodPost, "/api/customers/page/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode(t, w)["customers_page"].(map[string]any)
	assert.EqualValues(t, 3, page["page"])
	assert.Equal(t, false, page["can_next"])

	assert.Equal(t, http.StatusBadRequest, fx.do(t, http.MethodPost, "/api/customers/page/last", "").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(t, http.MethodPost, "/api/transactions/page/2", "").Code)
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/api/transactions/page/next", "").Code)
}

func TestMessageTypeAndExport(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodGet, "/api/export/messages.csv", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(t, http.MethodPost, "/api/message-type/reload", "").Code)

	w = fx.do(t, http.MethodPost, "/api/message-type", `{"message_type":"EMI_PAYMENT"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/api/message-type/reload", "").Code)

	w = fx.do(t, http.MethodGet, "/api/export/messages.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="EMI_PAYMENT_messages.csv"`, w.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Message,Due Date,Emi Amount", lines[0])
	assert.Equal(t, "EMI paid,N/A,1200", lines[2])

	w = fx.do(t, http.MethodGet, "/api/export/messages.xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func multipartUpload(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		wantCode int
		wantErr  string
	}{
		{name: "missing file", wantCode: http.StatusBadRequest, wantErr: "Please select a file first"},
		{name: "not json", file: "messages.txt", wantCode: http.StatusBadRequest, wantErr: "Please select a JSON file"},
		{name: "accepted", file: "messages.json", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			body, contentType := multipartUpload(t, tt.file, `[{"message":"hi"}]`)

			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			fx.handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, w)["error"])
				return
			}

			result := decode(t, w)["result"].(map[string]any)
			assert.Equal(t, "accepted", result["status"])
			assert.Equal(t, []string{`messages.json:[{"message":"hi"}]`}, fx.api.uploads)

			fx.sess.WaitPolling()
			assert.Equal(t, domain.JobCompleted, fx.sess.Snapshot().Processing.Status)
			assert.Equal(t, "completed", fx.monitor.GetStatus().LastJobStatus)
			assert.Equal(t, 1, fx.jobs.Len())
		})
	}
}

func TestProcessAndReset(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodPost, "/api/process", `{"file_path":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please provide a file path on the server", decode(t, w)["error"])

	w = fx.do(t, http.MethodPost, "/api/process", `{"file_path":"/data/messages.json"}`)
	require.Equal(t, http.StatusOK, w.Code)
	fx.sess.WaitPolling()

	w = fx.do(t, http.MethodPost, "/api/processing/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "idle", body["processing_status"].(map[string]any)["status"])
	assert.Equal(t, "Processing status reset to idle", body["notification"].(map[string]any)["message"])
}

func TestRefresh(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", fx.monitor.GetStatus().LastRefreshStatus)
}

func TestSummaryImage(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodGet, "/api/summary.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestJobs(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.jobs.Append(domain.ProcessingStatus{Status: domain.JobError, Total: 3, Processed: 3, Failed: 3}, time.Now())
	require.NoError(t, err)

	body := decode(t, fx.do(t, http.MethodGet, "/api/jobs?limit=5", ""))
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["data"], 1)

	assert.Equal(t, http.StatusNoContent, fx.do(t, http.MethodDelete, "/api/jobs", "").Code)
	assert.Zero(t, fx.jobs.Len())
}

func TestClosedSession(t *testing.T) {
	fx := newFixture(t)
	fx.sess.Close()

	w := fx.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NewUserInputError("bad"), http.StatusBadRequest},
		{apperr.NewNotFoundError("customer", "x"), http.StatusNotFound},
		{apperr.ErrSessionClosed, http.StatusServiceUnavailable},
		{apperr.NewStatusError("fetch summary", 500, "boom"), http.StatusBadGateway},
		{apperr.ErrPollTimeout, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), tt.err.Error())
	}
}
