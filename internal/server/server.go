// Package server exposes a dashboard session over HTTP.
//
// Read endpoints return the session snapshot or values derived from it.
// Command endpoints drive the session and answer with the new snapshot, or
// with {"error": "..."} carrying the same text as the notification slot.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
	"msgdash/internal/export"
	"msgdash/internal/format"
	"msgdash/internal/session"
	"msgdash/internal/stats"
	"msgdash/internal/storage"
	"msgdash/internal/summary"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Dashboard is the session surface the server drives.
type Dashboard interface {
	Snapshot() session.Snapshot
	RefreshAll(ctx context.Context) error
	LoadCustomers(ctx context.Context, page int) error
	NextCustomersPage(ctx context.Context) error
	PrevCustomersPage(ctx context.Context) error
	SelectCustomer(ctx context.Context, customerID string) error
	NextTransactionsPage(ctx context.Context) error
	PrevTransactionsPage(ctx context.Context) error
	SetTransactionFilter(ctx context.Context, messageType string) error
	SelectMessageType(ctx context.Context, messageType string) error
	LoadMessagesByType(ctx context.Context, messageType string) error
	SubmitUpload(ctx context.Context, filename string, r io.Reader) (domain.UploadResult, error)
	ProcessServerPath(ctx context.Context, path string) (domain.UploadResult, error)
	ResetProcessing(ctx context.Context) error
}

// Server routes HTTP requests to a Dashboard.
type Server struct {
	dash    Dashboard
	monitor *Monitor
	format  *format.Formatter
	jobs    *storage.Storage
	engine  *gin.Engine
	log     *logrus.Entry
}

// New builds the router. jobs may be nil when job history is disabled.
func New(dash Dashboard, monitor *Monitor, f *format.Formatter, jobs *storage.Storage) *Server {
	s := &Server{
		dash:    dash,
		monitor: monitor,
		format:  f,
		jobs:    jobs,
		engine:  gin.New(),
		log:     logrus.WithField("component", "server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)

	api := r.Group("/api")
	api.GET("/snapshot", s.snapshot)
	api.GET("/stats", s.statCards)
	api.POST("/refresh", s.command(s.dash.RefreshAll))

	api.POST("/customers/select", s.selectCustomer)
	api.POST("/customers/page/:page", s.customersPage)
	api.POST("/transactions/page/:page", s.transactionsPage)
	api.POST("/transactions/filter", s.transactionFilter)

	api.POST("/message-type", s.messageType)
	api.POST("/message-type/reload", s.reloadMessages)
	api.GET("/export/messages.xlsx", s.exportMessages("xlsx"))
	api.GET("/export/messages.csv", s.exportMessages("csv"))

	api.POST("/upload", s.upload)
	api.POST("/process", s.process)
	api.POST("/processing/reset", s.command(s.dash.ResetProcessing))

	api.GET("/summary.png", s.summaryImage)
	api.GET("/jobs", s.listJobs)
	api.DELETE("/jobs", s.clearJobs)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("✓ Status server started on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.log.Info("🛑 Status server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Microsecond),
		}).Debug("request")
	}
}

// httpStatus maps a session error to a response code.
func httpStatus(err error) int {
	switch {
	case apperr.IsUserInput(err):
		return http.StatusBadRequest
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case apperr.IsNetworkFailure(err), errors.Is(err, apperr.ErrPollTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": session.Describe(err)})
}

// command adapts a parameterless session operation.
func (s *Server) command(op func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.dash.Snapshot())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetStatus())
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.Snapshot())
}

// StatCard is one category card with its display strings.
type StatCard struct {
	stats.Category
	Label          string `json:"label"`
	TotalDisplay   string `json:"total_display"`
	HighestDisplay string `json:"highest_outstanding_display,omitempty"`
}

// TransactionRow is one transaction formatted for a table.
type TransactionRow struct {
	MessageType string `json:"message_type"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Reference   string `json:"reference,omitempty"`
}

// Stats is the body of GET /api/stats.
type Stats struct {
	TotalCustomers       string           `json:"total_customers"`
	TotalTransactions    string           `json:"total_transactions"`
	CategorizedCount     string           `json:"categorized_count"`
	CategorizedAmount    string           `json:"categorized_amount"`
	Cards                []StatCard       `json:"cards"`
	RecentTransactions   []TransactionRow `json:"recent_transactions"`
	CustomerTransactions []TransactionRow `json:"customer_transactions"`
	ProcessingProgress   int              `json:"processing_progress"`
}

func (s *Server) transactionRows(txs []domain.Transaction) []TransactionRow {
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, TransactionRow{
			MessageType: tx.MessageType,
			Amount:      s.format.Currency(tx.Amount),
			Date:        format.Date(tx.CreatedAt),
			Reference:   tx.Reference(),
		})
	}
	return rows
}

func (s *Server) statCards(c *gin.Context) {
	snap := s.dash.Snapshot()

	totals := make(stats.Totals, len(snap.Categories))
	for _, cat := range snap.Categories {
		totals[cat.Name] = cat
	}
	count, amount := totals.Sum()

	out := Stats{
		TotalCustomers:       s.format.Count(snap.Summary.TotalCustomers),
		TotalTransactions:    s.format.Count(snap.Summary.TotalTransactions),
		CategorizedCount:     s.format.Count(count),
		CategorizedAmount:    s.format.Decimal(amount),
		Cards:                make([]StatCard, 0, len(snap.Categories)),
		RecentTransactions:   s.transactionRows(snap.Summary.RecentTransactions),
		CustomerTransactions: s.transactionRows(snap.Transactions),
		ProcessingProgress:   format.Percentage(snap.Processing.Processed, snap.Processing.Total),
	}
	for _, cat := range snap.Categories {
		card := StatCard{
			Category:     cat,
			Label:        stats.Label(cat.Name),
			TotalDisplay: s.format.Decimal(cat.Total),
		}
		if cat.Name == stats.CreditCard {
			card.HighestDisplay = s.format.Decimal(cat.HighestOutstanding)
		}
		out.Cards = append(out.Cards, card)
	}
	c.JSON(http.StatusOK, out)
}

type customerRequest struct {
	CustomerID string `json:"customer_id"`
}

type messageTypeRequest struct {
	MessageType string `json:"message_type"`
}

type processRequest struct {
	FilePath string `json:"file_path"`
}

func (s *Server) selectCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(func(ctx context.Context) error {
		return s.dash.SelectCustomer(ctx, req.CustomerID)
	})(c)
}

// pageOp resolves "next", "prev" or a page number.
func pageOp(c *gin.Context, next, prev func(context.Context) error, load func(context.Context, int) error) (func(context.Context) error, bool) {
	switch p := c.Param("page"); p {
	case "next":
		return next, true
	case "prev":
		return prev, true
	default:
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || load == nil {
			return nil, false
		}
		return func(ctx context.Context) error { return load(ctx, n) }, true
	}
}

func (s *Server) customersPage(c *gin.Context) {
	op, ok := pageOp(c, s.dash.NextCustomersPage, s.dash.PrevCustomersPage, s.dash.LoadCustomers)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be next, prev or a page number"})
		return
	}
	s.command(op)(c)
}

func (s *Server) transactionsPage(c *gin.Context) {
	op, ok := pageOp(c, s.dash.NextTransactionsPage, s.dash.PrevTransactionsPage, nil)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be next or prev"})
		return
	}
	s.command(op)(c)
}

func (s *Server) transactionFilter(c *gin.Context) {
	var req messageTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(func(ctx context.Context) error {
		return s.dash.SetTransactionFilter(ctx, req.MessageType)
	})(c)
}

func (s *Server) messageType(c *gin.Context) {
	var req messageTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.command(func(ctx context.Context) error {
		return s.dash.SelectMessageType(ctx, req.MessageType)
	})(c)
}

func (s *Server) reloadMessages(c *gin.Context) {
	typ := s.dash.Snapshot().Messages.Selected
	if typ == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no message type selected"})
		return
	}
	s.command(func(ctx context.Context) error {
		return s.dash.LoadMessagesByType(ctx, typ)
	})(c)
}

// submission answers an upload or process request.
func (s *Server) submission(c *gin.Context, result domain.UploadResult, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "snapshot": s.dash.Snapshot()})
}

func (s *Server) upload(c *gin.Context) {
	ctx := c.Request.Context()

	fh, err := c.FormFile("file")
	if err != nil {
		// The session records the missing-file notification.
		result, err := s.dash.SubmitUpload(ctx, "", nil)
		s.submission(c, result, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	result, err := s.dash.SubmitUpload(ctx, fh.Filename, f)
	s.submission(c, result, err)
}

func (s *Server) process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.dash.ProcessServerPath(c.Request.Context(), req.FilePath)
	s.submission(c, result, err)
}

func (s *Server) exportMessages(ext string) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := s.dash.Snapshot().Messages
		table, err := export.BuildTable(view.Messages)
		if errors.Is(err, export.ErrNoMessages) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No messages to download"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var buf bytes.Buffer
		contentType := "text/csv; charset=utf-8"
		if ext == "xlsx" {
			contentType = xlsxContentType
			err = export.WriteXLSX(&buf, table)
		} else {
			err = export.WriteCSV(&buf, table)
		}
		if err != nil {
			s.log.WithError(err).Warn("⚠️  Export failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(view.Selected, ext)))
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}

func (s *Server) summaryImage(c *gin.Context) {
	report := summary.NewReport(s.dash.Snapshot(), s.format, time.Now())
	png, err := summary.Render(report)
	if errors.Is(err, summary.ErrEmpty) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) listJobs(c *gin.Context) {
	if s.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"data": []storage.Record{}, "total": 0})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{"data": s.jobs.Recent(limit), "total": s.jobs.Len()})
}

func (s *Server) clearJobs(c *gin.Context) {
	if s.jobs != nil {
		if err := s.jobs.Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.Status(http.StatusNoContent)
}
