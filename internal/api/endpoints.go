package api

import (
	"context"
	"net/url"
	"strconv"

	"msgdash/internal/domain"
	apperr "msgdash/internal/errors"
)

// Summary fetches the dashboard-wide analytics summary.
func (c *Client) Summary(ctx context.Context) (domain.SummaryData, error) {
	var out domain.SummaryData
	err := c.getJSON(ctx, "fetch summary", "/analytics/summary", nil, &out)
	return out, err
}

// MessageTypeCounts fetches the per-type message counts.
func (c *Client) MessageTypeCounts(ctx context.Context) (domain.MessageTypeCounts, error) {
	var out domain.MessageTypeCounts
	err := c.getJSON(ctx, "fetch message type counts", "/message-type-counts", nil, &out)
	if out.Counts == nil {
		out.Counts = map[string]int{}
	}
	return out, err
}

// Customers fetches one page of customers.
func (c *Client) Customers(ctx context.Context, skip, limit int) (domain.CustomerPage, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var out domain.CustomerPage
	err := c.getJSON(ctx, "fetch customers", "/customers", q, &out)
	return out, err
}

// CustomerSummary fetches one customer's profile and per-type statistics.
// An unknown id yields a NotFoundError.
func (c *Client) CustomerSummary(ctx context.Context, customerID string) (domain.CustomerSummary, error) {
	var out domain.CustomerSummary
	err := c.getJSON(ctx, "fetch customer summary", "/customers/"+url.PathEscape(customerID)+"/summary", nil, &out)
	if apperr.StatusCode(err) == 404 {
		return domain.CustomerSummary{}, apperr.NewNotFoundError("customer", customerID)
	}
	return out, err
}

// CustomerTransactions fetches one page of a customer's transactions. An
// empty messageType means all types.
func (c *Client) CustomerTransactions(ctx context.Context, customerID string, skip, limit int, messageType string) (domain.TransactionPage, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	if messageType != "" {
		q.Set("message_type", messageType)
	}

	var out domain.TransactionPage
	err := c.getJSON(ctx, "fetch customer transactions", "/customers/"+url.PathEscape(customerID)+"/transactions", q, &out)
	if apperr.StatusCode(err) == 404 {
		return domain.TransactionPage{}, apperr.NewNotFoundError("customer", customerID)
	}
	return out, err
}

// ProcessingStatus reads the batch job status.
func (c *Client) ProcessingStatus(ctx context.Context) (domain.ProcessingStatus, error) {
	var out domain.ProcessingStatus
	err := c.getJSON(ctx, "fetch processing status", "/processing-status", nil, &out)
	return out, err
}

// ResetProcessingStatus forces the backend's job status back to idle and
// returns its confirmation message.
func (c *Client) ResetProcessingStatus(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.postJSON(ctx, "reset processing status", "/reset-processing-status", nil, &out)
	return out.Message, err
}

// Health reads the backend's health report, e.g. {"api": "healthy",
// "mongodb": "connected"}.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.getJSON(ctx, "check backend health", "/health", nil, &out)
	return out, err
}

// MessagesByType fetches the drill-down messages of one type.
func (c *Client) MessagesByType(ctx context.Context, messageType string) ([]domain.TypedMessage, error) {
	q := url.Values{}
	q.Set("message_type", messageType)
	if c.messagesLimit > 0 {
		q.Set("limit", strconv.Itoa(c.messagesLimit))
	}

	var out []domain.TypedMessage
	if err := c.getJSON(ctx, "fetch messages", c.messagesEndpoint, q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.TypedMessage{}
	}
	return out, nil
}
