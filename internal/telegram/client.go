// Package telegram sends dashboard notifications to a Telegram chat.
//
// This package handles:
//   - Job reports when a processing run reaches a terminal status
//   - Critical alerts when the dashboard cannot refresh
//   - Summary images (PNG) produced by the summary package
//
// A nil *Client is valid and means Telegram is not configured: every method
// logs and returns nil.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"msgdash/internal/domain"
	"msgdash/internal/format"

	"github.com/sirupsen/logrus"
)

// DefaultAPIBase is the Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Client represents a Telegram bot client.
//
// Fields:
//   - BotToken: Telegram bot API token
//   - ChatID: Target chat ID for notifications
//   - APIBase: Bot API root, overridable for testing
//   - DebugMode: If true, skip actual API calls
type Client struct {
	BotToken  string
	ChatID    string
	APIBase   string
	DebugMode bool

	http *http.Client
	log  *logrus.Entry
}

// Message represents a Telegram message for sending.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewClient creates a Telegram client.
//
// Parameters:
//   - botToken: Bot API token from @BotFather
//   - chatID: Target chat ID for notifications
//   - debugMode: If true, messages are logged instead of sent
//
// Returns:
//   - *Client: Configured Telegram client, or nil if not configured
func NewClient(botToken, chatID string, debugMode bool) *Client {
	log := logrus.WithField("component", "telegram")

	if botToken == "" || chatID == "" {
		log.Warn("⚠️  TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set. Telegram notifications disabled.")
		if botToken == "" {
			log.Warn("   → Missing: TELEGRAM_BOT_TOKEN")
		}
		if chatID == "" {
			log.Warn("   → Missing: TELEGRAM_CHAT_ID")
		}
		return nil
	}

	log.Info("✓ Telegram configured successfully")
	if debugMode {
		log.Info("🐛 DEBUG MODE ENABLED - Telegram calls will be simulated")
	}

	return &Client{
		BotToken:  botToken,
		ChatID:    chatID,
		APIBase:   DefaultAPIBase,
		DebugMode: debugMode,
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

// methodURL builds the Bot API URL for method.
func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.APIBase, c.BotToken, method)
}

// doRequest posts a JSON payload to a Bot API method.
//
// Parameters:
//   - method: Telegram API method name (e.g., "sendMessage")
//   - payload: Request payload (will be JSON marshaled)
//
// Returns:
//   - map[string]any: Parsed response
//   - error: Request or API error
func (c *Client) doRequest(ctx context.Context, method string, payload any) (map[string]any, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.post(ctx, method, "application/json", bytes.NewReader(jsonData))
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Check if API call succeeded
	if ok, exists := result["ok"].(bool); !exists || !ok {
		return nil, fmt.Errorf("telegram API error: %v", result["description"])
	}
	return result, nil
}

func (c *Client) sendHTML(ctx context.Context, text string) error {
	if c.DebugMode {
		c.log.Infof("🐛 DEBUG MODE: Would send message:\n%s", text)
		return nil
	}
	_, err := c.doRequest(ctx, "sendMessage", Message{
		ChatID:                c.ChatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	return err
}

// SendJobReport reports a processing job that reached a terminal status.
//
// Message format:
//
//	✅ Processing completed
//	📊 3/3 records (100%)
//	✓ 3 succeeded  ✗ 0 failed
func (c *Client) SendJobReport(ctx context.Context, status domain.ProcessingStatus) error {
	if c == nil {
		logrus.WithField("component", "telegram").Debug("Telegram not configured, skipping job report")
		return nil
	}

	headline := "✅ <b>Processing completed</b>"
	if status.Status == domain.JobError {
		headline = "❌ <b>Processing failed</b>"
	}
	text := fmt.Sprintf(
		"%s\n\n"+
			"📊 %d/%d records (%d%%)\n"+
			"✓ %d succeeded  ✗ %d failed\n"+
			"🕒 %s",
		headline,
		status.Processed, status.Total, format.Percentage(status.Processed, status.Total),
		status.Succeeded, status.Failed,
		time.Now().Format("2006-01-02 15:04:05"),
	)

	if err := c.sendHTML(ctx, text); err != nil {
		return fmt.Errorf("failed to send job report: %w", err)
	}
	c.log.Info("📬 Job report sent to Telegram")
	return nil
}

// SendCriticalAlert sends an alert for a failure that needs attention, such
// as the backend being unreachable during a scheduled refresh.
func (c *Client) SendCriticalAlert(ctx context.Context, errorType, errorMsg string) error {
	if c == nil {
		logrus.WithField("component", "telegram").Debug("Telegram not configured, skipping critical alert")
		return nil
	}

	c.log.Warn("🚨 Sending critical alert to Telegram...")

	text := fmt.Sprintf(
		"🚨 <b>CRITICAL ALERT - MSGDASH</b>\n\n"+
			"<b>Error Type:</b> %s\n"+
			"<b>Error Message:</b> %s\n"+
			"<b>Timestamp:</b> %s\n\n"+
			"⚠️ <b>Action Required:</b> Please check the backend.",
		html.EscapeString(errorType),
		html.EscapeString(errorMsg),
		time.Now().Format("2006-01-02 15:04:05"),
	)

	if err := c.sendHTML(ctx, text); err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}
	return nil
}

// SendPhoto uploads a PNG with a caption.
func (c *Client) SendPhoto(ctx context.Context, png []byte, caption string) error {
	if c == nil {
		logrus.WithField("component", "telegram").Debug("Telegram not configured, skipping photo")
		return nil
	}
	if c.DebugMode {
		c.log.Infof("🐛 DEBUG MODE: Would send %d byte photo: %s", len(png), caption)
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", c.ChatID); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("photo", "summary.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(png); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if _, err := c.post(ctx, "sendPhoto", w.FormDataContentType(), &body); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	c.log.Info("🖼️  Summary image sent to Telegram")
	return nil
}
