// Command msgdash serves the financial message dashboard: it keeps a session
// in sync with the message-parsing backend and exposes it over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"msgdash/internal/api"
	"msgdash/internal/config"
	"msgdash/internal/domain"
	"msgdash/internal/format"
	"msgdash/internal/scheduler"
	"msgdash/internal/server"
	"msgdash/internal/session"
	"msgdash/internal/storage"
	"msgdash/internal/summary"
	"msgdash/internal/telegram"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	logrus.Info("🚀 Starting msgdash...")

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("❌ Configuration error: %v", err)
	}
	logrus.SetLevel(cfg.Level())
	logrus.WithFields(logrus.Fields{
		"api":      cfg.APIBaseURL,
		"upload":   cfg.UploadFormat,
		"schedule": cfg.RefreshSchedule,
	}).Info("✓ Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Fatalf("❌ %v", err)
	}
	logrus.Info("👋 Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	formatter, err := format.New(cfg.Locale, cfg.CurrencySymbol)
	if err != nil {
		return err
	}

	client := api.New(cfg.APIBaseURL,
		api.WithHTTPClient(api.NewHTTPClient(cfg.HTTPTimeout, cfg.HTTPMaxConns)),
		api.WithMessagesEndpoint(cfg.MessagesEndpoint, cfg.MessagesLimit),
		api.WithUploadFormat(api.UploadFormat(cfg.UploadFormat), cfg.CSVDelimiter, cfg.CSVHasHeader),
	)

	tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.DebugMode)
	checkBackend(ctx, client, tg)

	monitor := server.NewMonitor()
	jobs := storage.New(cfg.JobHistoryFile)

	var sess *session.Session
	sess = session.New(client, session.Options{
		CustomersPageSize:    cfg.CustomersPageSize,
		TransactionsPageSize: cfg.TransactionsPageSize,
		PollInterval:         cfg.PollInterval,
		PollTimeout:          cfg.PollTimeout,
		PollImmediate:        cfg.PollImmediate,
		RequireJSON:          client.Format() == api.FormatJSON,
		OnRefresh:            monitor.RecordRefresh,
		OnJobFinished: func(status domain.ProcessingStatus) {
			monitor.RecordJob(status)
			if _, err := jobs.Append(status, time.Now()); err != nil {
				logrus.WithError(err).Warn("⚠️  Failed to record finished job")
			}
			reportJob(ctx, tg, sess, formatter, status)
		},
	})
	defer sess.Close()

	logrus.Info("📬 Loading dashboard...")
	if err := sess.Init(ctx); err != nil {
		// The session keeps the failure in its notification slot; the
		// dashboard still starts so a later refresh can recover.
		logrus.WithError(err).Warn("⚠️  Initial load incomplete")
	}

	if cfg.RefreshSchedule != "" {
		sched, err := scheduler.New(ctx, cfg.RefreshSchedule, sess, scheduler.Options{
			Timeout: cfg.HTTPTimeout * 2,
			OnError: func(err error) {
				if alertErr := tg.SendCriticalAlert(ctx, "Scheduled Refresh Failure", session.Describe(err)); alertErr != nil {
					logrus.WithError(alertErr).Warn("⚠️  Failed to send Telegram alert")
				}
			},
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv := server.New(sess, monitor, formatter, jobs)
	return srv.Run(ctx, ":"+cfg.StatusPort)
}

// checkBackend logs backend liveness at startup and alerts when it is down.
func checkBackend(ctx context.Context, client *api.Client, tg *telegram.Client) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logrus.WithError(err).Warn("⚠️  Backend health check failed")
		if alertErr := tg.SendCriticalAlert(ctx, "Backend Unreachable", err.Error()); alertErr != nil {
			logrus.WithError(alertErr).Warn("⚠️  Failed to send Telegram alert")
		}
		return
	}
	logrus.WithField("health", health).Info("✓ Backend is reachable")
}

// reportJob sends the job report and the refreshed summary image.
func reportJob(ctx context.Context, tg *telegram.Client, sess *session.Session, f *format.Formatter, status domain.ProcessingStatus) {
	if tg == nil {
		return
	}
	if err := tg.SendJobReport(ctx, status); err != nil {
		logrus.WithError(err).Warn("⚠️  Failed to send job report")
		return
	}

	png, err := summary.Render(summary.NewReport(sess.Snapshot(), f, time.Now()))
	if err != nil {
		logrus.WithError(err).Warn("⚠️  Failed to render summary image")
		return
	}
	caption := fmt.Sprintf("Dashboard after job: %d succeeded, %d failed", status.Succeeded, status.Failed)
	if err := tg.SendPhoto(ctx, png, caption); err != nil {
		logrus.WithError(err).Warn("⚠️  Failed to send summary image")
	}
}
