package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/xtream_offline/internal/cleanup"
	"github.com/italolelis/xtream_offline/internal/config"
	"github.com/italolelis/xtream_offline/internal/download"
	"github.com/italolelis/xtream_offline/internal/http/rest"
	"github.com/italolelis/xtream_offline/internal/logctx"
	"github.com/italolelis/xtream_offline/internal/notifier"
	"github.com/italolelis/xtream_offline/internal/storage"
	"github.com/italolelis/xtream_offline/internal/storage/sqlite"
	"github.com/italolelis/xtream_offline/internal/telemetry"
	"github.com/italolelis/xtream_offline/internal/transfer"
	"github.com/italolelis/xtream_offline/internal/xtream"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("xtream offline starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  "xtream_offline",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	store := storage.NewInstrumentedMetadataStore(sqlite.NewKV(database), tel)

	// =========================================================================
	// Start Download Manager
	urls := xtream.NewURLBuilder(xtream.NewStaticCredentials(
		cfg.XtreamBaseURL,
		cfg.XtreamUsername,
		cfg.XtreamPassword,
	))

	manager := download.NewManager(
		store,
		download.NewDiskStore(),
		urls,
		transfer.NewClient(cfg.ChunkTimeout),
		cfg.DownloadDir,
		cfg.ChunkSize,
		cfg.MaxParallel,
		tel,
	)
	defer manager.Close()

	// =========================================================================
	// Start Notification
	setupNotificationForManager(ctx, manager, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, manager, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for download requests...",
		"download_dir", cfg.DownloadDir,
		"chunk_size", cfg.ChunkSize,
		"max_parallel", cfg.MaxParallel,
		"retention", cfg.KeepDownloadedFor.String(),
	)

	// =========================================================================
	// Start Cleanup
	if cfg.KeepDownloadedFor > 0 {
		setupCleanup(ctx, manager, cfg)
	}

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

func setupNotificationForManager(ctx context.Context, manager *download.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	go func() {
		for rec := range manager.OnDownloadFinished {
			logger.Info("download finished", "download_id", rec.ID, "title", rec.Title)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(notifier.DownloadFinishedMessage(rec)); notifyErr != nil {
				logger.Error("failed to send notification", "download_id", rec.ID, "err", notifyErr)
			}
		}
	}()

	go func() {
		for rec := range manager.OnDownloadFailed {
			logger.Error("download failed", "download_id", rec.ID, "title", rec.Title, "detail", rec.ErrorDetail)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(notifier.DownloadFailedMessage(rec)); notifyErr != nil {
				logger.Error("failed to send notification", "download_id", rec.ID, "err", notifyErr)
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, manager *download.Manager, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	dHandler := rest.NewDownloadHandler(cfg.Web.Username, cfg.Web.Password, manager)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", dHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, manager *download.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-ticker.C:
				if err := cleanup.DeleteExpiredDownloads(ctx, manager, cfg.KeepDownloadedFor); err != nil {
					logger.Error("failed to delete expired downloads", "err", err)
				}
			}
		}
	}()
}
