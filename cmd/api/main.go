package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/api"
	"qrattend/internal/app"
	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/decoder"
	"qrattend/internal/i18n"
	"qrattend/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Without a separate worker the memory queue is drained in process.
	waitDrain := a.StartDrain(ctx)
	defer func() {
		stop()
		waitDrain()
	}()

	m := metrics.New()
	if cfg.HistoryAsync {
		m.WatchQueue(a.Queue.Len)
	}
	reconciler, err := a.NewReconciler(m)
	if err != nil {
		return err
	}

	dec := decoder.New(cfg.DecoderURL)
	if dec.Enabled() {
		if err := dec.Health(ctx); err != nil {
			logger.Warn("decoder service not available", "url", cfg.DecoderURL, "error", err)
		}
	}

	checks := map[string]api.HealthCheck{"db": a.DB.Healthy}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}

	r := api.NewRouter(api.Deps{
		Reconciler: reconciler,
		Admin:      attendance.NewAdmin(a.Repo, logger),
		History:    a.History,
		Decoder:    dec,
		Translator: i18n.NewTranslator(cfg.DefaultLocale),
		Tokens: api.TokenConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			TTL:        cfg.AccessTTL,
			AdminKey:   cfg.AdminKey,
		},
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         m.Handler(),
		Checks:          checks,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.ReconcileTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "driver", cfg.StoreDriver, "mode", cfg.ReconcileMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
