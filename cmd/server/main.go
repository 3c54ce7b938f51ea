package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailarchive/backend/internal/app"
	"mailarchive/backend/internal/config"
	"mailarchive/backend/internal/health"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/smtp"
	httptransport "mailarchive/backend/internal/transport/http"
)

// main 启动入站 SMTP 监听和运维 HTTP 服务（健康检查、指标）。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := app.NewLogger(cfg.Log, false)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mailarchive server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(nil)

	components, err := app.Build(ctx, cfg, metrics, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	healthChecker := health.NewHealthChecker(log, 3*time.Second)
	components.RegisterHealthChecks(healthChecker)

	// 运维 HTTP 服务器
	httpServer := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httptransport.NewRouter(httptransport.RouterDependencies{
			Health:  healthChecker,
			Metrics: metrics,
			Logger:  log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 入站 SMTP 服务器
	var limiter *smtp.ConnectionLimiter
	if cfg.SMTP.MaxConnections > 0 || cfg.SMTP.ConnRateLimit > 0 {
		limiter = smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.ConnRateLimit)
	}
	backend := smtp.NewBackend(smtp.BackendDeps{
		Ingest:          components.Ingest,
		Limiter:         limiter,
		Logger:          log.Named("smtp"),
		Metrics:         metrics,
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
	})
	smtpServer := smtp.NewServer(smtp.SMTPConfig{
		Addr:            cfg.SMTP.BindAddr,
		Domain:          cfg.SMTP.Domain,
		ReadTimeout:     cfg.SMTP.ReadTimeout,
		WriteTimeout:    cfg.SMTP.WriteTimeout,
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
	}, backend)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", smtpServer.Addr),
			zap.String("domain", smtpServer.Domain),
			zap.Int64("max_message_bytes", smtpServer.MaxMessageBytes),
		)
		if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭：先停止接收新连接，再等待进行中的会话结束
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("SMTP server shutdown timed out, closing", zap.Error(err))
			_ = smtpServer.Close()
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}
