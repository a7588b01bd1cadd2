package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"omochi-bot/internal/app"
	"omochi-bot/internal/config"
	"omochi-bot/internal/line"
	"omochi-bot/internal/logging"
	"omochi-bot/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build app")
	}
	defer a.Close()

	sched, err := a.NewScheduler()
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule sync jobs")
	}
	sched.Start()
	defer sched.Stop()

	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(cfg.TelegramBotToken, a.Gate, a.Bot, logger.WithField("component", "telegram"), a.Metrics)
		if err != nil {
			logger.WithError(err).Error("telegram channel disabled")
		} else {
			go tg.Start(ctx)
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	if cfg.LineChannelSecret == "" {
		logger.Warn("LINE_CHANNEL_SECRET not set, webhook signatures are not verified")
	}
	replier := line.NewClient(cfg.LineAccessToken, cfg.LineAPIBaseURL, nil)
	line.NewWebhook(a.Gate, a.Bot, replier, logger.WithField("component", "line"), line.WebhookOptions{
		ChannelSecret: cfg.LineChannelSecret,
		BotUserID:     cfg.BotUserID,
		Metrics:       a.Metrics,
	}).Register(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("🚀 HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown incomplete")
	}
}
