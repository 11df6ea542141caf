package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clinsum/internal/app"
	"clinsum/internal/config"
	"clinsum/internal/server"
	"clinsum/internal/util"
	"clinsum/pkg/ai"
	"clinsum/pkg/ocr"
	"clinsum/pkg/storage"
	"clinsum/pkg/store"
	"clinsum/pkg/token"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	accessTTL, err := config.ParseTTL(cfg.AccessTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse access token TTL: %v", err)
	}
	refreshTTL, err := config.ParseTTL(cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse refresh token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := dataStore.Ping(pingCtx); err != nil {
		cancel()
		log.Fatalf("database unreachable: %v", err)
	}
	cancel()

	tokens, err := token.NewService(cfg.TokenSecret, store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword), token.Options{
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	})
	if err != nil {
		log.Fatalf("failed to init token service: %v", err)
	}

	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	engine, err := ocr.NewCommandEngine(cfg.OCRCommand, time.Duration(cfg.OCRTimeoutSeconds)*time.Second)
	if err != nil {
		log.Fatalf("failed to init OCR engine: %v", err)
	}

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, time.Duration(cfg.SummaryTimeoutSeconds)*time.Second)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}
	summarizer := ai.NewSummarizer(gemini, cfg.SummaryInputChars)

	appCore, err := app.New(app.Config{
		Store:        dataStore,
		Tokens:       tokens,
		Objects:      objects,
		OCR:          engine,
		Summarizer:   summarizer,
		MaxTextChars: cfg.MaxTextChars,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                         appCore,
		RedisAddr:                   cfg.RedisAddr,
		RedisPassword:               cfg.RedisPassword,
		AllowedOrigin:               cfg.AllowedOrigin,
		CookieDomain:                cfg.CookieDomain,
		CookieSecure:                cfg.CookieSecure,
		MaxUploadBytes:              cfg.MaxUploadBytes,
		SignupRateLimitPerMinute:    cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:     cfg.LoginRateLimitPerMinute,
		RefreshRateLimitPerMinute:   cfg.RefreshRateLimitPerMinute,
		SummarizeRateLimitPerMinute: cfg.SummarizeRateLimitPerMinute,
		TrustedProxies:              trusted,
	})
	if err != nil {
		log.Fatalf("failed to init http server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	if err := dataStore.Close(); err != nil {
		logger.Error("close store", "err", err)
	}
}
