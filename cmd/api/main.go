package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/app"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/auth"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/config"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/diskstore"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/ratelimit"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration failed: %v", err)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store := diskstore.New(cfg.UniversePath)

	var remoteClient remote.RepositoryClient
	if strings.TrimSpace(cfg.GitDir) != "" {
		logger.Info("using local git directory as remote", zap.String("dir", cfg.GitDir))
		remoteClient = remote.NewGitDir(cfg.GitDir)
	} else {
		remoteClient = remote.NewGitHub(remote.GitHubConfig{
			Token:  cfg.GitHubToken,
			Owner:  cfg.GitHubOwner,
			Repo:   cfg.GitHubRepo,
			Branch: cfg.GitHubBranch,
			Path:   cfg.GitHubContentPath,
		})
	}

	var limiter ratelimit.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for login rate limiting")
		redisLimiter, err := ratelimit.NewRedis(cfg.RedisURL, cfg.LoginMaxAttempts, cfg.LoginWindow)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		memoryLimiter := ratelimit.NewMemory(cfg.LoginMaxAttempts, cfg.LoginWindow)
		defer memoryLimiter.Close()
		limiter = memoryLimiter
	}

	authSvc := auth.New(cfg.SessionSecret, cfg.AdminPasswordHash, cfg.AdminPassword, limiter, cfg.SessionTTL, logger)
	service := app.New(store, remoteClient, authSvc, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("horizon API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
