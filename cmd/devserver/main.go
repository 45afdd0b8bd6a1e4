package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bizbook/core/internal/config"
	"bizbook/core/internal/httpapi"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
	"bizbook/core/internal/store/memory"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := memory.NewSeeded()
	logger.Info("repository: in-memory, seeded")

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	if err := auth.EnsureUser(ctx, cfg.DevUsername, cfg.DevPassword, "owner"); err != nil {
		logger.WithError(err).Fatal("could not create development user")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	api := httpapi.New(repo, auth, logger, "*").WithMetrics(metrics.Handler(registry))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("dev entity service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.TrimSpace(cfg.DevUsername) == "" {
		return fmt.Errorf("DEV_USERNAME must not be empty")
	}
	if len(cfg.DevPassword) < 8 {
		return fmt.Errorf("DEV_PASSWORD must be set and at least 8 characters")
	}
	if err := validatePasswordStrength(cfg.DevPassword); err != nil {
		return fmt.Errorf("DEV_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects passwords made of one repeated character,
// plain digit runs, or entries from a short list of common choices.
func validatePasswordStrength(password string) error {
	known := map[string]bool{
		"password": true, "password1": true, "12345678": true, "123456789": true,
		"qwertyui": true, "qwerty123": true, "owner123": true, "admin123": true,
		"letmein1": true, "changeme": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}

	allDigits := true
	for i := 0; i < len(password); i++ {
		if password[i] < '0' || password[i] > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		return fmt.Errorf("digits-only password not allowed")
	}

	return nil
}
