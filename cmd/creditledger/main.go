package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"creditledger/internal/auth"
	"creditledger/internal/backend"
	"creditledger/internal/cli"
	apphttp "creditledger/internal/http"
	applog "creditledger/internal/log"
	"creditledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)
	appLogger := applog.New(applog.Config{Handler: logger.Handler(), Component: applog.ComponentApp})

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	authOpts := auth.Options{
		SigningKey: []byte(cfg.AuthGatewayKey),
		SessionTTL: cfg.SessionTTL,
		Issuer:     cfg.AuthGatewayURL,
		Logger:     logger.With("component", applog.ComponentAuth),
	}
	if cfg.GoogleOAuthEnabled() {
		google, err := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret)
		if err != nil {
			logger.Error("Failed to initialize Google sign-in", "error", err)
			os.Exit(1)
		}
		authOpts.Google = google
		logger.Info("Google sign-in enabled")
	}
	gateway, err := auth.NewService(be.Users, authOpts)
	if err != nil {
		logger.Error("Failed to initialize auth gateway", "error", err)
		os.Exit(1)
	}
	unsubscribe := gateway.OnAuthStateChange(func(event auth.Event, session *auth.Session) {
		if session != nil {
			logger.Debug("Auth state changed", "event", string(event), "user_id", session.User.ID)
			return
		}
		logger.Debug("Auth state changed", "event", string(event))
	})
	defer unsubscribe()

	actions, err := services.NewAuthActions(gateway, cfg.SiteURL, appLogger)
	if err != nil {
		logger.Error("Failed to initialize auth actions", "error", err)
		os.Exit(1)
	}
	ledger := services.NewLedgerService(be.Ledger, be.Events, appLogger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:  ledger,
		Actions: actions,
		Gateway: gateway,
		Ready:   be.Ready,
		Logger:  appLogger,
	})
	if err != nil {
		logger.Error("Failed to initialize HTTP server", "error", err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting creditledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"site_url", cfg.SiteURL,
		"events", be.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
