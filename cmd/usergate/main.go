// Package main is the entrypoint for the usergate server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/directory/graph"
	"github.com/iotfleet/usergate/internal/httpclient"
	"github.com/iotfleet/usergate/internal/identity"
	"github.com/iotfleet/usergate/internal/platform/logutil"
	platformtls "github.com/iotfleet/usergate/internal/platform/tls"
	"github.com/iotfleet/usergate/internal/server"
	"github.com/iotfleet/usergate/internal/users"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalOrigin := flag.String("external-origin", "", "External origin (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	authMode := flag.String("auth-mode", "", "Caller auth mode: key or off (overrides config)")
	tenantID := flag.String("directory-tenant-id", "", "Directory tenant ID (overrides config)")
	clientID := flag.String("directory-client-id", "", "Directory client ID (overrides config)")
	clientSecret := flag.String("directory-client-secret", "", "Directory client secret (overrides config)")
	baseURL := flag.String("directory-base-url", "", "Directory API base URL (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	hashKey := flag.String("hash-key", "", "Print the bcrypt hash of a function key and exit")
	flag.Parse()

	// Provisioning helper: hash a function key for auth.key_hashes
	if *hashKey != "" {
		hash, err := identity.HashKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to hash key:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			ExternalOrigin:        externalOrigin,
			TLSMode:               tlsMode,
			AuthMode:              authMode,
			DirectoryTenantID:     tenantID,
			DirectoryClientID:     clientID,
			DirectoryClientSecret: clientSecret,
			DirectoryBaseURL:      baseURL,
			LoggingLevel:          loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create logger with configured level
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logutil.ParseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Create outbound HTTP client
	httpClient, err := httpclient.New(&cfg.OutboundHTTP)
	if err != nil {
		logger.Error("failed to create outbound HTTP client", "error", err)
		os.Exit(1)
	}

	// Create directory client and operation service
	dir := graph.New(&cfg.Directory, httpClient, logger)
	svc := users.NewService(dir, &cfg.Directory, logger)

	// Create caller authentication
	keyAuth := identity.NewKeyAuth(cfg.Auth.Mode, cfg.Auth.KeyHashes)
	if !keyAuth.Enabled() {
		logger.Warn("caller authentication is disabled, all requests are accepted")
	}

	// Create and start server
	srv, err := server.New(cfg, logger, &server.Deps{
		Directory: dir,
		Users:     svc,
		KeyAuth:   keyAuth,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Extra root CAs for the ACME directory, if configured
	if cfg.TLS.Mode == "acme" {
		pool, err := platformtls.BuildRootCAPool(cfg.OutboundHTTP.CAFile, cfg.OutboundHTTP.CADir)
		if err != nil {
			logger.Error("failed to build root CA pool", "error", err)
			os.Exit(1)
		}
		srv.SetRootCAPool(pool)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "listen_addr", cfg.ListenAddr, "tls_mode", cfg.TLS.Mode)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
