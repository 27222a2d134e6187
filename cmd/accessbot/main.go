package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailscale/accessbot/config"
	"github.com/tailscale/accessbot/internal/access"
	"github.com/tailscale/accessbot/internal/bot"
	"github.com/tailscale/accessbot/internal/chat"
	"github.com/tailscale/accessbot/internal/logging"
	"github.com/tailscale/accessbot/internal/store"
	"github.com/tailscale/accessbot/internal/store/bolt"
	"github.com/tailscale/accessbot/internal/store/sqlite"
	"github.com/tailscale/accessbot/internal/tailscale"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})

	creds, err := config.LoadCredentials()
	if err != nil {
		logger.Error("Failed to load credentials", "error", err)
		os.Exit(1)
	}
	if !creds.Configured() {
		logger.Warn("Device API credentials are not configured; access requests will be rejected")
	}

	kv, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()
	kv = logging.NewKVLogger(kv, logger)

	chatClient := chat.NewAPIClient(creds.ChatBaseURL, creds.ChatToken, logger)

	var ts *tailscale.Client
	var deviceAPI access.DeviceAPI
	if creds.Configured() {
		ts = tailscale.NewClient(context.Background(), tailscale.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		}, kv, logger)
		deviceAPI = ts
	}

	engine := access.NewEngine(cfg.Profiles, chatClient, deviceAPI, chatClient, bot.Renderer{}, logger)

	b := bot.New(bot.Config{
		Profiles:      cfg.Profiles,
		WebhookSecret: creds.WebhookSecret,
		Configured:    creds.Configured(),
	}, engine, ts, chatClient, logger)

	router := bot.NewRouter(bot.RouterConfig{
		Bot:           b,
		WebhookSecret: creds.WebhookSecret,
		Logger:        logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("Starting accessbot", "addr", addr, "profiles", len(cfg.Profiles))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.KV, error) {
	switch cfg.Backend {
	case "bolt":
		return bolt.Open(cfg.Path, logger)
	default:
		return sqlite.New(cfg.Path, logger)
	}
}
