// Command watchyd runs the Watchy audit engine behind an HTTP API,
// bootstrapped the way the reference implementation's agent daemon starts
// up: parse flags, build a logger, load configuration, construct the
// signer and job store, start the server, then wait for a shutdown signal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watchy-labs/watchy/internal/api"
	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/config"
	"github.com/watchy-labs/watchy/internal/engine"
	"github.com/watchy-labs/watchy/internal/explorer"
	"github.com/watchy-labs/watchy/internal/jobstore"
	"github.com/watchy-labs/watchy/internal/logging"
	"github.com/watchy-labs/watchy/internal/narrative"
	"github.com/watchy-labs/watchy/internal/signer"
	"github.com/watchy-labs/watchy/internal/submission"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.New(logging.DefaultConfig())

	appConfig, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		appConfig.Logging.Level = *logLevel
	}
	logger = logging.New(logging.Config(appConfig.Logging))

	logger.Info("starting watchyd...")

	if _, ok := chains.Get(appConfig.Chains.DefaultChainID); !ok {
		logger.Fatalf("default chain %d is not configured", appConfig.Chains.DefaultChainID)
	}

	sig, err := signer.FromConfig(appConfig.Signer)
	if err != nil {
		logger.Fatalf("failed to construct signer: %v", err)
	}
	if addr, ok := sig.Address(); ok {
		logger.Infof("signer configured, address %s", addr.Hex())
	} else {
		logger.Warn("no signing key configured; reports will be unsigned and reputation writes disabled")
	}

	store, rateLimiter, closeStore := buildJobStore(appConfig, logger)
	defer closeStore()

	var uploader submission.Uploader
	if appConfig.Storage.APIKey != "" {
		uploader = submission.NewPinataUploader(appConfig.Storage.APIURL, appConfig.Storage.APIKey)
	} else {
		logger.Warn("no storage API key configured; report upload disabled")
	}

	var explorerStore *explorer.Store
	if appConfig.Explorer.DatabaseURL != "" {
		explorerStore, err = explorer.Open(context.Background(), appConfig.Explorer.DatabaseURL)
		if err != nil {
			logger.Warnf("explorer store unavailable, continuing without audit history: %v", err)
			explorerStore = nil
		} else {
			defer explorerStore.Close()
		}
	}

	narrator := narrative.New(appConfig.LLM)

	eng := engine.New(engine.Config{
		Store:          store,
		Signer:         sig,
		Uploader:       uploader,
		RateLimiter:    rateLimiter,
		MaxConcurrency: int64(appConfig.Server.MaxConcurrency),
		WeighSecurity:  appConfig.Scoring.WeighSecurity,
	})

	server := api.New(appConfig, eng, store, sig, explorerStore, narrator, logger)
	eng.SetNotifier(server)
	logger.AddHook(logging.NewCorrelationHook(server.ProgressSink()))

	server.Start()
	logger.Infof("watchyd listening on :%d", appConfig.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down watchyd...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("watchyd stopped")
}

func buildJobStore(cfg *config.AppConfig, logger interface{ Fatalf(string, ...any) }) (jobstore.Store, jobstore.RateLimiter, func()) {
	if cfg.Store.RedisURL == "" {
		mem := jobstore.NewMemoryStore()
		limiter := jobstore.NewMemoryRateLimiter(10, time.Hour)
		return mem, limiter, mem.Close
	}
	client, err := jobstore.Connect(cfg.Store.RedisURL)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	store := jobstore.NewRedisStore(client)
	limiter := jobstore.NewRedisRateLimiter(client, 10, time.Hour)
	return store, limiter, func() {}
}
