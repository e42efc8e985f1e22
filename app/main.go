package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/channel-feed/app/api"
	"github.com/lysyi3m/channel-feed/app/cache"
	"github.com/lysyi3m/channel-feed/app/cfg"
	"github.com/lysyi3m/channel-feed/app/feed"
	"github.com/lysyi3m/channel-feed/app/fetcher"
	"github.com/lysyi3m/channel-feed/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	if appConfig.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting Channel Feed server", "version", appConfig.Version)

	httpClient := &http.Client{Timeout: appConfig.GetRequestTimeout()}

	channelFetcher, err := fetcher.NewFetcher(httpClient, fetcher.Config{
		BaseURL:     appConfig.UpstreamURL(),
		StaticProxy: appConfig.StaticProxy,
		UserAgent:   appConfig.UserAgent,
	})
	if err != nil {
		slog.Error("Failed to create fetcher", "error", err)
		os.Exit(1)
	}

	resultCache, err := cache.New[feed.Entry](appConfig.GetCacheTTL(), appConfig.GetCacheMaxSize())
	if err != nil {
		slog.Error("Failed to create result cache", "error", err)
		os.Exit(1)
	}

	aggregator := feed.NewAggregator(channelFetcher, resultCache, feed.Config{
		Channels:       appConfig.Channels,
		DefaultChannel: appConfig.DefaultChannel,
	})
	slog.Info("Channels configured", "channels", appConfig.Channels, "default", appConfig.DefaultChannel)

	slog.Info("Starting background scheduler", "workers", appConfig.WorkerCount, "interval", appConfig.GetWarmupInterval().String())
	scheduler := tasks.NewScheduler(aggregator, appConfig.Channels, appConfig.GetWarmupInterval(), appConfig.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	media := api.NewMediaProxy(api.NewMediaClient(appConfig.GetRequestTimeout()), appConfig.UserAgent)
	apiHandler := api.NewHandler(aggregator, feed.NewGenerator(appConfig.Version), resultCache, scheduler,
		media, appConfig.SiteURL(), appConfig.Version)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey)

	// No write timeout: media responses are streamed
	httpServer := &http.Server{
		Addr:        ":" + appConfig.Port,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port, "site_url", appConfig.SiteURL())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Channel Feed server shutdown complete")
}
