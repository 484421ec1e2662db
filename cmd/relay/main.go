package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"livecast/native/internal/config"
	"livecast/native/internal/metrics"
	"livecast/native/internal/relay"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := logrus.WithField("component", "main")

	cfg, err := config.LoadRelay()
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}
	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Fatalf("log level: %v", err)
	}
	logrus.SetLevel(lvl)

	collector := metrics.NewPrometheusRelayCollector()
	server := relay.NewServer(relay.NewHub(collector))

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.Router(cfg.Path, collector.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("relay listening on %s%s", cfg.Address, cfg.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}
	logger.Infof("shutdown complete")
}
