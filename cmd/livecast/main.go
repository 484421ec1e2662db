package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"livecast/native/internal/api"
	"livecast/native/internal/config"
	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"
	sigclient "livecast/native/internal/signal"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const helpText = `livecast - Broadcast or watch a live WebRTC stream through a signaling relay

Usage:
  livecast broadcast [broadcast-id]
  livecast view <broadcast-id>

broadcast plays LIVECAST_VIDEO_SOURCE (H264 Annex-B) and optionally
LIVECAST_AUDIO_SOURCE (Ogg/Opus) as the camera and microphone. A random
broadcast id is generated when none is given.

view writes the raw H264 stream to stdout. Pipe to ffplay or ffmpeg for
playback or recording.

Environment Variables:
  LIVECAST_SIGNAL_URL           Relay WebSocket URL (required), e.g. ws://localhost:8090/ws
  LIVECAST_STUN_URL             STUN server (default stun:stun.l.google.com:19302)
  LIVECAST_TURN_URL             TURN server, with LIVECAST_TURN_USERNAME / LIVECAST_TURN_PASSWORD
  LIVECAST_ICE_CONFIG_URL       Endpoint issuing TURN credentials, with LIVECAST_TOKEN
  LIVECAST_NEGOTIATION_TIMEOUT  Wait for the remote description (default 30s, 0 disables)
  LIVECAST_PING_INTERVAL        Signaling keepalive (default 20s, 0 disables)
  LIVECAST_METRICS_ADDR         Serve Prometheus metrics on this address
  LIVECAST_LOG_LEVEL            trace, debug, info, warn, error (default info)
  LIVECAST_CONFIG               Optional YAML file with the same settings

Examples:
  # Watch a broadcast
  livecast view 0b7c... | ffplay -f h264 -

  # Record to MP4
  livecast view 0b7c... | ffmpeg -f h264 -i - -c copy output.mp4

Options:
  -h, --help  Show this help message
`

var logger = logrus.WithField("component", "main")

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Print(helpText)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := setupLogging(cfg.Log.Level); err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received %s, shutting down", sig)
		cancel(nil)
	}()

	var collector metrics.Collector = metrics.Nop{}
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheusCollector()
		collector = prom
		serveMetrics(ctx, cfg.MetricsAddr, prom.Handler())
	}

	servers, err := iceServers(ctx, cfg)
	if err != nil {
		logger.Fatalf("resolve ICE servers: %v", err)
	}

	a := app{cfg: cfg, servers: servers, metrics: collector}

	switch cmd := os.Args[1]; cmd {
	case "broadcast":
		id := domain.NewBroadcastID()
		if len(os.Args) > 2 {
			id = domain.BroadcastID(os.Args[2])
		}
		err = a.broadcast(ctx, cancel, id)
	case "view":
		if len(os.Args) < 3 {
			fmt.Fprint(os.Stderr, helpText)
			os.Exit(2)
		}
		err = a.view(ctx, cancel, domain.BroadcastID(os.Args[2]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, helpText)
		os.Exit(2)
	}

	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("done")
}

func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return nil
}

// iceServers uses the static configuration, or asks the backend for
// fresh TURN credentials when an ICE config URL is set.
func iceServers(ctx context.Context, cfg *config.Config) ([]domain.ICEServer, error) {
	if cfg.ICE.ConfigURL == "" {
		return cfg.ICE.ICEServers(), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger.Infof("fetching ICE servers from %s", cfg.ICE.ConfigURL)
	fetched, err := api.NewClient(cfg.ICE.ConfigURL, cfg.ICE.Token).FetchICEServers(fetchCtx)
	if err != nil {
		return nil, err
	}
	return append([]domain.ICEServer{{URLs: []string{cfg.ICE.STUNURL}}}, fetched...), nil
}

func serveMetrics(ctx context.Context, addr string, h http.Handler) {
	r := mux.NewRouter()
	r.Handle("/metrics", h).Methods(http.MethodGet)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (a app) signalClient() *sigclient.Client {
	opts := []sigclient.Option{
		sigclient.WithPingInterval(a.cfg.PingInterval),
		sigclient.WithMetrics(a.metrics),
	}
	if a.cfg.ICE.Token != "" {
		opts = append(opts, sigclient.WithHeader(http.Header{"Authorization": {"Bearer " + a.cfg.ICE.Token}}))
	}
	return sigclient.NewClient(a.cfg.SignalURL, opts...)
}
