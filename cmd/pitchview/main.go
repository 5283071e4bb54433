package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/your-org/pitchview/internal/api"
	"github.com/your-org/pitchview/internal/api/ws"
	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/config"
	"github.com/your-org/pitchview/internal/ingest"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/observability"
	"github.com/your-org/pitchview/internal/queue"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	videoPath := flag.String("video", "", "upload this video on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting pitchview", "port", cfg.Server.Port, "backend", cfg.Backend.BaseURL)

	unit, _ := models.ParseLengthUnit(cfg.Playback.DistanceUnit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := session.Options{
		Interval:         cfg.Playback.Interval,
		Window:           cfg.Playback.Window,
		LegacyStreamPath: cfg.Backend.LegacyStreamPath,
	}

	// Optional history mirror
	var db *storage.PostgresStore
	if cfg.Database.Enabled() {
		db, err = storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Warn("ensure postgres schema", "error", err)
		}
		opts.Recorder = db
	}

	// Optional frame archive
	var minioStore *storage.MinIOStore
	if cfg.MinIO.Enabled() {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		opts.Archive = minioStore
	}

	// WebSocket hub
	hub := ws.NewHub(unit)
	go hub.Run(ctx)
	opts.Broadcasters = append(opts.Broadcasters, hub)

	// Optional analysis events
	var producer *queue.Producer
	if cfg.NATS.Enabled() {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		opts.Broadcasters = append(opts.Broadcasters, queue.NewSessionPublisher(producer))
	}

	client, err := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout,
		backend.WithUploadTimeout(cfg.Backend.UploadTimeout))
	if err != nil {
		slog.Error("create backend client", "error", err)
		os.Exit(1)
	}
	streams := ingest.NewController(ingest.NewWebsocketDialer(cfg.Backend.RequestTimeout), client.StreamURL)
	opts.Backend = client
	opts.Streams = streams

	ctrl := session.NewController(opts)

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		LengthUnit: unit,
		Session:    ctrl,
		Backend:    client,
		Hub:        hub,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
	})

	// Uploads and websocket viewers are long-lived; no write timeout.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if *videoPath != "" {
		go uploadOnStart(ctx, ctrl, *videoPath)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down pitchview...")
	ctrl.Close()
	streams.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("pitchview stopped")
}

func uploadOnStart(ctx context.Context, ctrl *session.Controller, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("open video", "path", path, "error", err)
		return
	}
	defer f.Close()

	s, err := ctrl.StartAnalysis(ctx, filepath.Base(path), f)
	if err != nil {
		slog.Error("start analysis", "path", path, "error", err)
		return
	}
	slog.Info("analysis started", "job_id", s.JobID, "filename", s.Filename)
}
