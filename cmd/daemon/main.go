// Command daemon runs the ytdlder service: it resolves media formats,
// downloads and merges elementary streams, and publishes the results over
// HTTP with websocket progress reporting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ytdlder/ytdlder/internal/api"
	"github.com/ytdlder/ytdlder/internal/config"
	"github.com/ytdlder/ytdlder/internal/ffmpeg"
	"github.com/ytdlder/ytdlder/internal/log"
	"github.com/ytdlder/ytdlder/internal/pipeline"
	"github.com/ytdlder/ytdlder/internal/progress"
	"github.com/ytdlder/ytdlder/internal/provider"
	"github.com/ytdlder/ytdlder/internal/stage"
	"github.com/ytdlder/ytdlder/internal/storage"
	"github.com/ytdlder/ytdlder/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownGrace = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytdlder %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(); err != nil {
		logger := log.WithComponent("daemon")
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "ytdlder",
	})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("version", version).
		Str("listen", cfg.ListenAddr).
		Str("data_dir", cfg.DataDir).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	artifacts, err := store.NewDiskStore(cfg.ArtifactDir())
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	if err := os.MkdirAll(cfg.StagingDir(), 0o750); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	staging := stage.NewStore(cfg.StagingDir())

	runner := ffmpeg.NewRunner(cfg.FFmpegBin, cfg.FFmpegKillTimeout)
	if err := runner.Probe(ctx); err != nil {
		return err
	}

	var uploader pipeline.Uploader
	if cfg.Storage.Enabled {
		publisher, err := storage.New(ctx, storage.Options{
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			Attempts:      cfg.Storage.Attempts,
			BaseDelay:     cfg.Storage.BaseDelay,
		})
		if err != nil {
			return fmt.Errorf("configure durable storage: %w", err)
		}
		uploader = publisher
		logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("durable storage enabled")
	}

	hub := progress.NewHub()
	client := provider.NewYouTube(nil)

	pipe := pipeline.New(client, artifacts, staging, runner, uploader, hub, pipeline.Options{
		PublicBaseURL:       cfg.SiteURL,
		MaxConcurrentMerges: int64(cfg.MaxConcurrentMerges),
		FetchTimeout:        cfg.FetchTimeout,
		MergeTimeout:        cfg.MergeTimeout,
		UploadTimeout:       cfg.UploadTimeout,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(client, pipe, artifacts, hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
