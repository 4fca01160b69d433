package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/config"
	"github.com/dukerupert/postdeck/internal/database"
	"github.com/dukerupert/postdeck/internal/logging"
	"github.com/dukerupert/postdeck/internal/media"
	"github.com/dukerupert/postdeck/internal/secret"
	"github.com/dukerupert/postdeck/internal/server"
	"github.com/dukerupert/postdeck/internal/session"
	"github.com/dukerupert/postdeck/internal/store"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var sealer *secret.Sealer
	if cfg.StatePassphrase != "" {
		sealer = secret.NewSealer(cfg.StatePassphrase)
	}
	state := store.NewStateStore(db, sealer)

	sess := session.New(state, logger.With("component", "session"))
	if err := sess.Load(); err != nil {
		// A sealed token without the passphrase starts the console signed
		// out; the stored value is overwritten by the next login.
		logger.Warn("could not load persisted session", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := api.NewClient(cfg.APIURL, sess,
		api.WithTimeout(cfg.APITimeout),
		api.WithMetrics(api.NewMetrics(registry)),
		api.WithLogger(logger.With("component", "api")),
	)

	if cfg.SkipRestore {
		logger.Info("trusting persisted session without revalidation")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.APITimeout)
		if err := sess.Restore(ctx, client); err != nil {
			logger.Warn("persisted session discarded", "error", err)
		}
		cancel()
	}
	logger.Info("session ready", "state", sess.State().String())

	uploader := media.New(media.Config{
		Endpoint:  cfg.MediaEndpoint,
		Bucket:    cfg.MediaBucket,
		Region:    cfg.MediaRegion,
		AccessKey: cfg.MediaAccessKey,
		SecretKey: cfg.MediaSecretKey,
		PublicURL: cfg.MediaPublicURL,
		MaxBytes:  cfg.MediaMaxBytes,
	}, logger)
	if uploader.Enabled() {
		logger.Info("media uploads enabled", "bucket", cfg.MediaBucket)
	}

	srv, err := server.New(sess, client, registry, logger, server.WithUploader(uploader))
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.APITimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup of rate limiter windows
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go srv.RateLimiter().Run(cleanupCtx, 5*time.Minute)

	go func() {
		logger.Info("postdeck running", "url", "http://localhost:"+cfg.Port, "api_url", cfg.APIURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	srv.Hub().Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
