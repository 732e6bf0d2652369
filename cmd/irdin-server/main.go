package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newearthmartin/irdin/internal/api"
	"github.com/newearthmartin/irdin/internal/catalog"
	"github.com/newearthmartin/irdin/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	ConfigPath string
	Listen     string
	DBPath     string
	MediaDir   string
	SeedPath   string
	Origins    string
)

func init() {
	flag.StringVar(&ConfigPath, "config", "", "Path to YAML config file (default: $IRDIN_CONFIG)")
	flag.StringVar(&Listen, "listen", "", "HTTP listen address (default: $IRDIN_LISTEN or :8000)")
	flag.StringVar(&DBPath, "db", "", "Path to SQLite database (default: $IRDIN_DB_PATH)")
	flag.StringVar(&MediaDir, "media", "", "Directory served under /media/ (default: $IRDIN_MEDIA_DIR)")
	flag.StringVar(&SeedPath, "seed", "", "YAML seed file imported at startup")
	flag.StringVar(&Origins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.Parse()
}

func main() {
	cfg, err := config.FromEnvironment(ConfigPath)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if Listen != "" {
		cfg.Listen = Listen
	}
	if DBPath != "" {
		cfg.DBPath = DBPath
	}
	if MediaDir != "" {
		cfg.MediaDir = MediaDir
	}
	if SeedPath != "" {
		cfg.SeedPath = SeedPath
	}
	if Origins != "" {
		cfg.AllowedOrigins = config.SplitList(Origins)
	}
	config.SetupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	store, err := catalog.Open(cfg.DBPath, catalog.WithPageSize(cfg.PageSize))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open catalogue")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close catalogue")
		}
	}()

	if cfg.SeedPath != "" {
		if _, err := store.ImportFile(ctx, cfg.SeedPath); err != nil {
			logrus.WithError(err).Fatal("Failed to import seed")
		}
	}

	talks, tracks, err := store.Counts(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to count catalogue")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(store, cfg.MediaDir, cfg.AllowedOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":   cfg.Listen,
			"db":     cfg.DBPath,
			"media":  cfg.MediaDir,
			"talks":  talks,
			"tracks": tracks,
		}).Info("Catalogue server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server error")
			cancel()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Graceful shutdown failed")
	}
}
