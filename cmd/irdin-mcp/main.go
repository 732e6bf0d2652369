package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/newearthmartin/irdin/internal/catalog"
	"github.com/newearthmartin/irdin/internal/config"
	"github.com/newearthmartin/irdin/internal/feedback"
	"github.com/newearthmartin/irdin/internal/mcp"
	"github.com/newearthmartin/irdin/internal/playback"
	"github.com/newearthmartin/irdin/internal/prefs"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/newearthmartin/irdin/internal/session"
	"github.com/sirupsen/logrus"
)

var (
	ConfigPath string
	APIURL     string
	LocalDB    string
)

func init() {
	flag.StringVar(&ConfigPath, "config", "", "Path to YAML config file (default: $IRDIN_CONFIG)")
	flag.StringVar(&APIURL, "api", "", "Catalogue API base URL (default: $IRDIN_API_URL)")
	flag.StringVar(&LocalDB, "db", "", "Search a local SQLite catalogue instead of the HTTP API")
	flag.Parse()
}

func main() {
	cfg, err := config.FromEnvironment(ConfigPath)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if APIURL != "" {
		cfg.APIURL = APIURL
	}
	config.SetupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	var svc search.Service
	if LocalDB != "" {
		store, err := catalog.Open(LocalDB, catalog.WithPageSize(cfg.PageSize))
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open catalogue")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close catalogue")
			}
		}()
		svc = store
		logrus.WithField("db", LocalDB).Info("Searching local catalogue")
	} else {
		svc = search.NewClient(cfg.ClientConfig())
		logrus.WithField("api", cfg.APIURL).Info("Searching catalogue API")
	}

	preferences, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open preferences")
	}

	bus := feedback.NewEventBus(256)
	defer func() {
		bus.Stop()
		stats := bus.Stats()
		logrus.WithFields(logrus.Fields{
			"published": stats.Published,
			"delivered": stats.Delivered,
			"dropped":   stats.Dropped,
		}).Debug("Event bus stopped")
	}()
	recorder := feedback.NewRecorder(100)
	recorder.Attach(bus)

	controller := search.NewController(svc,
		search.WithDebounce(cfg.Debounce),
		search.WithFields(preferences.LoadFields()),
		search.WithFieldStore(preferences),
		search.OnChange(mcp.SearchEvents(bus)),
	)
	defer controller.Close()

	sessions := session.NewManager(svc, playback.NewRegistry(),
		session.WithEventBus(bus),
		session.WithExportDir(cfg.ExportDir),
	)
	defer sessions.CloseAll()

	server := mcp.NewServer(controller, sessions, recorder)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("MCP server stopped")
	}
	logrus.Info("Shutting down")
}
