package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/busfleet/livetrack/cli/tracker/api"
	"github.com/busfleet/livetrack/cli/tracker/config"
	"github.com/busfleet/livetrack/cli/tracker/fleet"
	"github.com/busfleet/livetrack/cli/tracker/geocode"
	"github.com/busfleet/livetrack/cli/tracker/metrics"
	"github.com/busfleet/livetrack/cli/tracker/rest"
	"github.com/busfleet/livetrack/cli/tracker/routes"
	"github.com/busfleet/livetrack/cli/tracker/storage"
	"github.com/busfleet/livetrack/libs/live"
	"github.com/robfig/cron"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	configFilePath := ""
	flag.StringVar(&configFilePath, "c", "", "path to the YAML config file")
	flag.Parse()
	settings, err := getConfig(configFilePath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		return
	}

	configureLogging(settings)

	if err := applyMigrations(settings); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
		return
	}

	repository := storage.NewRepository(settings.SkipIdleSnapshots)
	if err := repository.LoadStorages(settings.Store); err != nil {
		log.Fatalf("Failed to initialize storages: %v", err)
		return
	}
	defer repository.Close()

	sink := storage.NewAsyncRepository(repository, 256, 4)

	collector := metrics.NewCollector()

	manager := fleet.NewManager(live.ChannelConfig{
		BaseURL:        settings.TrackingURL,
		ReconnectDelay: settings.GetReconnectDelay(),
		JitterFraction: settings.ReconnectJitter,
		PingInterval:   settings.GetPingInterval(),
	}, sink, collector)
	defer sink.Close()
	defer manager.Close()

	for _, busID := range settings.Buses {
		manager.Track(busID)
	}
	log.Infof("Tracking %d buses from %s", len(settings.Buses), settings.TrackingURL)

	if settings.RefreshCron != "" {
		c := cron.New()
		c.AddFunc(settings.RefreshCron, func() { manager.RefreshAll() })
		c.Start()
		log.Infof("Scheduled fleet-wide resync at %q", settings.RefreshCron)
	}

	var historian api.TripHistorian
	var editors *routes.Service
	if settings.RosterURL != "" {
		roster, err := rest.New(settings.RosterURL, 0)
		if err != nil {
			log.Fatalf("Failed to build roster client: %v", err)
			return
		}
		historian = roster

		if settings.GeocodeURL != "" {
			geocoder, err := geocode.New(settings.GeocodeURL, 0)
			if err != nil {
				log.Fatalf("Failed to build geocoding client: %v", err)
				return
			}
			editors = routes.NewService(roster, geocoder)
			log.Info("Route editing enabled")
		}
	}

	go runApi(manager, historian, editors, collector, settings)

	select {}
}

func getConfig(configFilePath string) (config.Settings, error) {
	if configFilePath == "" {
		return config.Settings{}, fmt.Errorf("config file path is not set")
	}

	c, err := config.New(configFilePath)
	if err != nil {
		return c, fmt.Errorf("failed to parse config: %v", err)
	}

	return c, nil
}

func configureLogging(settings config.Settings) {
	log.SetLevel(settings.GetLogLevel())

	consoleFmt := &log.TextFormatter{ForceColors: true, FullTimestamp: false}
	log.SetFormatter(consoleFmt)
	log.SetOutput(os.Stdout)

	if settings.LogFilePath != "" {
		logDir := filepath.Dir(settings.LogFilePath)
		if _, err := os.Stat(logDir); os.IsNotExist(err) {
			if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
				log.Fatalf("Failed to create log directory: %v", err)
			}
		}

		lumberjackLogger := &lumberjack.Logger{
			Filename:   settings.LogFilePath,
			MaxSize:    100,
			MaxBackups: 366,
			MaxAge:     settings.LogMaxAgeDays,
			Compress:   true,
		}

		fileFmt := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
		hook := lfshook.NewHook(lfshook.WriterMap{
			log.PanicLevel: lumberjackLogger,
			log.FatalLevel: lumberjackLogger,
			log.ErrorLevel: lumberjackLogger,
			log.WarnLevel:  lumberjackLogger,
			log.InfoLevel:  lumberjackLogger,
			log.DebugLevel: lumberjackLogger,
			log.TraceLevel: lumberjackLogger,
		}, fileFmt)

		log.AddHook(hook)
	}
}

func runApi(manager *fleet.Manager, historian api.TripHistorian, editors *routes.Service, collector *metrics.Collector, settings config.Settings) {
	handler := api.NewHandler(manager, historian, editors)
	controller := api.NewController(handler, collector.Handler())
	log.Infof("Starting API on port %d", settings.ApiPort)
	if err := controller.Run(settings.GetListenAddress()); err != nil {
		log.Fatal(err)
	}
}

// applyMigrations runs the pending schema migrations of the postgresql sink.
// It is a no-op unless both migrations_path and a postgresql storage section
// are configured.
func applyMigrations(settings config.Settings) error {
	pg, ok := settings.Store["postgresql"]
	if !ok || settings.MigrationsPath == "" {
		return nil
	}

	databaseUrl := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		pg["user"], pg["password"], pg["host"], pg["port"], pg["database"], pg["sslmode"])

	m, err := migrate.New(settings.MigrationsPath, databaseUrl)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			log.Info("No new migrations to apply")
			return nil
		}
		return err
	}

	log.Info("Migrations applied")
	return nil
}
