package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/config"
	"github.com/afroash/climate-node/internal/mqtt"
	"github.com/afroash/climate-node/internal/server"
	"github.com/afroash/climate-node/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional env file with SERVER_* and MQTT_* overrides")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	logger.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Bool("tls", cfg.Server.TLSEnabled()).
		Msg("Starting sensor server")

	store := server.NewMemoryStore(cfg.Database.MemoryCapacity)
	var opts server.Options

	var sqliteStore *storage.SQLiteStore
	var dbWriter *storage.DBWriter
	var retentionCleaner *storage.RetentionCleaner

	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		sqliteStore, err = storage.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			log.Fatalf("Failed to create SQLite store: %v", err)
		}

		warmStore(store, sqliteStore, cfg.Database.MemoryCapacity, logger)

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, logger)

		retentionCleaner = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			Retention:     time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour,
			CleanupPeriod: cfg.Database.CleanupPeriod,
		}, logger)

		opts.History = sqliteStore
		opts.Writer = dbWriter
		opts.Components = map[string]func() any{
			"db_writer": func() any { return dbWriter.Stats() },
			"retention": func() any { return retentionCleaner.Stats() },
		}
	}

	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, logger)
		if err != nil {
			// The mirror is optional; reports are still accepted without it
			logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT mirror disabled")
		} else {
			opts.Publisher = publisher
		}
	}

	live := server.NewLiveHandler(store, logger, cfg.Server.AllowedOrigins...)
	opts.Live = live
	if opts.Components == nil {
		opts.Components = make(map[string]func() any)
	}
	opts.Components["live_clients"] = func() any { return live.ClientCount() }

	api := server.NewAPIHandler(store, opts, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewRouter(api, live, cfg.Server.AllowedOrigins, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server listening")
		var err error
		if cfg.Server.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	live.Close()

	if dbWriter != nil {
		dbWriter.Stop()
		logger.Info().Msg("DBWriter stopped")
	}
	if retentionCleaner != nil {
		retentionCleaner.Stop()
		logger.Info().Msg("RetentionCleaner stopped")
	}
	if sqliteStore != nil {
		sqliteStore.Close()
		logger.Info().Msg("SQLiteStore closed")
	}
	if publisher != nil {
		publisher.Close()
	}

	logger.Info().Msg("Server stopped")
}

// warmStore loads the newest persisted records and the status row into memory
// so a restart does not blank the dashboard.
func warmStore(store *server.MemoryStore, db *storage.SQLiteStore, capacity int, logger zerolog.Logger) {
	records, err := db.GetRecentSensorData(capacity)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load recent sensor data")
	}
	status, err := db.GetDeviceStatus()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load device status")
	}
	store.Load(records, status)
	logger.Info().Int("records", len(records)).Bool("status", status != nil).Msg("Memory store warmed")
}
