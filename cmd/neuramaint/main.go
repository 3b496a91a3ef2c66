package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/LuizPaulo1002/neuramaint/internal/alert"
	"github.com/LuizPaulo1002/neuramaint/internal/api"
	"github.com/LuizPaulo1002/neuramaint/internal/config"
	"github.com/LuizPaulo1002/neuramaint/internal/events"
	"github.com/LuizPaulo1002/neuramaint/internal/ingest"
	"github.com/LuizPaulo1002/neuramaint/internal/metrics"
	"github.com/LuizPaulo1002/neuramaint/internal/model"
	"github.com/LuizPaulo1002/neuramaint/internal/predict"
	"github.com/LuizPaulo1002/neuramaint/internal/sim"
	"github.com/LuizPaulo1002/neuramaint/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting NeuraMaint telemetry service")

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when configured, otherwise an in-memory store
	// seeded with demo equipment for standalone simulation runs.
	var (
		readings store.ReadingStore
		sensors  store.SensorStore
		alerts   store.AlertStore
	)
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure schema", "error", err)
			os.Exit(1)
		}
		readings, sensors, alerts = pg, pg, pg
		logger.Info("Postgres store initialized")
	} else {
		mem := store.NewMemoryStore()
		seedDemoData(mem)
		readings, sensors, alerts = mem, mem, mem
		logger.Info("In-memory store initialized with demo data")
	}

	// Event publishing is optional; without NATS the pipeline runs alone.
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = events.NewNATSPublisher(nc, logger)
		logger.Info("Connected to NATS", "url", cfg.NATSURL)
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Prediction cache: Redis when configured (shared across instances),
	// otherwise the in-process LRU.
	var cache predict.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = predict.NewRedisCache(client, cfg.CacheTTL, logger)
		logger.Info("Redis prediction cache initialized", "addr", cfg.RedisAddr)
	} else {
		cache = predict.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
	}

	predictor := predict.NewClient(cfg.PredictionURL, cache, m, logger,
		predict.WithTimeout(cfg.PredictionTimeout))

	engine := alert.NewEngine(alerts, sensors, alert.EngineConfig{
		AttentionAlerts: cfg.AttentionAlerts,
		DedupeCooldown:  cfg.DedupeCooldown,
	}, m, logger)
	lifecycle := alert.NewLifecycle(alerts, sensors, m, logger)

	pipeline := ingest.NewPipeline(predictor, engine, publisher, m, logger)
	dispatcher := ingest.NewDispatcher(cfg.QueueSize, cfg.Workers, pipeline.Process, logger)
	dispatcher.Start()

	ingestor, err := ingest.NewIngestor(readings, sensors, dispatcher, publisher, m, logger)
	if err != nil {
		logger.Error("Failed to initialize ingestor", "error", err)
		os.Exit(1)
	}

	profiles := sim.DefaultProfiles()
	if cfg.ProfilesPath != "" {
		profiles, err = sim.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			logger.Error("Failed to load sensor profiles", "error", err)
			os.Exit(1)
		}
		logger.Info("Sensor profiles loaded", "path", cfg.ProfilesPath)
	}
	generator := sim.NewGenerator(ingestor, sensors, profiles, logger)

	// Simulation-only feedback: a critical alert occasionally nudges the
	// generator into an early failure to make demonstrations realistic.
	engine.SetEarlyFailureHook(func(sensorID int64) {
		if err := generator.ForceFailure(sensorID); err != nil {
			logger.Debug("Early failure signal ignored", "sensor_id", sensorID, "error", err)
		}
	})

	if cfg.SimAutoStart {
		simCfg := sim.DefaultConfig()
		simCfg.Interval = cfg.SimInterval
		simCfg.FailureProbability = cfg.SimFailureProbability
		simCfg.NoiseLevel = cfg.SimNoiseLevel
		if err := generator.Start(ctx, simCfg); err != nil {
			logger.Error("Failed to start generator", "error", err)
			os.Exit(1)
		}
	}

	server := api.NewServer(ingestor, lifecycle, generator, predictor, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("NeuraMaint telemetry service started")
	<-sigChan

	logger.Info("Shutting down...")
	cancel()

	// Stop taking HTTP traffic before tearing down the pipeline so a
	// late reading submission never hits a stopped dispatcher.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	generator.Stop()
	dispatcher.Stop()

	logger.Info("NeuraMaint telemetry service stopped")
}

// seedDemoData loads a small plant into the memory store: two pumps with a
// full sensor complement and one technician assignment.
func seedDemoData(mem *store.MemoryStore) {
	mem.AddEquipment(&model.Equipment{ID: 1, Name: "Pump A", Location: "Hall 1"})
	mem.AddEquipment(&model.Equipment{ID: 2, Name: "Pump B", Location: "Hall 2"})

	mem.AddSensor(&model.Sensor{ID: 1, EquipmentID: 1, Type: model.SensorTemperature, Name: "temp-a1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 2, EquipmentID: 1, Type: model.SensorVibration, Name: "vib-a1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 3, EquipmentID: 1, Type: model.SensorPressure, Name: "press-a1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 4, EquipmentID: 2, Type: model.SensorFlow, Name: "flow-b1", Active: true})
	mem.AddSensor(&model.Sensor{ID: 5, EquipmentID: 2, Type: model.SensorRotation, Name: "rot-b1", Active: true})

	mem.Assign("tech-1", 1)
}
