package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/api"
	"github.com/tohomedistance/tohomedistance/internal/api/handler"
	"github.com/tohomedistance/tohomedistance/internal/api/middleware"
	"github.com/tohomedistance/tohomedistance/internal/auth"
	"github.com/tohomedistance/tohomedistance/internal/config"
	"github.com/tohomedistance/tohomedistance/internal/database"
	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/events"
	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
	"github.com/tohomedistance/tohomedistance/internal/provider/resilience"
	"github.com/tohomedistance/tohomedistance/internal/routing"
	"github.com/tohomedistance/tohomedistance/internal/routing/amap"
	"github.com/tohomedistance/tohomedistance/internal/sensor"
	"github.com/tohomedistance/tohomedistance/internal/telemetry"
	"github.com/tohomedistance/tohomedistance/internal/worker"
)

func serve() {
	cfg, cfgErr := config.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", config.ServiceName).
		Str("version", Version).
		Logger()

	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("invalid configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting to-home distance service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceVersion = Version
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	registry := resilience.NewRegistry()

	ha := homeassistant.NewClient(homeassistant.ClientConfig{
		BaseURL:  cfg.HomeAssistant.URL,
		Token:    cfg.HomeAssistant.Token,
		Registry: registry,
		Logger:   log.With().Str("component", "homeassistant").Logger(),
	})

	directions := amap.NewClient(amap.ClientConfig{
		BaseURL:  cfg.AMapBaseURL,
		Registry: registry,
		Logger:   log.With().Str("component", "amap").Logger(),
	})
	router := routing.NewService(routing.ServiceConfig{
		Provider: directions,
		Logger:   log.With().Str("component", "routing").Logger(),
		Registry: registry,
		Meter:    tp.Meter,
	})

	var publisher sensor.Publisher = sensor.NewHostPublisher(ha)
	if cfg.Kafka.Enabled() {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()
		publisher = sensor.NewMultiPublisher(publisher, func(err error) {
			log.Warn().Err(err).Msg("secondary state publish failed")
		}, kafkaPublisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	manager := sensor.NewManager(sensor.ManagerConfig{
		States:    ha,
		Router:    router,
		Publisher: publisher,
		Logger:    log.With().Str("component", "sensor").Logger(),
		Tracer:    tp.Tracer,
	})

	checks := []handler.Check{{Name: homeassistant.ClientName, Probe: ha.Ping}}

	var repo entry.Repository = entry.NewInMemoryRepository()
	if cfg.UsePostgres {
		pool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		pg := entry.NewPostgresRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		repo = pg
		checks = append(checks, handler.Check{Name: "database", Probe: pool.Ping})
		log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Database).Msg("database connected")
	} else {
		log.Warn().Msg("no database configured, entries are kept in memory")
	}

	entries := entry.NewService(entry.ServiceConfig{
		Repository: repo,
		Validator:  entry.NewValidator(directions, log),
		Logger:     log.With().Str("component", "entry").Logger(),
	})
	entries.Subscribe(manager)

	loaded, err := entries.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load entries")
	}
	log.Info().Int("entries", loaded).Msg("entries loaded")

	if cfg.Bootstrap != nil {
		bootstrap(ctx, log, entries, *cfg.Bootstrap)
	}

	tokens, err := auth.NewJWTService(auth.JWTConfig{SigningKey: cfg.JWTSigningKey})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	if cfg.UsesDevSigningKey() {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Version:            Version,
			BuildTime:          BuildTime,
			Logger:             log,
			Metrics:            metrics,
			Tokens:             tokens,
			Entries:            entries,
			Sensors:            manager,
			Providers:          registry,
			Checks:             checks,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			RequireTLS:         cfg.RequireTLS,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	runBackground := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("task", name).Msg("background task failed")
				stop()
			}
		}()
	}

	runBackground("sensors", manager.Run)

	if cfg.HomeAssistant.Events {
		stream, err := homeassistant.NewEventStream(homeassistant.EventStreamConfig{
			BaseURL: cfg.HomeAssistant.URL,
			Token:   cfg.HomeAssistant.Token,
			Logger:  log.With().Str("component", "events").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event stream")
		}
		runBackground("events", func(ctx context.Context) error {
			return stream.Run(ctx, func(_ context.Context, change homeassistant.StateChange) {
				manager.Dispatch(change)
			})
		})
	}

	if cfg.PubSubEnabled {
		consumer, err := worker.NewPubSubConsumer(ctx, cfg.PubSub, worker.NewHandler(manager, log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub consumer")
		}
		defer func() {
			if closeErr := consumer.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()
		runBackground("pubsub", consumer.Start)
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("stopped")
}

// bootstrap creates the entry configured through the environment. A rejected
// entry is logged; the service still starts for the entries it has.
func bootstrap(ctx context.Context, log zerolog.Logger, entries *entry.Service, in entry.Input) {
	e, created, err := entries.Bootstrap(ctx, in)
	var verr *entry.ValidationError
	switch {
	case errors.As(err, &verr):
		event := log.Error()
		for field, code := range verr.Fields {
			event = event.Str(field, code)
		}
		event.Msg("bootstrap entry rejected")
	case err != nil:
		log.Error().Err(err).Msg("failed to create bootstrap entry")
	case created:
		log.Info().Str("entry_id", e.ID).Str("sensor", e.SensorEntityID).Msg("bootstrap entry created")
	default:
		log.Debug().Str("entry_id", e.ID).Msg("bootstrap entry already present")
	}
}
