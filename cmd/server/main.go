package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sostrack/internal/config"
	"sostrack/internal/infra"
	"sostrack/internal/repository"
	"sostrack/internal/router"
	"sostrack/internal/service"
	"sostrack/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev pretty, prod JSON
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := infra.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
	}

	store, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}

	dispatcher := worker.NewDispatcher(rdb)
	svcs := router.NewServices(cfg, store, dispatcher)

	// Background work: notification workers, the Ready sweep and the
	// batch watcher all stop with ctx.
	mailCB := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{Name: "smtp", FailureThreshold: 3, OpenTimeout: time.Minute})
	if rdb != nil {
		mailer := infra.NewMailer(cfg)
		var sender worker.Sender
		if mailer.Configured() {
			sender = mailer
		} else {
			log.Warn().Msg("SMTP_HOST not set, notifications will be logged and dropped")
		}
		worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, worker.WorkerHandlers{
			Notify: worker.NewNotifyWorker(sender, mailCB, rdb, cfg.NotifyEmail),
		})
	}
	worker.StartSweepCron(ctx, cfg.SweepInterval(), svcs.Batches)

	watcher := service.NewStatusWatcher(store, svcs.Batches, dispatcher)
	watcher.Start(ctx)

	r := router.New(cfg, svcs, store, rdb, mailCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("driver", cfg.StoreDriver).Msgf("sostrack listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	watcher.Stop()
	cancel()
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("store close")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server exited")
}

// openStore builds the configured persistence driver.
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore(db, rdb), nil
	case "mongo":
		db, err := infra.NewMongo(cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s := repository.NewMongoStore(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		if err := s.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("mongo change streams unavailable, using local notifications")
		}
		return s, nil
	case "memory":
		log.Warn().Msg("memory store: data is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
