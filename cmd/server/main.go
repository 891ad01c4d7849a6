// main wires the identity registry: stores, blob backend, locks, event
// trail, and the HTTP surface. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"idregistry/internal/audit"
	"idregistry/internal/biometric"
	"idregistry/internal/blob"
	"idregistry/internal/credential"
	"idregistry/internal/identity/artifact"
	"idregistry/internal/identity/lock"
	"idregistry/internal/identity/metrics"
	"idregistry/internal/identity/service"
	"idregistry/internal/identity/shard"
	identitystore "idregistry/internal/identity/store"
	"idregistry/internal/platform/config"
	"idregistry/internal/platform/httpserver"
	"idregistry/internal/platform/logger"
	"idregistry/internal/platform/middleware"
	"idregistry/internal/platform/redis"
	"idregistry/internal/security"
	"idregistry/internal/token"
	httptransport "idregistry/internal/transport/http"
	"idregistry/pkg/platform/secrets"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("registry exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		records    service.RecordStore
		salts      shard.SaltStore
		credsStore credential.Store
		pool       *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := identitystore.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		records = identitystore.NewPostgres(pool)
		salts = identitystore.NewSaltPostgres(pool)
		credsStore = credential.NewPostgresStore(pool)
	} else {
		memory := identitystore.NewMemory()
		records = memory
		salts = seedDevSalts(cfg.ShardModulus)
		credsStore = credential.NewMemoryStore()
		log.Warn("no database configured, using in-memory stores")
	}

	var blobs blob.Store
	if cfg.BlobDir != "" {
		pebbleStore, err := blob.OpenPebble(cfg.BlobDir)
		if err != nil {
			return err
		}
		defer pebbleStore.Close()
		blobs = pebbleStore
	} else {
		blobs = blob.NewMemoryStore()
	}

	var locker service.Locker = lock.NewKeyed()
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = redisClient
	}

	queue := audit.NewQueue(256, log)
	sink, closeSink, err := buildEventSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()
	events := audit.NewService(queue)
	worker := audit.NewWorker(sink, queue, log)

	hasher := security.Hasher{}
	addresser := shard.NewAddresser(cfg.ShardModulus, salts, hasher)
	ingestor := artifact.NewIngestor(blobs, biometric.NewCodec(), hasher, cfg.BiometricCategories)
	trigger := credential.NewTrigger(credsStore, cfg.PartnerID, cfg.ActiveStatus, log)
	m := metrics.New()
	svc := service.New(records, addresser, ingestor, trigger, locker, events, m, log, cfg.ActiveStatus)

	var validator middleware.TokenValidator
	if cfg.JWTSigningKey != "" {
		validator = token.NewService(cfg.JWTSigningKey, "idregistry", "idregistry-clients")
	}
	health := func(r *http.Request) error {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Health(r.Context())
		}
		return nil
	}

	handler := httptransport.NewHandler(svc, log)
	router := httptransport.NewRouter(handler, log, validator, cfg.APIKeyHash, health)
	srv := httpserver.New(cfg.Addr, router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.MetricsAddr, metricsMux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("registry listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown http server", "error", err)
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildEventSink(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Store, func(), error) {
	var sinks audit.Fanout
	closers := []func(){}

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.EventTopic)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, kafka)
		closers = append(closers, kafka.Close)
	}
	if cfg.DatabaseURL != "" {
		outbox, err := audit.OpenOutbox(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, outbox)
		closers = append(closers, func() { _ = outbox.Close() })
	}
	if len(sinks) == 0 {
		log.Warn("no durable event sink configured, trail stays in memory")
		sinks = append(sinks, audit.NewMemoryStore())
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sinks, closeAll, nil
}

// seedDevSalts provisions random salts for every shard so the in-memory
// setup is usable out of the box. Production salts come from the database.
func seedDevSalts(modulus int64) *identitystore.SaltMemory {
	salts := identitystore.NewSaltMemory()
	for i := int64(0); i < modulus; i++ {
		hashSalt, err := secrets.Generate()
		if err != nil {
			panic(err)
		}
		encryptSalt, err := secrets.Generate()
		if err != nil {
			panic(err)
		}
		salts.Seed(i, shard.PurposeHash, hashSalt)
		salts.Seed(i, shard.PurposeEncrypt, encryptSalt)
	}
	return salts
}
