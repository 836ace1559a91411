package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"landregistry/internal/auth/token"
	caseshandler "landregistry/internal/cases/handler"
	casemetrics "landregistry/internal/cases/metrics"
	casesservice "landregistry/internal/cases/service"
	casestore "landregistry/internal/cases/store"
	"landregistry/internal/platform/config"
	"landregistry/internal/platform/httpserver"
	"landregistry/internal/platform/logger"
	platformmetrics "landregistry/internal/platform/metrics"
	platformredis "landregistry/internal/platform/redis"
	"landregistry/internal/registry"
	"landregistry/pkg/platform/audit"
	auditpublisher "landregistry/pkg/platform/audit/publisher"
	auditworker "landregistry/pkg/platform/audit/worker"
	"landregistry/pkg/platform/tx"
)

// main wires dependencies and runs the HTTP server plus the audit worker
// under one errgroup. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory for local development.
	var (
		caseStore   casestore.Store
		parcelStore registry.ParcelStore
		deedStore   registry.DeedStore
		txRunner    tx.Runner = tx.NoopRunner{}
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		pgCases := casestore.NewPostgres(db)
		if err := pgCases.Migrate(ctx); err != nil {
			return err
		}
		pgParcels := registry.NewPostgresParcelStore(db)
		if err := pgParcels.Migrate(ctx); err != nil {
			return err
		}
		caseStore = pgCases
		parcelStore = pgParcels
		deedStore = registry.NewPostgresDeedStore(db)
		txRunner = tx.NewSQLRunner(db)
		log.Info("using postgres storage")
	} else {
		caseStore = casestore.NewInMemory()
		parcelStore = registry.NewInMemoryParcelStore()
		deedStore = registry.NewInMemoryDeedStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Optional Redis read-through cache on parcel lookups.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		parcelStore = registry.NewCachedParcelStore(parcelStore, redisClient.Client, cfg.ParcelCacheTTL, log)
		log.Info("parcel cache enabled", "ttl", cfg.ParcelCacheTTL.String())
	}

	// Audit pipeline: channel fed worker, optional Kafka publisher for
	// compliance events.
	auditInbox := make(chan audit.Event, cfg.AuditBuffer)
	var publisher auditworker.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := auditpublisher.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info("audit publisher enabled", "topic", cfg.Kafka.Topic)
	}
	worker := auditworker.New(audit.NewInMemoryStore(), publisher, auditInbox, log)

	// Services.
	registryService := registry.NewService(parcelStore, deedStore, log)
	caseService := casesservice.New(caseStore, registryService, registryService, log,
		casesservice.WithMetrics(casemetrics.New()),
		casesservice.WithAuditSink(auditInbox),
		casesservice.WithTransactor(txRunner),
	)
	tokenService := token.NewService(cfg.JWTSigningKey, "landregistry", "landregistry-api")

	// HTTP surface.
	httpMetrics := platformmetrics.New()
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	caseshandler.New(caseService, log, httpMetrics, tokenService).Register(router)
	registry.NewHandler(registryService, log, httpMetrics, tokenService).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting land registry server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
