// Command server wires the audit ledger, document, and certificate services
// behind the HTTP API and runs them until interrupted.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"sealedrecord/internal/certificate"
	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	"sealedrecord/internal/outbox"
	"sealedrecord/internal/platform/config"
	"sealedrecord/internal/platform/httpserver"
	"sealedrecord/internal/platform/logger"
	"sealedrecord/internal/platform/metrics"
	"sealedrecord/internal/platform/ratelimit"
	"sealedrecord/internal/platform/redis"
	httptransport "sealedrecord/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sealedrecord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		db            *sql.DB
		ledgerStore   ledger.Store
		documentStore document.Store
		certStore     certificate.Store
	)
	if cfg.Postgres.DSN != "" {
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnLifetime)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		ledgerPg := ledger.NewPostgresStore(db)
		documentPg := document.NewPostgresStore(db)
		certPg := certificate.NewPostgresStore(db)
		for _, ensure := range []func(context.Context) error{
			ledgerPg.EnsureSchema, documentPg.EnsureSchema, certPg.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}
		ledgerStore, documentStore, certStore = ledgerPg, documentPg, certPg
		log.Info("using postgres stores")
	} else {
		ledgerStore = ledger.NewMemoryStore()
		documentStore = document.NewMemoryStore()
		certStore = certificate.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerSvc := ledger.NewService(ledgerStore, log, ledger.WithMetrics(m))
	documentSvc := document.NewService(documentStore, ledgerSvc, log)
	certSvc := certificate.NewService(certStore, documentSvc, ledgerSvc, log,
		certificate.WithMetrics(m),
		certificate.WithRenderCache(certificate.NewRenderCache(redisClient)),
	)

	urlSigner := certificate.NewURLSigner(
		cfg.Verification.BaseURL,
		[]byte(cfg.Verification.SigningKey),
		cfg.Verification.TokenExpiry,
	)
	limiter := ratelimit.New(redisClient, cfg.Verification.RateLimit, cfg.Verification.RateWindow)

	// The Kafka mirror needs the outbox table, so it only runs on postgres.
	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		publisher, err := outbox.NewPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("start outbox publisher: %w", err)
		}
		defer publisher.Close()
		worker := outbox.NewWorker(db, publisher, log, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox worker stopped", "error", err)
			}
		}()
		log.Info("outbox mirror enabled", "topic", cfg.Kafka.Topic)
	}

	router := httptransport.NewRouter(log, m, cfg.Server.RequestTimeout,
		httptransport.NewDocumentHandler(documentSvc, ledgerSvc, log),
		httptransport.NewCertificateHandler(certSvc, urlSigner, limiter, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
