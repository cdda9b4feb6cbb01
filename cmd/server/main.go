package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"subport/internal/audit"
	auditkafka "subport/internal/audit/kafka"
	auditmem "subport/internal/audit/store/memory"
	auditpg "subport/internal/audit/store/postgres"
	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/fulfillment"
	"subport/internal/jwttoken"
	"subport/internal/platform/config"
	"subport/internal/platform/httpserver"
	"subport/internal/platform/logger"
	platformredis "subport/internal/platform/redis"
	"subport/internal/subscription/handler"
	"subport/internal/subscription/metrics"
	"subport/internal/subscription/service"
	orderstore "subport/internal/subscription/store/order"
	"subport/internal/subscription/store/submission"
)

// main wires the stores, the mutation service, and the HTTP transport, and
// owns the process lifecycle. Business rules live under internal/.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		orders     service.OrderStore
		auditStore audit.Store
		outbox     audit.OutboxSource
		auditQueue *audit.Queue
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("failed to reach postgres", "error", err)
			os.Exit(1)
		}
		for _, schema := range []string{orderstore.Schema, auditpg.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				log.Error("failed to apply schema", "error", err)
				os.Exit(1)
			}
		}
		orders = orderstore.NewPostgres(db)
		pgAudit := auditpg.New(db)
		auditStore = pgAudit
		outbox = pgAudit
		log.Info("using postgres order store")
	} else {
		orders = orderstore.NewInMemory()
		auditStore = auditmem.New()
		// Without an outbox transaction to share, audit persistence moves
		// off the request path onto an in-process queue.
		auditQueue = audit.NewQueue(256)
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	var guard service.SubmissionGuard
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = submission.NewRedis(redisClient.Client, submission.DefaultTTL)
		log.Info("using redis submission guard")
	} else {
		guard = submission.NewInMemory(submission.DefaultTTL)
	}

	var warehouse service.Fulfillment = fulfillment.Noop{}
	if cfg.FulfillmentURL != "" {
		warehouse = fulfillment.NewGuarded(
			fulfillment.NewHTTPClient(cfg.FulfillmentURL),
			fulfillment.WithLogger(log),
		)
	}

	// In-memory catalog and directory adapters; production deployments swap
	// these for clients of the real product and contact services.
	products := catalog.NewInMemory()
	contacts := directory.NewInMemory()

	var auditPublisher service.AuditPublisher = audit.NewPublisher(auditStore)
	if auditQueue != nil {
		auditPublisher = auditQueue
	}

	svc := service.New(orders, products, products, contacts,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(metrics.New()),
		service.WithSubmissionGuard(guard),
		service.WithFulfillment(warehouse),
	)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	h := handler.New(svc, log, jwttoken.NewServiceAdapter(jwtService), cfg.BackendTokenHash)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	if auditQueue != nil {
		worker := audit.NewWorker(auditStore, auditQueue.Inbox())
		group.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Info("audit worker started")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if outbox == nil {
			log.Warn("kafka brokers configured but audit fan-out requires postgres, skipping relay")
		} else {
			topicCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := auditkafka.EnsureTopic(topicCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
				cancel()
				log.Error("failed to ensure audit topic", "error", err)
				os.Exit(1)
			}
			cancel()

			publisher, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, auditkafka.WithLogger(log))
			if err != nil {
				log.Error("failed to create kafka publisher", "error", err)
				os.Exit(1)
			}
			defer publisher.Close()

			relay := audit.NewRelay(outbox, publisher, audit.WithRelayLogger(log))
			group.Go(func() error {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			log.Info("audit relay started", "topic", cfg.Kafka.Topic)
		}
	}

	group.Go(func() error {
		log.Info("starting subport", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
