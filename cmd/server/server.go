package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	contacthandler "linkid/internal/contact/handler"
	contactmetrics "linkid/internal/contact/metrics"
	"linkid/internal/contact/outbox"
	contactservice "linkid/internal/contact/service"
	contactstore "linkid/internal/contact/store/contact"
	"linkid/internal/platform/config"
	"linkid/internal/platform/httpserver"
	"linkid/internal/platform/kafka"
	"linkid/internal/platform/metrics"
	"linkid/internal/platform/middleware"
	"linkid/internal/platform/postgres"
	platformredis "linkid/internal/platform/redis"
	ratelimitmetrics "linkid/internal/ratelimit/metrics"
	ratelimitmw "linkid/internal/ratelimit/middleware"
	ratelimitservice "linkid/internal/ratelimit/service"
	"linkid/internal/ratelimit/store/window"
	"linkid/pkg/platform/httputil"
	"linkid/pkg/platform/middleware/metadata"
	"linkid/pkg/platform/middleware/requesttime"
)

const banner = "linkid: POST /identify to reconcile a contact, GET /contacts to list records\n"

// contactStore is what both store implementations provide to the process.
type contactStore interface {
	contactservice.ContactStoreTx
	contactservice.Reader
	outbox.Store
}

// healthCheck reports one dependency's health.
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// deps are the long-lived components built from configuration.
type deps struct {
	store       contactStore
	service     *contactservice.Service
	metrics     *metrics.Metrics
	contact     *contactmetrics.Metrics
	rateLimit   *ratelimitmw.Middleware
	fallback    *window.InMemoryStore
	relay       *outbox.Relay
	healthCheck []healthCheck
	closers     []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, error) {
	d := &deps{metrics: metrics.New()}
	d.contact = contactmetrics.New(d.metrics.Registry)

	if err := d.buildStore(ctx, cfg.Database, log); err != nil {
		d.close()
		return nil, err
	}

	svc, err := contactservice.New(d.store, d.store,
		contactservice.WithLogger(log),
		contactservice.WithMetrics(d.contact),
		contactservice.WithMaxAttempts(cfg.Identify.MaxAttempts),
		contactservice.WithRetryBackoff(cfg.Identify.RetryBackoff),
	)
	if err != nil {
		d.close()
		return nil, err
	}
	d.service = svc

	if err := d.buildRateLimit(ctx, cfg, log); err != nil {
		d.close()
		return nil, err
	}
	if err := d.buildRelay(ctx, cfg.Kafka, log); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *deps) buildStore(ctx context.Context, cfg config.Database, log *slog.Logger) error {
	if !cfg.Enabled() {
		log.Warn("DATABASE_URL not set, using the in-memory contact store")
		d.store = contactstore.NewInMemory()
		return nil
	}

	isolation, err := postgres.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		return err
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func() { _ = db.Close() })

	store := contactstore.NewPostgres(db,
		contactstore.WithIsolation(isolation),
		contactstore.WithTxTimeout(cfg.TxTimeout),
	)
	d.store = store
	d.healthCheck = append(d.healthCheck, healthCheck{name: "postgres", check: store.Ping})
	log.Info("using the postgres contact store", "driver", cfg.Driver, "isolation", isolation.String())
	return nil
}

func (d *deps) buildRateLimit(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.RateLimit.Requests <= 0 {
		return nil
	}

	d.fallback = window.NewInMemory()
	var primary ratelimitservice.WindowStore = d.fallback
	opts := []ratelimitservice.Option{
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New(d.metrics.Registry)),
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		d.healthCheck = append(d.healthCheck, healthCheck{name: "redis", check: rdb.Health})
		primary = window.NewRedis(rdb.Client)
		opts = append(opts, ratelimitservice.WithFallback(d.fallback))
	}

	limiter, err := ratelimitservice.New(primary, cfg.RateLimit.Requests, cfg.RateLimit.Window, opts...)
	if err != nil {
		return err
	}
	d.rateLimit = ratelimitmw.New(limiter, log)
	log.Info("rate limiting enabled",
		"requests", cfg.RateLimit.Requests,
		"window", cfg.RateLimit.Window.String(),
		"redis", rdb != nil,
	)
	return nil
}

func (d *deps) buildRelay(ctx context.Context, cfg config.Kafka, log *slog.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, client.Close)

	if err := kafka.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions); err != nil {
		return err
	}
	producer := kafka.NewProducer(client)
	d.healthCheck = append(d.healthCheck, healthCheck{name: "kafka", check: producer.Ping})

	d.relay = outbox.NewRelay(d.store, outbox.NewKafkaPublisher(producer, cfg.Topic),
		outbox.WithLogger(log),
		outbox.WithMetrics(d.contact),
		outbox.WithPollInterval(cfg.PollInterval),
		outbox.WithBatchSize(cfg.BatchSize),
	)
	log.Info("outbox relay enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return nil
}

func newRouter(cfg config.Server, d *deps, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(log),
		middleware.RequestID,
		metadata.ClientMetadata,
		requesttime.Middleware,
		middleware.Logger(log),
		middleware.CORS,
		middleware.Timeout(cfg.RequestTimeout),
		middleware.ContentTypeJSON,
		middleware.LatencyMiddleware(d.metrics),
	)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(banner))
	})
	r.Get("/healthz", healthHandler(d.healthCheck))
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	contacthandler.New(d.service, log).Register(r, d.rateLimit.RateLimit("identify"))
	return r
}

func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[c.name] = err.Error()
				continue
			}
			body[c.name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}

func runServer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer d.close()

	srv := httpserver.New(cfg.Server, newRouter(cfg.Server, d, log))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting linkid", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if d.relay != nil {
		g.Go(func() error {
			return d.relay.Run(gctx)
		})
	}

	if d.fallback != nil {
		g.Go(func() error {
			sweepWindows(gctx, d.fallback, cfg.RateLimit.Window)
			return nil
		})
	}

	return g.Wait()
}

func sweepWindows(ctx context.Context, store *window.InMemoryStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}
