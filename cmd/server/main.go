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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"aidreg/internal/jwttoken"
	"aidreg/internal/platform/clock"
	"aidreg/internal/platform/config"
	"aidreg/internal/platform/database"
	"aidreg/internal/platform/health"
	"aidreg/internal/platform/httpserver"
	"aidreg/internal/platform/kafka"
	"aidreg/internal/platform/logger"
	platformredis "aidreg/internal/platform/redis"
	"aidreg/internal/platform/tracer"
	recipienthandler "aidreg/internal/recipient/handler"
	recipientmetrics "aidreg/internal/recipient/metrics"
	recipientservice "aidreg/internal/recipient/service"
	recipientstore "aidreg/internal/recipient/store"
	"aidreg/migrations"
	id "aidreg/pkg/domain"
	audit "aidreg/pkg/platform/audit"
	auditpublisher "aidreg/pkg/platform/audit/publisher"
	auditkafka "aidreg/pkg/platform/audit/store/kafka"
	auditmemory "aidreg/pkg/platform/audit/store/memory"
	auditpostgres "aidreg/pkg/platform/audit/store/postgres"
	authmw "aidreg/pkg/platform/middleware/auth"
	"aidreg/pkg/platform/middleware/metadata"
	"aidreg/pkg/platform/middleware/request"
	"aidreg/pkg/platform/middleware/requesttime"
)

const (
	serviceName       = "aidreg"
	maxBodyBytes      = 1 << 20
	auditBufferSize   = 1024
	poolStatsInterval = 15 * time.Second
)

// registryStore is what every backend provides to the service.
type registryStore interface {
	recipientservice.RecipientStore
	recipientservice.AdminStore
}

// infra collects what main must release on shutdown.
type infra struct {
	store     registryStore
	tx        recipientservice.StoreTx
	auditSink audit.Store
	redis     *platformredis.Client
	closers   []func() error
}

func (i *infra) close(log *slog.Logger) {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			log.Warn("failed to close resource", "error", err)
		}
	}
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing aidreg",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store_backend", cfg.StoreBackend,
	)

	checks := health.New(cfg.Environment)

	deps, err := buildInfra(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer deps.close(log)

	auditStore, err := buildAuditStore(ctx, cfg, log, checks, deps)
	if err != nil {
		return err
	}
	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(auditBufferSize),
		auditpublisher.WithPublisherLogger(log),
		auditpublisher.WithMetrics(auditpublisher.NewMetrics(prometheus.DefaultRegisterer)),
	)
	defer publisher.Close()

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.TraceSampleRatio > 0 {
		shutdown := tracer.SetupProvider(serviceName, cfg.Environment, cfg.TraceSampleRatio)
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to flush traces", "error", err)
			}
		}()
		tr = tracer.NewOTel()
	}

	svc := recipientservice.New(deps.store, deps.store,
		recipientservice.WithLogger(log),
		recipientservice.WithAuditPublisher(publisher),
		recipientservice.WithMetrics(recipientmetrics.New()),
		recipientservice.WithTracer(tr),
		recipientservice.WithClock(buildClock(cfg.Clock)),
		recipientservice.WithTx(deps.tx),
	)

	deployer, err := id.ParsePrincipal(cfg.Deployer)
	if err != nil {
		return fmt.Errorf("REGISTRY_DEPLOYER: %w", err)
	}
	admin, err := svc.Deploy(ctx, deployer)
	if err != nil {
		return fmt.Errorf("deploy registry: %w", err)
	}
	log.Info("registry ready", "admin", admin)

	router, err := buildRouter(cfg, log, checks, svc, request.NewMetrics())
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.redis != nil {
		g.Go(func() error {
			return deps.redis.RunPoolStats(gctx, poolStatsInterval)
		})
	}
	return g.Wait()
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger, checks *health.Handler) (*infra, error) {
	deps := &infra{}
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		checks.RegisterCheck("postgres", pool.Health)
		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, pool.DB()); err != nil {
				deps.close(log)
				return nil, err
			}
		}
		deps.store = recipientstore.NewPostgres(pool.DB())
		deps.tx = newRecipientPostgresTx(pool.DB())
		deps.auditSink = auditpostgres.New(pool.DB())
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis, platformredis.NewPoolMetrics(prometheus.DefaultRegisterer))
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		checks.RegisterCheck("redis", client.Health)
		deps.redis = client
		deps.store = recipientstore.NewRedis(client.Client, cfg.Redis.KeyPrefix)
		deps.tx = newRecipientRedisLockTx(client.Client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL)
	case config.BackendBolt:
		bolt, err := recipientstore.OpenBolt(cfg.Bolt.Path, cfg.Bolt.Timeout)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, bolt.Close)
		checks.RegisterCheck("bolt", bolt.Health)
		deps.store = bolt
	default:
		deps.store = recipientstore.NewInMemory()
	}
	if deps.auditSink == nil {
		deps.auditSink = auditmemory.NewInMemoryStore()
	}
	return deps, nil
}

func buildAuditStore(ctx context.Context, cfg config.Server, log *slog.Logger, checks *health.Handler, deps *infra) (audit.Store, error) {
	if cfg.Kafka.Brokers == "" {
		return deps.auditSink, nil
	}
	producer, err := kafka.NewProducer(kafka.Config{
		Brokers:         cfg.Kafka.Brokers,
		ClientID:        serviceName,
		Acks:            cfg.Kafka.Acks,
		Retries:         cfg.Kafka.Retries,
		DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, producer.Close)
	checks.RegisterCheck("kafka", producer.Healthy)

	if err := kafka.EnsureTopic(ctx, producer.Client(), kafka.TopicSpec{
		Name:   cfg.Kafka.AuditTopic,
		Config: kafka.AuditTopicConfig(),
	}); err != nil {
		return nil, err
	}
	return audit.Fanout{deps.auditSink, auditkafka.NewSink(producer, cfg.Kafka.AuditTopic)}, nil
}

// buildClock returns a fixed clock unless a genesis time anchors block heights
// to wall time.
func buildClock(cfg config.ClockConfig) clock.Clock {
	if cfg.Genesis.IsZero() {
		return clock.Fixed(cfg.StartHeight)
	}
	return clock.NewChain(cfg.StartHeight, cfg.Genesis, cfg.BlockInterval)
}

func buildRouter(cfg config.Server, log *slog.Logger, checks *health.Handler, svc *recipientservice.Service, reqMetrics *request.Metrics) (http.Handler, error) {
	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.New(trusted).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(reqMetrics, func(r *http.Request) string {
		return chi.RouteContext(r.Context()).RoutePattern()
	}))
	r.Use(request.Timeout(cfg.RequestTimeout))

	checks.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	handler := recipienthandler.New(svc, log)
	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(maxBodyBytes))
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.RequireCaller(jwttoken.NewJWTServiceAdapter(jwtService), log))
		handler.Register(r)
	})
	return r, nil
}
