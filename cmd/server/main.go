package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	migrate "github.com/rubenv/sql-migrate"
	"golang.org/x/sync/errgroup"

	jwttoken "github.com/Khrees2412/provepoc/internal/jwt_token"
	"github.com/Khrees2412/provepoc/internal/platform/config"
	"github.com/Khrees2412/provepoc/internal/platform/httpserver"
	"github.com/Khrees2412/provepoc/internal/platform/kafka"
	"github.com/Khrees2412/provepoc/internal/platform/logger"
	"github.com/Khrees2412/provepoc/internal/platform/metrics"
	"github.com/Khrees2412/provepoc/internal/platform/middleware"
	"github.com/Khrees2412/provepoc/internal/platform/postgres"
	"github.com/Khrees2412/provepoc/internal/platform/redis"
	"github.com/Khrees2412/provepoc/internal/provider/mono"
	ratelimit "github.com/Khrees2412/provepoc/internal/ratelimit/middleware"
	"github.com/Khrees2412/provepoc/internal/ratelimit/store/bucket"
	httptransport "github.com/Khrees2412/provepoc/internal/transport/http"
	"github.com/Khrees2412/provepoc/internal/verification/events"
	"github.com/Khrees2412/provepoc/internal/verification/handler"
	verificationMetrics "github.com/Khrees2412/provepoc/internal/verification/metrics"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/internal/verification/service"
	"github.com/Khrees2412/provepoc/internal/verification/store"
	"github.com/Khrees2412/provepoc/internal/verification/webhook"
	"github.com/Khrees2412/provepoc/pkg/platform/middleware/metadata"
)

const (
	operatorIssuer   = "provepoc"
	operatorAudience = "provepoc-operators"
	shutdownTimeout  = 10 * time.Second
)

// main loads configuration, wires dependencies and runs the HTTP server until
// SIGINT/SIGTERM. Business logic lives in the internal packages.
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	policy, err := models.ParseTieBreak(cfg.Mono.TieBreak)
	if err != nil {
		return err
	}
	verifier, err := webhook.NewVerifier(cfg.Mono.WebhookAuthMode, cfg.Mono.WebhookSecret)
	if err != nil {
		return err
	}
	trustedProxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	if cfg.Mono.WebhookSecret == "" {
		log.Warn("MONO_WEBHOOK_SECRET not set; every webhook will be rejected")
	}
	if cfg.Mono.SecretKey == "" {
		log.Warn("MONO_SECRET_KEY not set; provider calls will fail authentication")
	}

	healthChecks := map[string]httptransport.HealthCheck{}

	verificationStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if pg, ok := verificationStore.(interface{ Ping(context.Context) error }); ok {
		healthChecks["postgres"] = pg.Ping
	}

	rateLimitStore, closeRedis, err := openRateLimitStore(ctx, cfg, log, healthChecks)
	if err != nil {
		return err
	}
	defer closeRedis()

	publisher, closeKafka, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKafka()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(registry)
	verifMetrics := verificationMetrics.New(registry)

	monoClient := mono.NewClient(cfg.Mono.BaseURL, cfg.Mono.SecretKey, mono.WithTimeout(cfg.Mono.Timeout))
	svc := service.New(verificationStore, monoClient,
		service.WithLogger(log),
		service.WithMetrics(verifMetrics),
		service.WithPublisher(publisher),
		service.WithTieBreak(policy),
		service.WithRedirectURL(cfg.Mono.RedirectURL),
	)

	var operator middleware.TokenValidator
	if cfg.OperatorJWTKey != "" {
		operator = jwttoken.NewJWTService(cfg.OperatorJWTKey, operatorIssuer, operatorAudience)
	} else {
		log.Warn("OPERATOR_JWT_SIGNING_KEY not set; operator routes are closed")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      httpMetrics,
		Gatherer:     registry,
		Verification: handler.New(svc, verifier, log, verifMetrics, handler.WithMinLoanAmount(cfg.MinLoanAmount)),
		RateLimit: ratelimit.New(rateLimitStore, cfg.RateLimit.InitiateLimit, cfg.RateLimit.InitiateWindow, log,
			ratelimit.WithFallback(bucket.NewInMemoryBucketStore())),
		Operator:       operator,
		HealthChecks:   healthChecks,
		TrustedProxies: trustedProxies,
	})
	srv := httpserver.New(cfg.Addr, router,
		httpserver.WithErrorLog(log),
		httpserver.WithWriteTimeout(cfg.Mono.Timeout+15*time.Second),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting provepoc", "addr", cfg.Addr, "tie_break", policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type pingableStore struct {
	*store.PostgresStore
	db *sql.DB
}

func (s pingableStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (service.VerificationStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; verifications are kept in memory")
		return store.NewInMemoryStore(), func() {}, nil
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	applied, err := postgres.Migrate(db, migrate.Up)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("database ready", "migrations_applied", applied)
	return pingableStore{PostgresStore: store.NewPostgres(db), db: db}, func() { _ = db.Close() }, nil
}

func openRateLimitStore(ctx context.Context, cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthCheck) (ratelimit.Store, func(), error) {
	client, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("REDIS_URL not set; rate limiting is per instance")
		return bucket.NewInMemoryBucketStore(), func() {}, nil
	}
	checks["redis"] = redis.HealthCheck(client)
	return bucket.NewRedisBucketStore(client), func() { _ = client.Close() }, nil
}

func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (service.EventPublisher, func(), error) {
	client, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("KAFKA_BROKERS not set; lifecycle events are logged only")
		return events.NewLogPublisher(log), func() {}, nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, 3, 1); err != nil {
		client.Close()
		return nil, nil, err
	}
	return events.NewKafkaPublisher(client, cfg.Kafka.Topic), client.Close, nil
}
