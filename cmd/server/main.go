package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zedaapi/instance-gateway/internal/api"
	"github.com/zedaapi/instance-gateway/internal/balance"
	"github.com/zedaapi/instance-gateway/internal/config"
	"github.com/zedaapi/instance-gateway/internal/database"
	"github.com/zedaapi/instance-gateway/internal/eventbus"
	"github.com/zedaapi/instance-gateway/internal/groups"
	apihandler "github.com/zedaapi/instance-gateway/internal/http"
	"github.com/zedaapi/instance-gateway/internal/http/handlers"
	"github.com/zedaapi/instance-gateway/internal/locks"
	"github.com/zedaapi/instance-gateway/internal/logging"
	natsclient "github.com/zedaapi/instance-gateway/internal/nats"
	"github.com/zedaapi/instance-gateway/internal/observability"
	"github.com/zedaapi/instance-gateway/internal/presence"
	redisinit "github.com/zedaapi/instance-gateway/internal/redis"
	"github.com/zedaapi/instance-gateway/internal/rotation"
	sentryinit "github.com/zedaapi/instance-gateway/internal/sentry"
	"github.com/zedaapi/instance-gateway/internal/webhooks"
	"github.com/zedaapi/instance-gateway/migrations"
)

// groupAliasResolver returns the alias of the first group an instance
// belongs to, or "" if it belongs to none. Producers outside the
// load-balanced send path (e.g. connection lifecycle events) use this to
// scope their published events to the right webhook subject.
func groupAliasResolver(groupsService *groups.Service, logger *slog.Logger) func(instanceName *string) string {
	return func(instanceName *string) string {
		if instanceName == nil {
			return ""
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		list, err := groupsService.List(ctx)
		if err != nil {
			logger.Warn("group alias resolution failed", slog.String("error", err.Error()))
			return ""
		}
		for _, g := range list {
			for _, inst := range g.Instances {
				if inst == *instanceName {
					return g.Alias
				}
			}
		}
		return ""
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, path := range []string{"api/.env", ".env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger := logging.New(cfg.Log.Level)
	logger.Info("starting instance gateway", slog.String("env", cfg.AppEnv))

	sentryHandler, err := sentryinit.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, cfg.Sentry.Release)
	if err != nil {
		logger.Error("sentry init failed", slog.String("error", err.Error()))
	}
	if sentryinit.Enabled() {
		hostname, _ := os.Hostname()
		tags := map[string]string{"environment": cfg.Sentry.Environment, "app_env": cfg.AppEnv}
		extras := map[string]any{"hostname": hostname, "http_addr": cfg.HTTP.Addr}
		sentryinit.CaptureLifecycleEvent("startup", tags, extras)
		defer func() {
			sentryinit.CaptureLifecycleEvent("shutdown", tags, extras)
			sentryinit.Flush(5 * time.Second)
		}()
	}

	metrics := observability.NewMetrics(cfg.Prometheus.Namespace, prometheus.DefaultRegisterer)

	if err := database.EnsureDatabaseExists(ctx, cfg.Postgres.DSN, logger); err != nil {
		logger.Error("ensure database exists", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pgPool, err := database.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		logger.Error("postgres connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := migrations.Apply(ctx, pgPool, logger); err != nil {
		logger.Error("apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisClient := redisinit.NewClient(redisinit.Config{
		Addr:       cfg.Redis.Addr,
		Username:   cfg.Redis.Username,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	defer redisClient.Close()

	redisLockManager := locks.NewRedisManager(redisClient)
	cbConfig := locks.DefaultCircuitBreakerConfig()
	lockManager := locks.NewCircuitBreakerManager(redisLockManager, cbConfig)
	lockManager.OnStateChange(func(old, new locks.CircuitState) {
		logger.Warn("lock manager circuit breaker state changed",
			slog.String("old_state", old.String()), slog.String("new_state", new.String()))
	})
	lockManager.SetMetrics(locks.CircuitBreakerMetricsCallbacks{
		LockSuccess:  func() { metrics.BalanceLockOutcomes.WithLabelValues("success").Inc() },
		LockFailure:  func() { metrics.BalanceLockOutcomes.WithLabelValues("failure").Inc() },
		CircuitState: metrics.BalanceLockCircuitState.Set,
	})
	defer lockManager.StopHealthCheck()

	presenceRegistry := presence.NewPubSubRegistry(redisClient, "instance:presence", logger)
	presenceRegistry.Start(ctx)
	defer presenceRegistry.Stop()

	rotationStore := rotation.New(redisClient, cfg.RotationStore.TTL, logger)
	rotationStore.SetCacheErrorMetric(func(op string) {
		metrics.RotationCacheErrors.WithLabelValues(op).Inc()
	})

	groupsRepo := groups.NewRepository(pgPool)
	groupsService := groups.NewService(groupsRepo, presenceRegistry)

	lockTTLSeconds := int(cfg.Balance.LockTTL / time.Second)
	var balancerLocker locks.Manager
	if cfg.Balance.LockEnabled {
		balancerLocker = lockManager
	}
	balancer := balance.New(rotationStore, presenceRegistry, groupsService, balancerLocker, lockTTLSeconds)
	balancer.SetMetricsRecorders(
		func(groupAlias, instance, pass string) {
			metrics.BalancerSelections.WithLabelValues(groupAlias, instance, pass).Inc()
		},
		func(groupAlias string) {
			metrics.BalancerCycleResets.WithLabelValues(groupAlias).Inc()
		},
	)

	webhooksRepo := webhooks.NewRepository(pgPool)
	webhooksBreaker := webhooks.NewCircuitBreakerSet(cfg.Webhooks.CBFailureThreshold, cfg.Webhooks.CBCooldown)
	webhooksStats := webhooks.NewStatsRecorder(pgPool)
	webhooksService := webhooks.NewService(webhooksRepo, webhooksBreaker, cfg.Webhooks.AllowPrivateTargets)
	webhookDispatcher := webhooks.NewDispatcher(webhooksRepo, webhooksStats, webhooksBreaker, metrics, logger)

	natsMetrics := natsclient.NewNATSMetrics(cfg.Prometheus.Namespace, prometheus.DefaultRegisterer)
	natsCfg := natsclient.Config{
		URL:            cfg.NATS.URL,
		ConnectTimeout: cfg.NATS.ConnectTimeout,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		PublishTimeout: 5 * time.Second,
		DrainTimeout:   30 * time.Second,
		StreamName:     cfg.NATS.StreamName,
	}
	natsClient := natsclient.NewClient(natsCfg, logger, natsMetrics)
	if err := natsClient.Connect(ctx); err != nil {
		logger.Error("nats connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		logger.Info("draining NATS connection")
		if err := natsClient.Drain(natsCfg.DrainTimeout); err != nil {
			logger.Warn("nats drain error", slog.String("error", err.Error()))
		}
	}()
	if err := natsclient.EnsureStream(ctx, natsClient.JetStream(), natsCfg, logger); err != nil {
		logger.Error("nats ensure stream failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	bus := eventbus.New(natsClient, natsCfg.StreamName, logger)
	go func() {
		if err := bus.Consume(ctx, webhookDispatcher); err != nil {
			logger.Error("eventbus consume stopped", slog.String("error", err.Error()))
		}
	}()

	eventPublisher := api.NewEventPublisher(bus, groupAliasResolver(groupsService, logger), logger)

	relaySender := api.NewHTTPRelaySender(&http.Client{Timeout: cfg.Relay.Timeout}, cfg.Relay.URLTemplate)
	balancedSender := api.NewBalancedSender(balancer, relaySender, logger)

	healthHandler := handlers.NewHealthHandler(pgPool, lockManager)
	healthHandler.SetNATSClient(natsClient)
	healthHandler.SetMetrics(func(component, status string) {
		metrics.HealthChecks.WithLabelValues(component, status).Inc()
	})

	groupsHandler := handlers.NewGroupsHandler(groupsService, logger)
	webhooksHandler := handlers.NewWebhooksHandler(webhooksService, logger)
	messageHandler := handlers.NewMessageHandler(balancedSender, logger)
	eventsHandler := handlers.NewEventsHandler(eventPublisher, logger)

	router := apihandler.NewRouter(apihandler.RouterDeps{
		Logger:          logger,
		Metrics:         metrics,
		SentryHandler:   sentryHandler,
		HealthHandler:   healthHandler,
		GroupsHandler:   groupsHandler,
		WebhooksHandler: webhooksHandler,
		MessageHandler:  messageHandler,
		EventsHandler:   eventsHandler,
		APIKey:          cfg.Partner.AuthToken,
	})

	server := apihandler.NewServer(
		router,
		cfg.HTTP.Addr,
		cfg.HTTP.ReadHeaderTimeout,
		cfg.HTTP.ReadTimeout,
		cfg.HTTP.WriteTimeout,
		cfg.HTTP.IdleTimeout,
		cfg.HTTP.MaxHeaderBytes,
		logger,
	)

	if err := server.Run(ctx); err != nil {
		logger.Error("http server stopped", slog.String("error", err.Error()))
	}

	logger.Info("shutting down")
	if cfg.Sentry.DSN != "" {
		sentry.Flush(5 * time.Second)
	}
	logger.Info("shutdown complete")
}
