package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/pitta999/orderportal/internal/di"
	"github.com/pitta999/orderportal/internal/handlers"
	"github.com/pitta999/orderportal/internal/payments"
	"github.com/pitta999/orderportal/internal/platform/auth"
	"github.com/pitta999/orderportal/internal/platform/config"
	pfirestore "github.com/pitta999/orderportal/internal/platform/firestore"
	"github.com/pitta999/orderportal/internal/platform/idempotency"
	"github.com/pitta999/orderportal/internal/platform/jobs"
	"github.com/pitta999/orderportal/internal/platform/metrics"
	"github.com/pitta999/orderportal/internal/platform/observability"
	"github.com/pitta999/orderportal/internal/platform/secrets"
	platformstorage "github.com/pitta999/orderportal/internal/platform/storage"
	"github.com/pitta999/orderportal/internal/repositories"
	firestoreRepo "github.com/pitta999/orderportal/internal/repositories/firestore"
	"github.com/pitta999/orderportal/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	loadOpts := []config.Option{}
	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	if fetcher != nil {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		loadOpts = append(loadOpts, config.WithSecretResolver(fetcher))
	}

	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreClientOptions(cfg)...)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx, storageClientOptions(cfg)...)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	blobStore, err := platformstorage.NewGCSBlobStore(storageClient, cfg.Storage.RemittanceBucket)
	if err != nil {
		logger.Fatal("failed to initialise remittance blob store", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, blobStore, firestoreRepo.WithCloser(storageClient.Close))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderMetrics(promRegistry)
	jobMetrics := metrics.NewJobMetrics(promRegistry)

	deps := di.Dependencies{
		OrderMetrics: orderMetrics,
		JobMetrics:   jobMetrics,
		Logger:       logger,
		Clock:        time.Now,
		Checks: []repositories.DependencyCheck{
			{Name: "firestore", Critical: true, Check: firestoreProvider.Ping},
			{Name: "remittanceBucket", Check: blobStore.Ping},
		},
	}

	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: observability.EventLogger(logger, "stripe"),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe checkout provider", zap.Error(err))
		}
		deps.Checkout = stripeProvider
	} else {
		logger.Warn("stripe api key not configured; card checkout disabled")
	}

	var publisher *eventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicName != "" && cfg.PubSub.ProjectID != "" {
		publisher, err = newEventPublisher(ctx, cfg.PubSub.ProjectID, topicName)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		deps.Events = publisher.publisher
	}

	container, err := di.NewContainer(ctx, cfg, registry, deps)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	catalogHandlers := handlers.NewCatalogHandlers(authenticator, svc.Pricing)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyGuard := idempotency.Middleware(idempotencyStore,
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithKeyRequired(cfg.Idempotency.KeyRequired),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithPaymentService(svc.Payments),
		handlers.WithInvoiceService(svc.Invoices),
		handlers.WithRemittanceUploadLimits(cfg.Storage.MaxUploadBytes, cfg.Storage.UploadRateLimit, cfg.Storage.UploadRateWindow),
		handlers.WithIdempotency(idempotencyGuard),
	)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Pricing)
	jobHandlers := handlers.NewInternalJobHandlers(svc.Reconciler, time.Now)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:   envOrDefault("API_BUILD_VERSION", "dev"),
			CommitSHA: envOrDefault("API_BUILD_COMMIT_SHA", "unknown"),
			StartedAt: startedAt,
		}),
	}
	if container.Readiness != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessReporter(container.Readiness))
	}

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithMetricsHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry})),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(jobHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	jobCtx, jobCancel := context.WithCancel(observability.WithLogger(context.Background(), logger.Named("jobs")))
	var jobWG sync.WaitGroup
	if cfg.Jobs.ReconcileInterval > 0 {
		jobWG.Add(1)
		go func() {
			defer jobWG.Done()
			runReconcileLoop(jobCtx, svc.Reconciler, cfg.Jobs.ReconcileInterval, logger.Named("jobs"))
		}()
	}
	if cfg.Idempotency.CleanupInterval > 0 {
		jobWG.Add(1)
		go func() {
			defer jobWG.Done()
			runIdempotencyCleanup(jobCtx, idempotencyStore, cfg.Idempotency, logger.Named("jobs"))
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("order portal api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	jobCancel()
	jobWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if publisher != nil {
		publisher.Close()
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("repository close error", zap.Error(err))
	}
}

// runReconcileLoop runs the remittance reconciler on a fixed interval until ctx ends.
func runReconcileLoop(ctx context.Context, reconciler services.RemittanceReconciler, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			report, err := reconciler.Reconcile(runCtx, time.Now().UTC())
			cancel()
			if err != nil {
				logger.Error("remittance reconcile failed", zap.Error(err))
				continue
			}
			if report.OrphansDeleted > 0 || len(report.DanglingReferences) > 0 || report.Failures > 0 {
				logger.Info("remittance reconcile completed",
					zap.Int("scanned", report.Scanned),
					zap.Int("orphansDeleted", report.OrphansDeleted),
					zap.Int("dangling", len(report.DanglingReferences)),
					zap.Int("failures", report.Failures),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// runIdempotencyCleanup purges expired Idempotency-Key records on a fixed interval.
func runIdempotencyCleanup(ctx context.Context, store idempotency.Store, cfg config.IdempotencyConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed, err := store.PurgeExpired(ctx, time.Now().UTC(), cfg.CleanupBatchSize)
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys purged", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

type eventPublisher struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	publisher *jobs.PubSubOrderEventPublisher
}

func newEventPublisher(ctx context.Context, projectID, topicName string) (*eventPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &eventPublisher{client: client, topic: topic, publisher: publisher}, nil
}

// Close flushes pending messages before releasing the client.
func (p *eventPublisher) Close() {
	p.topic.Stop()
	_ = p.client.Close()
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	return auth.NewOIDCValidator(cache, audience, cfg.Security.OIDC.Issuers).RequireOIDC()
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	projectID := envOrDefault("API_SECRET_PROJECT_ID", strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID")))
	if projectID == "" {
		logger.Info("secret manager project not configured; secret references will not resolve")
		return nil, nil
	}
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if strings.EqualFold(envOrDefault("API_SECURITY_ENVIRONMENT", "local"), "local") {
		opts = append(opts, secrets.WithLocalFallback(os.Getenv("API_SECRET_FALLBACK_FILE")))
	}
	return secrets.NewFetcher(ctx, projectID, opts...)
}

func firestoreClientOptions(cfg config.Config) []pfirestore.ProviderOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []pfirestore.ProviderOption{pfirestore.WithClientOptions(option.WithCredentialsFile(file))}
	}
	return nil
}

func storageClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
