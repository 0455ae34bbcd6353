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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/capability"
	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/itemview"
	"github.com/pitabwire/adminmeta/internal/listview"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/relationship"
	"github.com/pitabwire/adminmeta/internal/transport"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/internal/viewstate"
	"github.com/pitabwire/adminmeta/model"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "adminmeta", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(prometheus.DefaultRegisterer)
	}

	client := graphql.NewClient(cfg.GraphQL, graphql.WithMetrics(metrics), graphql.WithLogger(logger))

	// Admin metadata. A contract mismatch is fatal; an unreachable API is
	// retried on first use and reported by the readiness probe meanwhile.
	registry, err := views.FromNames(cfg.Meta.Views, nil)
	if err != nil {
		return fmt.Errorf("views: %w", err)
	}
	provider := adminmeta.NewProvider(metaSource(cfg, client), registry, metrics, logger)
	if _, err := provider.Get(ctx); err != nil {
		var contract *adminmeta.ContractError
		if errors.As(err, &contract) {
			return err
		}
		logger.Warn("admin meta not available yet", zap.Error(err))
	}

	evaluator, err := capability.NewEvaluator(cfg.Capability)
	if err != nil {
		return fmt.Errorf("capability: %w", err)
	}
	resolver := capability.NewResolver(evaluator, cfg.Capability.Cache)

	store, storeCloser, err := viewstate.Open(ctx, cfg.ViewState, logger)
	if err != nil {
		return err
	}
	mirror := viewstate.NewMirror(store, cfg.ViewState.Driver, cfg.ViewState.TTL, metrics, logger)

	labels := relationship.NewLabels(client, cfg.Relationship.Cache.TTL, cfg.Relationship.Cache.MaxEntries, metrics, logger)
	lists := listview.NewEngine(client, labels, metrics, logger)
	items := itemview.NewEngine(client, itemview.NewSessionStore(cfg.Forms, metrics), metrics, logger)

	readiness := observability.ReadinessChecks{
		MetaBuilt:  provider.Built,
		GraphQLAPI: client,
	}
	if mirror.Enabled() {
		readiness.ViewStateStore = mirror
	}
	if hc, ok := evaluator.(observability.HealthChecker); ok {
		readiness.PolicyEngine = hc
	}

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = observability.Handler()
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       authenticator(cfg.Identity, logger),
		CapabilityResolver: resolver,
		Meta:               provider,
		Lists:              lists,
		Items:              items,
		ViewState:          mirror,
		Exec:               client,
		Metrics:            metrics,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler:       observability.HandleReady(readiness),
		MetricsHandler:     metricsHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go reloadPolicyOnHangup(bgCtx, evaluator, resolver, logger)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("meta_source", cfg.Meta.Source),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	if storeCloser != nil {
		storeCloser()
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return serveErr
}

// metaSource returns the configured metadata source.
func metaSource(cfg *config.Config, client *graphql.Client) adminmeta.Source {
	if cfg.Meta.Source == "file" {
		return adminmeta.FileSource{Path: cfg.Meta.File}
	}
	return adminmeta.NewGraphQLSource(client)
}

func authenticator(cfg config.IdentityConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.Disabled {
		logger.Warn("identity verification disabled", zap.String("dev_subject", cfg.DevSubject))
		return transport.DevAuthenticator(cfg)
	}
	jwks := transport.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL).WithLogger(logger)
	return transport.JWTAuthenticator(cfg, jwks)
}

// reloadPolicyOnHangup re-reads role policies on SIGHUP and drops the
// cached capability sets.
func reloadPolicyOnHangup(ctx context.Context, evaluator model.PolicyEvaluator, resolver *capability.Resolver, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := evaluator.Sync(); err != nil {
				logger.Error("policy reload failed, keeping previous policy", zap.Error(err))
				continue
			}
			resolver.Purge()
			logger.Info("policy reloaded")
		}
	}
}
