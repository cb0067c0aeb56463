package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/acquire"
	"capd/internal/infra/discovery"
	"capd/internal/infra/resource"
	"capd/internal/infra/state"
	"capd/internal/infra/telemetry"
)

const (
	componentRegistration = "registration"
	componentResources    = "resources"
	componentCatalog      = "catalog"
	componentRPC          = "rpc"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker(componentRegistration, componentResources, componentCatalog, componentRPC)
}

// NewStateStore opens the local state database under the data dir.
func NewStateStore(cfg Config, logger *zap.Logger) (*state.Store, func(), error) {
	store, err := state.OpenStore(filepath.Join(cfg.DataDir, domain.StateFileName))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close state store failed", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

func NewDiscoveryClient(ctx context.Context, cfg Config, logger *zap.Logger) (*discovery.Client, error) {
	return discovery.NewClient(ctx, discovery.ClientOptions{
		BaseURL:       cfg.RegistrationURL,
		TokenEndpoint: cfg.TokenEndpoint,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Logger:        logger,
	})
}

// NewResourceReferences parses the configured locators once at startup.
func NewResourceReferences(cfg Config) ([]domain.ResourceReference, error) {
	return resource.NewReferenceList().
		Add(domain.ResourceRoutes, cfg.RoutesRef, true).
		Add(domain.ResourceRules, cfg.RulesRef, false).
		Add(domain.ResourceDependencies, cfg.DependenciesRef, false).
		Build()
}

func NewResourceStore(cfg Config, client *discovery.Client, logger *zap.Logger) *resource.Store {
	return resource.NewStore(cfg.DataDir, client, logger)
}

func NewCoordinator(cfg Config, store *resource.Store, refs []domain.ResourceReference, metrics domain.Metrics, logger *zap.Logger) *acquire.Coordinator {
	return acquire.NewCoordinator(store, refs, cfg.WaitPolicy(), logger, metrics)
}

// NewServiceTarget describes this process to the registry.
func NewServiceTarget(cfg Config) (domain.ServiceTarget, error) {
	host, err := ResolveAnnounceAddress(cfg.AnnounceAddress)
	if err != nil {
		return domain.ServiceTarget{}, err
	}
	return domain.ServiceTarget{
		Service:     cfg.Name,
		Host:        host,
		Port:        cfg.GRPCPort,
		ServiceType: domain.ServiceTypeMultiCapability,
	}, nil
}

func NewRegistrationManager(cfg Config, target domain.ServiceTarget, client *discovery.Client, store *state.Store, metrics domain.Metrics, logger *zap.Logger) *discovery.Manager {
	return discovery.NewManager(discovery.ManagerOptions{
		Target:       target,
		InitialDelay: cfg.seconds(cfg.InitialDelay),
		Period:       cfg.seconds(cfg.Period),
		WaitInterval: cfg.seconds(cfg.WaitSeconds),
		MaxRetries:   cfg.Retries,
		Registrar:    client,
		IDStore:      store,
		Logger:       logger,
		Metrics:      metrics,
	})
}

// NewInitializer seeds the data dir from --init-from before acquisition.
func NewInitializer(cfg Config, logger *zap.Logger) *resource.Initializer {
	return resource.NewInitializer(cfg.InitFrom, cfg.DataDir, resource.GitCloner{}, logger)
}

func NewProvisioner(cfg Config, logger *zap.Logger) *resource.Provisioner {
	return resource.NewProvisioner(cfg.DataDir, logger)
}

func rpcKeepalive() (time.Duration, time.Duration) {
	return domain.DefaultRPCKeepaliveTime, domain.DefaultRPCKeepaliveTimeout
}
