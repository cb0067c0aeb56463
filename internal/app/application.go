package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"capd/internal/domain"
	"capd/internal/infra/acquire"
	"capd/internal/infra/catalog"
	"capd/internal/infra/discovery"
	"capd/internal/infra/engine"
	"capd/internal/infra/mcpbridge"
	"capd/internal/infra/resource"
	"capd/internal/infra/router"
	"capd/internal/infra/rpc"
	"capd/internal/infra/state"
	"capd/internal/infra/telemetry"
)

// Application owns the serve lifecycle: registration, acquisition, catalog
// publication, serving and the ordered shutdown.
type Application struct {
	ctx    context.Context
	cfg    Config
	logger *zap.Logger

	registry    *prometheus.Registry
	metrics     domain.Metrics
	health      *telemetry.HealthTracker
	store       *state.Store
	client      *discovery.Client
	coordinator *acquire.Coordinator
	manager     *discovery.Manager
	initializer *resource.Initializer
	provisioner *resource.Provisioner
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	Context     context.Context
	Config      Config
	Logger      *zap.Logger
	Registry    *prometheus.Registry
	Metrics     domain.Metrics
	Health      *telemetry.HealthTracker
	Store       *state.Store
	Client      *discovery.Client
	Coordinator *acquire.Coordinator
	Manager     *discovery.Manager
	Initializer *resource.Initializer
	Provisioner *resource.Provisioner
}

func NewApplication(opts ApplicationOptions) *Application {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &Application{
		ctx:         ctx,
		cfg:         opts.Config,
		logger:      logger.Named("app"),
		registry:    opts.Registry,
		metrics:     metrics,
		health:      opts.Health,
		store:       opts.Store,
		client:      opts.Client,
		coordinator: opts.Coordinator,
		manager:     opts.Manager,
		initializer: opts.Initializer,
		provisioner: opts.Provisioner,
	}
}

// runtime is what exists once every resource has been acquired.
type runtime struct {
	engine    *engine.Engine
	builder   *catalog.Builder
	holder    *catalog.Holder
	handler   router.Handler
	rulesPath string
}

// Run blocks until the context ends or a server fails. Shutdown drains the
// RPC server, retracts the catalog and then deregisters.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
			Addr:     a.cfg.MetricsListen,
			Health:   a.health,
			Registry: a.registry,
		}, a.logger)
	})

	if a.initializer != nil {
		if _, err := a.initializer.Init(groupCtx); err != nil {
			cancel()
			_ = group.Wait()
			return fmt.Errorf("initialize data dir: %w", err)
		}
	}

	a.manager.AddCallback(a.onRegistrationAttempt)
	a.manager.Start(groupCtx)

	rt, err := a.bootstrap(groupCtx)
	if err != nil {
		cancel()
		_ = group.Wait()
		a.shutdown(nil)
		return ignoreCanceled(err)
	}

	a.serve(groupCtx, group, rt)

	err = group.Wait()
	cancel()
	a.shutdown(rt)
	return ignoreCanceled(err)
}

func (a *Application) onRegistrationAttempt(ctx context.Context, attempt discovery.Attempt) {
	if attempt.Registered {
		a.health.SetReady(componentRegistration)
	} else {
		a.health.SetDegraded(componentRegistration)
	}
	a.coordinator.OnAttempt(ctx)
}

func (a *Application) bootstrap(ctx context.Context) (*runtime, error) {
	waitCtx, cancelWait := context.WithCancelCause(ctx)
	defer cancelWait(nil)
	go func() {
		select {
		case <-a.manager.Exhausted():
			cancelWait(domain.ErrRegistrationExhausted)
		case <-waitCtx.Done():
		}
	}()

	a.logger.Info("waiting for resources", zap.String("policy", a.cfg.WaitPolicy().String()))
	ok, err := a.coordinator.Wait(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire resources: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire resources: %w", errors.Join(domain.ErrResourcesIncomplete, a.coordinator.Err()))
	}
	resources, err := a.coordinator.Resources()
	if err != nil {
		return nil, err
	}
	a.logger.Info("resources acquired", zap.Int("attempts", a.coordinator.Attempts()))
	a.health.SetReady(componentResources)

	eng, err := engine.Load(resources[domain.ResourceRoutes], resources[domain.ResourceDependencies], a.logger)
	if err != nil {
		return nil, err
	}

	builder := catalog.NewBuilder(catalog.BuilderOptions{
		Service:  a.cfg.Name,
		Client:   a.client,
		Recorder: a.store,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
	if report := builder.CleanupStale(ctx); len(report.Failures) > 0 {
		a.logger.Warn("stale catalog entries left behind", zap.Error(report.Err()))
	}

	cat := catalog.NewCatalog(domain.RuleSet{})
	rulesPath := resources[domain.ResourceRules]
	if rulesPath != "" {
		cat, err = builder.LoadAndPublish(ctx, rulesPath)
		if err != nil {
			return nil, err
		}
	}
	holder := catalog.NewHolder(cat)
	a.health.SetReady(componentCatalog)

	inner := router.New(holder, eng, router.Options{
		ReceiveTimeout: a.cfg.ReceiveTimeout,
		Logger:         a.logger,
	})
	return &runtime{
		engine:    eng,
		builder:   builder,
		holder:    holder,
		handler:   router.NewMetricRouter(inner, a.metrics),
		rulesPath: rulesPath,
	}, nil
}

func (a *Application) serve(ctx context.Context, group *errgroup.Group, rt *runtime) {
	keepaliveTime, keepaliveTimeout := rpcKeepalive()
	service := rpc.NewExchangeService(rt.handler, serviceDescriber{
		manager: a.manager,
		holder:  rt.holder,
		engine:  rt.engine,
	}, a.provisioner, a.logger)
	server := rpc.NewServer(service, rpc.ServerConfig{
		ListenAddress:    rpc.ListenAddress(a.cfg.GRPCPort),
		KeepaliveTime:    keepaliveTime,
		KeepaliveTimeout: keepaliveTimeout,
		ShutdownTimeout:  a.cfg.ShutdownTimeout,
		TLS:              a.cfg.TLS,
	}, a.logger)
	group.Go(func() error {
		return server.Run(ctx)
	})
	group.Go(func() error {
		select {
		case <-server.Ready():
			a.health.SetReady(componentRPC)
		case <-ctx.Done():
		}
		return nil
	})

	var watcher *catalog.Watcher
	if a.cfg.WatchRules && rt.rulesPath != "" {
		watcher = catalog.NewWatcher(rt.builder, rt.holder, rt.rulesPath, a.logger)
	}

	if a.cfg.MCPListen != "" {
		bridge := mcpbridge.New(mcpbridge.Options{
			Service: a.cfg.Name,
			Version: Version,
			Handler: rt.handler,
			Logger:  a.logger,
		})
		bridge.Sync(rt.holder.Load())
		if watcher != nil {
			watcher.OnReload(bridge.Sync)
		}
		group.Go(func() error {
			return bridge.Run(ctx, a.cfg.MCPListen)
		})
	}

	if watcher != nil {
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	group.Go(func() error {
		select {
		case <-a.manager.Exhausted():
			a.health.SetDegraded(componentRegistration)
			a.logger.Error("registration retry budget exhausted while serving", zap.Error(domain.ErrRegistrationExhausted))
		case <-ctx.Done():
		}
		return nil
	})
}

// shutdown runs after the RPC server drained.
func (a *Application) shutdown(rt *runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-a.manager.Done():
	case <-ctx.Done():
		a.logger.Warn("registration loop did not stop in time")
	}

	if rt != nil {
		report := rt.builder.Retract(ctx)
		if err := report.Err(); err != nil {
			a.logger.Warn("catalog retraction incomplete", zap.Error(err))
		}
	}

	err := a.manager.Deregister(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotRegistered):
		a.logger.Debug("nothing to deregister")
	default:
		a.logger.Warn("deregistration failed", zap.Error(err))
	}
}

type serviceDescriber struct {
	manager *discovery.Manager
	holder  *catalog.Holder
	engine  *engine.Engine
}

func (d serviceDescriber) Describe() rpc.Description {
	target, registered := d.manager.Target()
	cat := d.holder.Load()
	return rpc.Description{
		Target:       target,
		Registered:   registered,
		Tools:        cat.Names(domain.CapabilityTool),
		Resources:    cat.Names(domain.CapabilityResource),
		Dependencies: d.engine.Dependencies(),
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
