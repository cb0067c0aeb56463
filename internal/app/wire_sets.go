package app

import "github.com/google/wire"

var TelemetrySet = wire.NewSet(
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
)

var RegistrySet = wire.NewSet(
	NewStateStore,
	NewDiscoveryClient,
	NewServiceTarget,
	NewRegistrationManager,
)

var AcquisitionSet = wire.NewSet(
	NewInitializer,
	NewResourceReferences,
	NewResourceStore,
	NewCoordinator,
	NewProvisioner,
)

var AppSet = wire.NewSet(
	TelemetrySet,
	RegistrySet,
	AcquisitionSet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
