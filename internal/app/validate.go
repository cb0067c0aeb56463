package app

import (
	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/engine"
	"capd/internal/infra/rules"
)

// ValidateConfig names local files of a capability bundle.
type ValidateConfig struct {
	RoutesPath       string
	RulesPath        string
	DependenciesPath string
}

// BundleSummary counts what a validated bundle declares.
type BundleSummary struct {
	Routes       int
	Tools        int
	Resources    int
	Dependencies int
}

// Validate parses a bundle without contacting the registry.
func Validate(cfg ValidateConfig, logger *zap.Logger) (BundleSummary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("validate")

	var summary BundleSummary
	if cfg.RoutesPath != "" {
		eng, err := engine.Load(cfg.RoutesPath, cfg.DependenciesPath, logger)
		if err != nil {
			return BundleSummary{}, err
		}
		summary.Routes = len(eng.RouteIDs())
		summary.Dependencies = len(eng.Dependencies())
	} else if cfg.DependenciesPath != "" {
		deps, err := engine.LoadDependencies(cfg.DependenciesPath)
		if err != nil {
			return BundleSummary{}, err
		}
		summary.Dependencies = len(deps)
	}
	if cfg.RulesPath != "" {
		set, err := rules.Load(cfg.RulesPath, logger)
		if err != nil {
			return BundleSummary{}, err
		}
		summary.Tools = set.Count(domain.CapabilityTool)
		summary.Resources = set.Count(domain.CapabilityResource)
	}

	logger.Info("bundle validated",
		zap.Int("routes", summary.Routes),
		zap.Int("tools", summary.Tools),
		zap.Int("resources", summary.Resources),
		zap.Int("dependencies", summary.Dependencies),
	)
	return summary, nil
}
