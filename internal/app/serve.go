package app

import (
	"context"

	"go.uber.org/zap"
)

// Serve wires the application for cfg and runs it until ctx ends.
func Serve(ctx context.Context, cfg Config, logger *zap.Logger) error {
	application, cleanup, err := InitializeApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("capd starting",
		zap.String("service", cfg.Name),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("version", Version),
	)
	return application.Run()
}
