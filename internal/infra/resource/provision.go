package resource

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	configurationFile = "capability.properties"
	secretFile        = "capability-secrets.properties"
)

// ProvisionInput carries configuration pushed by the registry for a capability.
type ProvisionInput struct {
	URI           string
	Configuration string
	Secret        string
}

// ProvisionResult points at the stored payloads.
type ProvisionResult struct {
	ConfigurationURI string
	SecretURI        string
}

// Provisioner stores provisioned configuration under the data directory.
type Provisioner struct {
	dataDir string
	logger  *zap.Logger
}

func NewProvisioner(dataDir string, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{dataDir: dataDir, logger: logger.Named("provisioner")}
}

func (p *Provisioner) Provision(ctx context.Context, in ProvisionInput) (ProvisionResult, error) {
	if err := ctx.Err(); err != nil {
		return ProvisionResult{}, err
	}
	scope := provisionScope(in.URI)
	if scope == "" {
		return ProvisionResult{}, fmt.Errorf("provision: uri is required")
	}
	dir := filepath.Join(p.dataDir, "provisioned", scope)

	var result ProvisionResult
	if in.Configuration != "" {
		path, err := writeAtomic(dir, configurationFile, []byte(in.Configuration), 0o644)
		if err != nil {
			return ProvisionResult{}, fmt.Errorf("provision configuration: %w", err)
		}
		result.ConfigurationURI = "file://" + path
	}
	if in.Secret != "" {
		path, err := writeAtomic(dir, secretFile, []byte(in.Secret), 0o600)
		if err != nil {
			return ProvisionResult{}, fmt.Errorf("provision secret: %w", err)
		}
		result.SecretURI = "file://" + path
	}
	p.logger.Info("capability provisioned",
		zap.String("uri", in.URI),
		zap.Bool("configuration", result.ConfigurationURI != ""),
		zap.Bool("secret", result.SecretURI != ""),
	)
	return result, nil
}

// provisionScope reduces a URI to a safe directory name.
func provisionScope(uri string) string {
	trimmed := strings.TrimSpace(uri)
	if _, rest, ok := strings.Cut(trimmed, "://"); ok {
		trimmed = rest
	}
	trimmed = strings.Trim(trimmed, "/")
	scope := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, trimmed)
	if strings.Trim(scope, ".") == "" {
		return ""
	}
	return scope
}
