package app

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capd/internal/domain"
	"capd/internal/infra/acquire"
)

func loadFromArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	v, err := NewViper(fs, "")
	require.NoError(t, err)
	return LoadConfig(v)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadFromArgs(t, "--registration-url=http://registry", "--routes-ref=routes.yaml")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultServiceName, cfg.Name)
	assert.Equal(t, domain.DefaultGRPCPort, cfg.GRPCPort)
	assert.Equal(t, domain.DefaultRegistrationRetries, cfg.Retries)
	assert.Equal(t, domain.DefaultDataDir, cfg.DataDir)
	assert.Equal(t, domain.DefaultReceiveTimeout, cfg.ReceiveTimeout)
	assert.Equal(t, "auto", cfg.AnnounceAddress)
	assert.Equal(t, acquire.WaitForever, cfg.WaitPolicy())
	assert.False(t, cfg.TLS.Enabled)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("CAPD_REGISTRATION_URL", "http://registry")
	t.Setenv("CAPD_ROUTES_REF", "datastore://routes")
	t.Setenv("CAPD_GRPC_PORT", "9300")
	t.Setenv("CAPD_NO_WAIT", "true")
	t.Setenv("CAPD_RECEIVE_TIMEOUT", "2s")
	t.Setenv("CAPD_INIT_FROM", "git@github.com:org/recipes.git")

	cfg, err := loadFromArgs(t, "--grpc-port=9400")
	require.NoError(t, err)

	assert.Equal(t, "datastore://routes", cfg.RoutesRef)
	assert.Equal(t, 9400, cfg.GRPCPort)
	assert.Equal(t, acquire.NoWait, cfg.WaitPolicy())
	assert.Equal(t, 2*time.Second, cfg.ReceiveTimeout)
	assert.Equal(t, "git@github.com:org/recipes.git", cfg.InitFrom)
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := loadFromArgs(t, "--client-id=abc", "--retries=0", "--tls-key=key.pem", "--log-level=loud")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "registration-url is required")
	assert.Contains(t, msg, "routes-ref is required")
	assert.Contains(t, msg, "client-id and client-secret must be set together")
	assert.Contains(t, msg, "retries must be positive")
	assert.Contains(t, msg, "tls-cert and tls-key must be set together")
	assert.Contains(t, msg, "log-level")
}

func TestLoadConfigWatchNeedsRules(t *testing.T) {
	_, err := loadFromArgs(t, "--registration-url=http://registry", "--routes-ref=routes.yaml", "--watch-rules")
	require.ErrorContains(t, err, "watch-rules requires rules-ref")
}
