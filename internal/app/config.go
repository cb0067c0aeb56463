package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"capd/internal/domain"
	"capd/internal/infra/acquire"
	"capd/internal/infra/rpc"
)

const envPrefix = "CAPD"

const (
	keyRegistrationURL    = "registration-url"
	keyAnnounceAddress    = "registration-announce-address"
	keyGRPCPort           = "grpc-port"
	keyName               = "name"
	keyRetries            = "retries"
	keyWaitSeconds        = "wait-seconds"
	keyInitialDelay       = "initial-delay"
	keyPeriod             = "period"
	keyRoutesRef          = "routes-ref"
	keyRulesRef           = "rules-ref"
	keyDependencies       = "dependencies"
	keyDataDir            = "data-dir"
	keyNoWait             = "no-wait"
	keyInitFrom           = "init-from"
	keyTokenEndpoint      = "token-endpoint"
	keyClientID           = "client-id"
	keyClientSecret       = "client-secret"
	keyReceiveTimeout     = "receive-timeout"
	keyWatchRules         = "watch-rules"
	keyMetricsListen      = "metrics-listen"
	keyMCPListen          = "mcp-listen"
	keyLogLevel           = "log-level"
	keyTLSCert            = "tls-cert"
	keyTLSKey             = "tls-key"
	keyTLSCA              = "tls-ca"
	keyTLSClientAuth      = "tls-client-auth"
	keyRPCShutdownTimeout = "shutdown-timeout"
)

// Config is the resolved runtime configuration of the serve command.
type Config struct {
	RegistrationURL string
	AnnounceAddress string
	GRPCPort        int
	Name            string

	Retries      int
	WaitSeconds  int
	InitialDelay int
	Period       int

	RoutesRef       string
	RulesRef        string
	DependenciesRef string
	DataDir         string
	NoWait          bool
	InitFrom        string

	TokenEndpoint string
	ClientID      string
	ClientSecret  string

	ReceiveTimeout  time.Duration
	ShutdownTimeout time.Duration
	WatchRules      bool
	MetricsListen   string
	MCPListen       string
	LogLevel        string
	TLS             rpc.TLSConfig
}

// BindFlags declares every configuration key on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(keyRegistrationURL, "", "base URL of the discovery registry")
	fs.String(keyAnnounceAddress, domain.DefaultAnnounceAddress, "address announced to the registry (auto picks the first non-loopback IPv4)")
	fs.Int(keyGRPCPort, domain.DefaultGRPCPort, "port of the gRPC exchange server")
	fs.String(keyName, domain.DefaultServiceName, "service name, also the authority of capability URIs")
	fs.Int(keyRetries, domain.DefaultRegistrationRetries, "consecutive registration failures before giving up")
	fs.Int(keyWaitSeconds, domain.DefaultRegistrationWaitSecs, "seconds between failed registration attempts")
	fs.Int(keyInitialDelay, domain.DefaultRegistrationDelaySecs, "seconds before the first registration attempt")
	fs.Int(keyPeriod, domain.DefaultRegistrationPeriodSecs, "seconds between registration pings")
	fs.String(keyRoutesRef, "", "routes definition reference (path, file://path or datastore://name)")
	fs.String(keyRulesRef, "", "rule specification reference (path, file://path or datastore://name)")
	fs.String(keyDependencies, "", "dependencies manifest reference (path, file://path or datastore://name)")
	fs.String(keyDataDir, domain.DefaultDataDir, "directory for downloaded resources and local state")
	fs.Bool(keyNoWait, false, "do not wait for every resource before serving")
	fs.String(keyInitFrom, "", "git repository cloned into the data dir before acquisition; file references may point into it")
	fs.String(keyTokenEndpoint, "", "OAuth2 token endpoint (defaults to the registry realm endpoint)")
	fs.String(keyClientID, "", "OAuth2 client id")
	fs.String(keyClientSecret, "", "OAuth2 client secret")
	fs.Duration(keyReceiveTimeout, domain.DefaultReceiveTimeout, "timeout of resource receive calls")
	fs.Duration(keyRPCShutdownTimeout, domain.DefaultShutdownTimeout, "graceful drain timeout of the gRPC server")
	fs.Bool(keyWatchRules, false, "reload the rule specification when the local file changes")
	fs.String(keyMetricsListen, "", "listen address of the /metrics and /healthz server (empty disables)")
	fs.String(keyMCPListen, "", "listen address of the MCP streamable HTTP endpoint (empty disables)")
	fs.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	fs.String(keyTLSCert, "", "TLS certificate of the gRPC server")
	fs.String(keyTLSKey, "", "TLS key of the gRPC server")
	fs.String(keyTLSCA, "", "CA bundle used to verify gRPC clients")
	fs.Bool(keyTLSClientAuth, false, "require client certificates on the gRPC server")
}

// NewViper layers fs over the environment and an optional config file.
func NewViper(fs *pflag.FlagSet, configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	return v, nil
}

// LoadConfig reads Config out of v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		RegistrationURL: strings.TrimSpace(v.GetString(keyRegistrationURL)),
		AnnounceAddress: strings.TrimSpace(v.GetString(keyAnnounceAddress)),
		GRPCPort:        v.GetInt(keyGRPCPort),
		Name:            strings.TrimSpace(v.GetString(keyName)),
		Retries:         v.GetInt(keyRetries),
		WaitSeconds:     v.GetInt(keyWaitSeconds),
		InitialDelay:    v.GetInt(keyInitialDelay),
		Period:          v.GetInt(keyPeriod),
		RoutesRef:       strings.TrimSpace(v.GetString(keyRoutesRef)),
		RulesRef:        strings.TrimSpace(v.GetString(keyRulesRef)),
		DependenciesRef: strings.TrimSpace(v.GetString(keyDependencies)),
		DataDir:         strings.TrimSpace(v.GetString(keyDataDir)),
		NoWait:          v.GetBool(keyNoWait),
		InitFrom:        strings.TrimSpace(v.GetString(keyInitFrom)),
		TokenEndpoint:   strings.TrimSpace(v.GetString(keyTokenEndpoint)),
		ClientID:        v.GetString(keyClientID),
		ClientSecret:    v.GetString(keyClientSecret),
		ReceiveTimeout:  v.GetDuration(keyReceiveTimeout),
		ShutdownTimeout: v.GetDuration(keyRPCShutdownTimeout),
		WatchRules:      v.GetBool(keyWatchRules),
		MetricsListen:   strings.TrimSpace(v.GetString(keyMetricsListen)),
		MCPListen:       strings.TrimSpace(v.GetString(keyMCPListen)),
		LogLevel:        strings.TrimSpace(v.GetString(keyLogLevel)),
		TLS: rpc.TLSConfig{
			CertFile:   v.GetString(keyTLSCert),
			KeyFile:    v.GetString(keyTLSKey),
			CAFile:     v.GetString(keyTLSCA),
			ClientAuth: v.GetBool(keyTLSClientAuth),
		},
	}
	cfg.TLS.Enabled = cfg.TLS.CertFile != "" || cfg.TLS.KeyFile != ""
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AnnounceAddress == "" {
		cfg.AnnounceAddress = domain.DefaultAnnounceAddress
	}
	if cfg.Name == "" {
		cfg.Name = domain.DefaultServiceName
	}
	if cfg.DataDir == "" {
		cfg.DataDir = domain.DefaultDataDir
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = domain.DefaultReceiveTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = domain.DefaultShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.RegistrationURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyRegistrationURL))
	}
	if c.RoutesRef == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyRoutesRef))
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535", keyGRPCPort))
	}
	if c.Retries <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyRetries))
	}
	if c.WaitSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyWaitSeconds))
	}
	if c.Period <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyPeriod))
	}
	if c.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", keyInitialDelay))
	}
	if (c.ClientID == "") != (c.ClientSecret == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", keyClientID, keyClientSecret))
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", keyTLSCert, keyTLSKey))
	}
	if c.TLS.ClientAuth && c.TLS.CAFile == "" {
		errs = append(errs, fmt.Errorf("%s requires %s", keyTLSClientAuth, keyTLSCA))
	}
	if c.WatchRules && c.RulesRef == "" {
		errs = append(errs, fmt.Errorf("%s requires %s", keyWatchRules, keyRulesRef))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) WaitPolicy() acquire.WaitPolicy {
	if c.NoWait {
		return acquire.NoWait
	}
	return acquire.WaitForever
}

func (c Config) seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
