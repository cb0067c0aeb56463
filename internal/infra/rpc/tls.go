package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

// TLSConfig selects transport security for the exchange server and its
// clients. Client auth on the server requires CAFile.
type TLSConfig struct {
	Enabled    bool
	CertFile   string
	KeyFile    string
	CAFile     string
	ClientAuth bool
}

func (c TLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if c.ClientAuth && c.CAFile == "" {
		errs = append(errs, errors.New("tls client auth requires a ca file"))
	}
	return errors.Join(errs...)
}

func loadServerTLS(cfg TLSConfig) (credentials.TransportCredentials, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CertFile == "" {
		return nil, errors.New("tls server requires a cert and key")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tls server keypair: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientAuth {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientAuth = tls.RequireAndVerifyClientCert
		out.ClientCAs = pool
	}
	return credentials.NewTLS(out), nil
}

func loadClientTLS(cfg TLSConfig) (credentials.TransportCredentials, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		out.RootCAs = pool
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls client keypair: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(out), nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tls ca %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("tls ca %s: no certificates found", path)
	}
	return pool, nil
}
