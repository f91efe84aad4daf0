// Package acme handles automatic TLS certificate management via ACME.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"
)

// Manager obtains and renews certificates for the capture HTTPS listener.
// Challenges are answered over HTTP-01 on the capture HTTP listener and
// TLS-ALPN-01 on the HTTPS listener.
type Manager struct {
	Domains []string
	Email   string
	Staging bool
	Logger  *zap.Logger

	config *certmagic.Config
	issuer *certmagic.ACMEIssuer
}

// SetLogger configures the global certmagic loggers.
// Call this before starting any HTTP servers that handle ACME challenges.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger
}

// NewManager creates a manager whose certificates and account data are
// kept in db alongside the captured logs.
func NewManager(domains []string, email string, db *sql.DB, staging bool, logger *zap.Logger) (*Manager, error) {
	if len(domains) == 0 {
		return nil, errors.New("acme: at least one domain is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	SetLogger(logger)

	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(db, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return nil, fmt.Errorf("create certmagic storage: %w", err)
	}

	cfg := certmagic.NewDefault()
	cfg.Storage = storage
	cfg.Logger = logger

	issuer := certmagic.NewACMEIssuer(cfg, certmagic.ACMEIssuer{
		CA:     caURL(staging),
		Email:  email,
		Agreed: true,
		Logger: logger,
	})
	cfg.Issuers = []certmagic.Issuer{issuer}

	return &Manager{
		Domains: domains,
		Email:   email,
		Staging: staging,
		Logger:  logger,
		config:  cfg,
		issuer:  issuer,
	}, nil
}

func caURL(staging bool) string {
	if staging {
		return certmagic.LetsEncryptStagingCA
	}
	return certmagic.LetsEncryptProductionCA
}

// HTTPChallengeHandler wraps next so HTTP-01 challenge requests are
// answered before they reach the capture pipeline.
func (m *Manager) HTTPChallengeHandler(next http.Handler) http.Handler {
	return m.issuer.HTTPChallengeHandler(next)
}

// Manage obtains certificates for every domain and keeps them renewed.
// The capture HTTP listener must already be serving HTTPChallengeHandler.
func (m *Manager) Manage(ctx context.Context) error {
	if err := m.config.ManageSync(ctx, m.Domains); err != nil {
		return fmt.Errorf("manage certificates for %v: %w", m.Domains, err)
	}
	return nil
}

// TLSConfig returns a TLS configuration that serves the managed
// certificates and answers TLS-ALPN-01 challenges.
func (m *Manager) TLSConfig() *tls.Config {
	tlsConfig := m.config.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	return tlsConfig
}
