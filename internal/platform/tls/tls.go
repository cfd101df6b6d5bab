// Package tls provides TLS certificate management for the HTTPS listener.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")
)

// Manager handles TLS certificate loading and generation.
type Manager struct {
	cfg    *config.TLSConfig
	logger *slog.Logger
}

// NewManager creates a new TLS manager.
func NewManager(cfg *config.TLSConfig, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logutil.NoopIfNil(logger)}
}

// GetTLSConfig returns a tls.Config based on the configured mode.
// Returns nil for "off" mode.
func (m *Manager) GetTLSConfig(hostname string) (*cryptotls.Config, error) {
	switch m.cfg.Mode {
	case "off":
		return nil, nil

	case "static":
		return m.loadStaticCert()

	case "selfsigned":
		return m.getOrCreateSelfSigned(hostname)

	case "acme":
		// The actual certificate is served by the ACME manager via
		// GetCertificate; this config is replaced during server startup.
		m.logger.Info("ACME mode enabled",
			"domain", m.cfg.ACME.Domain,
			"email", m.cfg.ACME.Email,
			"staging", m.cfg.ACME.UseStaging)
		return &cryptotls.Config{MinVersion: cryptotls.VersionTLS12}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, m.cfg.Mode)
	}
}

// loadStaticCert loads a certificate from files.
func (m *Manager) loadStaticCert() (*cryptotls.Config, error) {
	if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
		return nil, ErrMissingCert
	}

	cert, err := cryptotls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	m.logger.Info("loaded static TLS certificate",
		"cert_file", m.cfg.CertFile,
		"key_file", m.cfg.KeyFile)

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

// getOrCreateSelfSigned loads or generates a self-signed certificate.
func (m *Manager) getOrCreateSelfSigned(hostname string) (*cryptotls.Config, error) {
	dir := m.cfg.SelfSignedDir
	if dir == "" {
		dir = ".usergate/certs"
	}

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil {
		m.logger.Info("loaded existing self-signed certificate",
			"cert_file", certFile)
		return &cryptotls.Config{
			Certificates: []cryptotls.Certificate{cert},
			MinVersion:   cryptotls.VersionTLS12,
		}, nil
	}

	m.logger.Info("generating self-signed certificate", "hostname", hostname)

	cert, err := m.generateSelfSigned(hostname, certFile, keyFile)
	if err != nil {
		return nil, err
	}

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

// generateSelfSigned creates a new self-signed certificate.
func (m *Manager) generateSelfSigned(hostname, certFile, keyFile string) (cryptotls.Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Usergate Development"},
			CommonName:   hostname,
		},
		NotBefore:             now,
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	} else {
		template.DNSNames = append(template.DNSNames, hostname)
	}

	// Always add localhost for development
	template.DNSNames = append(template.DNSNames, "localhost")
	template.IPAddresses = append(template.IPAddresses, net.ParseIP("127.0.0.1"), net.ParseIP("::1"))

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certFile), 0700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create cert directory: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to marshal key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write key: %w", err)
	}

	m.logger.Info("generated self-signed certificate",
		"cert_file", certFile,
		"key_file", keyFile,
		"expires", template.NotAfter)

	return cryptotls.X509KeyPair(certPEM, keyPEM)
}
