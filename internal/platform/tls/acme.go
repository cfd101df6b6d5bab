package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/platform/logutil"
)

const (
	acmeStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	acmeProductionURL = "https://acme-v02.api.letsencrypt.org/directory"

	challengePathPrefix = "/.well-known/acme-challenge/"
)

// acmeAccount satisfies lego's registration.User.
type acmeAccount struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (a *acmeAccount) GetEmail() string                        { return a.Email }
func (a *acmeAccount) GetRegistration() *registration.Resource { return a.Registration }
func (a *acmeAccount) GetPrivateKey() crypto.PrivateKey        { return a.key }

// challengeStore holds pending HTTP-01 key authorizations. lego calls
// Present/CleanUp; the challenge handler reads concurrently, so access
// is lock-protected. lego never binds its own listener.
type challengeStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func newChallengeStore() *challengeStore {
	return &challengeStore{tokens: make(map[string]string)}
}

func (s *challengeStore) Present(domain, token, keyAuth string) error {
	s.mu.Lock()
	s.tokens[token] = keyAuth
	s.mu.Unlock()
	return nil
}

func (s *challengeStore) CleanUp(domain, token, keyAuth string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}

func (s *challengeStore) lookup(token string) (string, bool) {
	s.mu.RLock()
	keyAuth, ok := s.tokens[token]
	s.mu.RUnlock()
	return keyAuth, ok
}

// ACMEManager obtains and serves certificates via lego. Account material
// and issued certificates live under the configured storage directory, so
// a restart with valid files makes no network calls.
type ACMEManager struct {
	cfg    *config.ACMEConfig
	logger *slog.Logger

	accountFile    string
	accountKeyFile string
	certFile       string
	certKeyFile    string

	store   *challengeStore
	rootCAs *x509.CertPool

	mu   sync.RWMutex
	cert *cryptotls.Certificate
}

// NewACMEManager creates a certificate manager. rootCAs applies to the
// connection to the ACME directory only; nil means system roots.
func NewACMEManager(cfg *config.ACMEConfig, logger *slog.Logger, rootCAs *x509.CertPool) *ACMEManager {
	return &ACMEManager{
		cfg:            cfg,
		logger:         logutil.NoopIfNil(logger),
		accountFile:    filepath.Join(cfg.StorageDir, "account.json"),
		accountKeyFile: filepath.Join(cfg.StorageDir, "account.key"),
		certFile:       filepath.Join(cfg.StorageDir, "cert.pem"),
		certKeyFile:    filepath.Join(cfg.StorageDir, "key.pem"),
		store:          newChallengeStore(),
		rootCAs:        rootCAs,
	}
}

// Init loads the stored certificate or obtains a fresh one. The challenge
// handler is serviceable before Init returns; the HTTP listener must be up
// first or the HTTP-01 validation will fail.
func (m *ACMEManager) Init(ctx context.Context) error {
	if m.cfg.Domain == "" {
		return errors.New("ACME domain is required")
	}
	if m.cfg.Email == "" {
		return errors.New("ACME email is required")
	}
	if err := os.MkdirAll(m.cfg.StorageDir, 0700); err != nil {
		return fmt.Errorf("failed to create ACME storage dir: %w", err)
	}

	if cert, err := cryptotls.LoadX509KeyPair(m.certFile, m.certKeyFile); err == nil {
		m.setCert(&cert)
		m.logger.Info("loaded stored ACME certificate", "domain", m.cfg.Domain)
		return nil
	}

	m.logger.Info("no stored certificate, contacting ACME directory", "domain", m.cfg.Domain)

	client, account, err := m.newClient()
	if err != nil {
		return err
	}

	if account.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{
			TermsOfServiceAgreed: true,
		})
		if err != nil {
			return fmt.Errorf("failed to register ACME account: %w", err)
		}
		account.Registration = reg
		if err := m.saveAccount(account); err != nil {
			m.logger.Warn("failed to save ACME account", "error", err)
		}
	}

	return m.obtain(client)
}

// GetCertificate plugs into tls.Config.GetCertificate.
func (m *ACMEManager) GetCertificate(hello *cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, errors.New("no certificate available")
	}
	return m.cert, nil
}

// GetTLSConfig returns a TLS config serving this manager's certificate.
func (m *ACMEManager) GetTLSConfig() *cryptotls.Config {
	return &cryptotls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     cryptotls.VersionTLS12,
	}
}

// ChallengeHandler answers HTTP-01 validation requests. Mount on the plain
// HTTP listener at the well-known challenge path.
func (m *ACMEManager) ChallengeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.URL.Path, challengePathPrefix)
		if token == "" || token == r.URL.Path {
			http.NotFound(w, r)
			return
		}
		keyAuth, ok := m.store.lookup(token)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, keyAuth)
	})
}

func (m *ACMEManager) setCert(cert *cryptotls.Certificate) {
	m.mu.Lock()
	m.cert = cert
	m.mu.Unlock()
}

// newClient builds the lego client with our challenge store and directory URL.
func (m *ACMEManager) newClient() (*lego.Client, *acmeAccount, error) {
	account, err := m.loadOrCreateAccount()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare ACME account: %w", err)
	}

	legoCfg := lego.NewConfig(account)
	legoCfg.CADirURL = m.directoryURL()
	legoCfg.Certificate.KeyType = certcrypto.EC256

	if m.rootCAs != nil {
		legoCfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &cryptotls.Config{
					RootCAs:    m.rootCAs,
					MinVersion: cryptotls.VersionTLS12,
				},
			},
		}
	}

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ACME client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(m.store); err != nil {
		return nil, nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}
	return client, account, nil
}

func (m *ACMEManager) directoryURL() string {
	if m.cfg.Directory != "" {
		return m.cfg.Directory
	}
	if m.cfg.UseStaging {
		return acmeStagingURL
	}
	return acmeProductionURL
}

func (m *ACMEManager) loadOrCreateAccount() (*acmeAccount, error) {
	if data, err := os.ReadFile(m.accountFile); err == nil {
		if keyPEM, err := os.ReadFile(m.accountKeyFile); err == nil {
			account := &acmeAccount{}
			if json.Unmarshal(data, account) == nil {
				if key, err := certcrypto.ParsePEMPrivateKey(keyPEM); err == nil {
					account.key = key
					return account, nil
				}
			}
		}
	}

	// Unreadable or absent account material starts a fresh registration.
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &acmeAccount{Email: m.cfg.Email, key: key}, nil
}

func (m *ACMEManager) saveAccount(account *acmeAccount) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.accountFile, data, 0600); err != nil {
		return err
	}
	return os.WriteFile(m.accountKeyFile, certcrypto.PEMEncode(account.key), 0600)
}

func (m *ACMEManager) obtain(client *lego.Client) error {
	m.logger.Info("obtaining ACME certificate", "domain", m.cfg.Domain)

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{m.cfg.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to obtain certificate: %w", err)
	}

	if err := os.WriteFile(m.certFile, res.Certificate, 0644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(m.certKeyFile, res.PrivateKey, 0600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	cert, err := cryptotls.X509KeyPair(res.Certificate, res.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	m.setCert(&cert)

	m.logger.Info("stored ACME certificate", "domain", m.cfg.Domain, "cert_file", m.certFile)
	return nil
}
