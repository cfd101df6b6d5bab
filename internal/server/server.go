// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/netutil"

	"github.com/iotfleet/usergate/internal/command"
	"github.com/iotfleet/usergate/internal/config"
	"github.com/iotfleet/usergate/internal/directory"
	"github.com/iotfleet/usergate/internal/identity"
	"github.com/iotfleet/usergate/internal/platform/logutil"
	tlspkg "github.com/iotfleet/usergate/internal/platform/tls"
	"github.com/iotfleet/usergate/internal/users"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds the server's dependencies.
type Deps struct {
	// Required: the directory adapter behind the operation handlers.
	Directory directory.Client

	// Required: operation handler service.
	Users *users.Service

	// Required: caller authentication for the command endpoint.
	KeyAuth *identity.KeyAuth
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	logger         *slog.Logger
	deps           *Deps
	trustedProxies *TrustedProxies
	cmdHandler     *command.Handler

	// challengeServer is the HTTP listener for ACME HTTP-01 challenges and
	// HTTPS redirects. Nil except in ACME mode.
	challengeServer *http.Server

	// rootCAs is the merged root CA pool for ACME directory communication.
	rootCAs *x509.CertPool
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		deps:           deps,
		trustedProxies: NewTrustedProxies(cfg.Server.TrustedProxies),
		cmdHandler:     command.NewHandler(command.NewDispatcher(deps.Users)),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// SetRootCAPool sets the root CA pool for ACME directory communication.
// Call before Start().
func (s *Server) SetRootCAPool(pool *x509.CertPool) {
	s.rootCAs = pool
}

// Handler returns the server's router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_origin", s.cfg.ExternalOrigin,
		"tls_mode", s.cfg.TLS.Mode,
		"auth_mode", s.cfg.Auth.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		ln, err := s.listen(s.cfg.ListenAddr)
		if err != nil {
			return err
		}
		return s.httpServer.Serve(ln)

	case "acme":
		return s.startACME()

	case "static", "selfsigned":
		tlsManager := tlspkg.NewManager(&s.cfg.TLS, s.logger)
		hostname, err := extractHostname(s.cfg.ExternalOrigin)
		if err != nil {
			return fmt.Errorf("failed to derive TLS hostname: %w", err)
		}
		tlsConfig, err := tlsManager.GetTLSConfig(hostname)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		if tlsConfig == nil {
			return fmt.Errorf("TLS config is nil for mode %s", s.cfg.TLS.Mode)
		}

		s.httpServer.TLSConfig = tlsConfig
		s.logger.Info("starting server with TLS", "mode", s.cfg.TLS.Mode)

		ln, err := s.listen(s.cfg.ListenAddr)
		if err != nil {
			return err
		}
		return s.httpServer.ServeTLS(ln, "", "")

	default:
		return fmt.Errorf("%w: %s", tlspkg.ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// listen binds addr and applies the configured connection cap.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listener bind failed on %s: %w", addr, err)
	}
	if s.cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConns)
	}
	return ln, nil
}

// startACME runs the server in ACME mode with two listeners: an HTTP
// listener for HTTP-01 challenges and HTTPS redirects, and an HTTPS
// listener for the application router.
func (s *Server) startACME() error {
	host, _, err := net.SplitHostPort(s.cfg.ListenAddr)
	if err != nil {
		// ListenAddr might be a bare host or IP without a port.
		host = s.cfg.ListenAddr
	}

	if s.cfg.TLS.HTTPPort == 0 {
		return errors.New("tls.http_port must be set for ACME mode")
	}
	if s.cfg.TLS.HTTPSPort == 0 {
		return errors.New("tls.https_port must be set for ACME mode")
	}

	acmeMgr := tlspkg.NewACMEManager(&s.cfg.TLS.ACME, s.logger, s.rootCAs)

	// HTTP router: challenges on their well-known path, redirect everything else.
	challengeMux := http.NewServeMux()
	challengeMux.Handle("/.well-known/acme-challenge/", acmeMgr.ChallengeHandler())
	challengeMux.Handle("/", newHTTPSRedirectHandler(s.cfg.TLS.HTTPSPort))

	httpAddr := net.JoinHostPort(host, strconv.Itoa(s.cfg.TLS.HTTPPort))
	s.challengeServer = &http.Server{
		Addr:         httpAddr,
		Handler:      challengeMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	challengeListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("challenge listener bind failed on %s: %w", httpAddr, err)
	}

	closeChallengeServer := func() {
		if s.challengeServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if shutdownErr := s.challengeServer.Shutdown(shutdownCtx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
			_ = s.challengeServer.Close()
		}
	}

	challengeErrCh := make(chan error, 1)
	go func() {
		challengeErrCh <- s.challengeServer.Serve(challengeListener)
	}()

	// Init loads existing certs (fast path) or contacts the ACME server.
	if initErr := acmeMgr.Init(context.Background()); initErr != nil {
		closeChallengeServer()
		return fmt.Errorf("ACME initialization failed: %w", initErr)
	}

	s.httpServer.Addr = net.JoinHostPort(host, strconv.Itoa(s.cfg.TLS.HTTPSPort))
	s.httpServer.TLSConfig = acmeMgr.GetTLSConfig()

	httpsListener, err := s.listen(s.httpServer.Addr)
	if err != nil {
		closeChallengeServer()
		return err
	}

	httpsErrCh := make(chan error, 1)
	go func() {
		httpsErrCh <- s.httpServer.ServeTLS(httpsListener, "", "")
	}()

	s.logger.Info("starting ACME server",
		"http_addr", httpAddr,
		"https_addr", s.httpServer.Addr,
		"domain", s.cfg.TLS.ACME.Domain,
	)

	select {
	case httpsErr := <-httpsErrCh:
		closeChallengeServer()
		return httpsErr
	case challengeErr := <-challengeErrCh:
		if errors.Is(challengeErr, http.ErrServerClosed) {
			return <-httpsErrCh
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return fmt.Errorf("challenge server exited unexpectedly: %w", challengeErr)
	}
}

// newHTTPSRedirectHandler returns a handler that issues HTTP 308 Permanent
// Redirect to the HTTPS equivalent of the request URL.
func newHTTPSRedirectHandler(httpsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostOnly := r.Host
		if h, _, err := net.SplitHostPort(hostOnly); err == nil {
			hostOnly = h
		}

		var target string
		if httpsPort == 443 {
			target = "https://" + hostOnly + r.URL.RequestURI()
		} else {
			target = fmt.Sprintf("https://%s%s", net.JoinHostPort(hostOnly, strconv.Itoa(httpsPort)), r.URL.RequestURI())
		}

		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// In ACME mode, stop accepting challenges before tearing down HTTPS.
	var challengeErr error
	if s.challengeServer != nil {
		challengeErr = s.challengeServer.Shutdown(ctx)
	}

	return errors.Join(challengeErr, s.httpServer.Shutdown(ctx))
}

// extractHostname returns the hostname (no port) of an origin URL, for TLS
// certificate generation.
func extractHostname(externalOrigin string) (string, error) {
	if externalOrigin == "" {
		return "localhost", nil
	}
	u, err := url.Parse(externalOrigin)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no hostname in external origin %q", externalOrigin)
	}
	return u.Hostname(), nil
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Directory == nil {
		return fmt.Errorf("%w: Directory", ErrMissingDep)
	}
	if deps.Users == nil {
		return fmt.Errorf("%w: Users", ErrMissingDep)
	}
	if deps.KeyAuth == nil {
		return fmt.Errorf("%w: KeyAuth", ErrMissingDep)
	}
	return nil
}
