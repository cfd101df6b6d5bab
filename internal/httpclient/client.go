// Package httpclient provides a safe outbound HTTP client with SSRF
// protections and bounded behavior.
package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iotfleet/usergate/internal/config"
	platformtls "github.com/iotfleet/usergate/internal/platform/tls"
)

var (
	ErrSSRFBlocked         = errors.New("request blocked by SSRF protection")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrResponseTooLarge    = errors.New("response body too large")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrRedirectBlocked     = errors.New("redirect blocked by policy")
	ErrRedirectNotSameHost = errors.New("redirect to different host blocked")
	ErrRedirectDowngrade   = errors.New("redirect from https to http blocked")
	ErrHostUnresolvable    = errors.New("host could not be resolved")
)

// Resolver abstracts DNS resolution for testing.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is a safe HTTP client with SSRF protections and bounded behavior.
type Client struct {
	cfg        *config.OutboundHTTPConfig
	httpClient *http.Client
	resolver   Resolver // for context-aware DNS in SSRF checks; nil uses net.DefaultResolver
}

// New creates a new safe HTTP client.
// The client ignores proxy environment variables (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
// Returns an error only when the configured CA file/dir cannot be loaded.
func New(cfg *config.OutboundHTTPConfig) (*Client, error) {
	if cfg == nil {
		cfg = &config.OutboundHTTPConfig{
			SSRFMode:         "strict",
			TimeoutMS:        10000,
			ConnectTimeoutMS: 2000,
			MaxRedirects:     1,
			MaxResponseBytes: 4194304,
		}
	}

	c := &Client{cfg: cfg}

	rootCAs, err := platformtls.BuildRootCAPool(cfg.CAFile, cfg.CADir)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		// Explicitly ignore proxy environment variables
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// Check SSRF before dialing (addr is host:port)
			if cfg.SSRFMode == "strict" {
				if err := c.checkSSRF(ctx, addr); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			RootCAs:            rootCAs,
			MinVersion:         tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		// No automatic redirect following - handled manually under constraints
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// SetResolver sets a custom DNS resolver (for testing).
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *Client) getResolver() Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	return net.DefaultResolver
}

// checkSSRF validates that the address is not a private/loopback address.
// The addr is in host:port format from the dialer.
func (c *Client) checkSSRF(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return c.checkSSRFHost(ctx, host)
}

// checkSSRFHost validates that the host is not a private/loopback address.
// Uses context-aware DNS resolution so cancellation is respected.
func (c *Client) checkSSRFHost(ctx context.Context, host string) error {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	lowerHost := strings.ToLower(host)
	if lowerHost == "localhost" || lowerHost == "localhost.localdomain" {
		return fmt.Errorf("%w: localhost is blocked", ErrSSRFBlocked)
	}

	// IP literals skip the DNS lookup.
	if ip := net.ParseIP(host); ip != nil {
		if !isAllowedIP(ip) {
			return fmt.Errorf("%w: IP %s is blocked", ErrSSRFBlocked, ip)
		}
		return nil
	}

	ipAddrs, err := c.getResolver().LookupIPAddr(ctx, host)
	if err != nil {
		// Cannot resolve - fail closed
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}

	for _, ipAddr := range ipAddrs {
		if !isAllowedIP(ipAddr.IP) {
			return fmt.Errorf("%w: %s resolves to blocked IP %s", ErrSSRFBlocked, host, ipAddr.IP)
		}
	}

	return nil
}

// isAllowedIP checks if an IP address is allowed (not private/loopback/link-local).
func isAllowedIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	if ip.IsPrivate() {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	if ip.IsUnspecified() {
		return false
	}
	if ip.IsMulticast() {
		return false
	}
	return true
}

// Get performs a GET request with safety protections.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return c.Do(req)
}

// Do performs an HTTP request with safety protections. Redirects are
// followed manually under same-host, no-downgrade constraints.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// Pre-flight SSRF check using Hostname() (not Host which includes port)
	if c.cfg.SSRFMode == "strict" {
		if err := c.checkSSRFHost(ctx, req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		return c.followRedirect(req, resp, 0)
	}

	return resp, nil
}

// followRedirect follows a single redirect with strict constraints.
func (c *Client) followRedirect(origReq *http.Request, resp *http.Response, depth int) (*http.Response, error) {
	defer resp.Body.Close()
	ctx := origReq.Context()

	maxRedirects := c.cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 1
	}
	if depth >= maxRedirects {
		return nil, fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: no Location header", ErrRedirectBlocked)
	}

	redirectURL, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Location: %v", ErrRedirectBlocked, err)
	}
	redirectURL = origReq.URL.ResolveReference(redirectURL)

	// https -> https only (no downgrade); http -> https is allowed
	if origReq.URL.Scheme == "https" && redirectURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectDowngrade, origReq.URL.Scheme, redirectURL.Scheme)
	}

	if !isSameHost(origReq.URL, redirectURL) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectNotSameHost, origReq.URL.Host, redirectURL.Host)
	}

	if c.cfg.SSRFMode == "strict" {
		if err := c.checkSSRFHost(ctx, redirectURL.Hostname()); err != nil {
			return nil, err
		}
	}

	newReq, err := http.NewRequestWithContext(ctx, origReq.Method, redirectURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}

	// Copy safe headers, never Authorization
	if ua := origReq.Header.Get("User-Agent"); ua != "" {
		newReq.Header.Set("User-Agent", ua)
	}
	if accept := origReq.Header.Get("Accept"); accept != "" {
		newReq.Header.Set("Accept", accept)
	}

	newResp, err := c.httpClient.Do(newReq)
	if err != nil {
		return nil, err
	}

	if isRedirect(newResp.StatusCode) {
		return c.followRedirect(newReq, newResp, depth+1)
	}

	return newResp, nil
}

// isSameHost checks if two URLs have the same host (hostname + effective port).
func isSameHost(a, b *url.URL) bool {
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	return effectivePort(a) == effectivePort(b)
}

// effectivePort returns the effective port for a URL.
// Missing port = scheme default. Explicit default port = same as missing.
func effectivePort(u *url.URL) string {
	port := u.Port()
	if port == "" || port == defaultPort(u.Scheme) {
		return defaultPort(u.Scheme)
	}
	return port
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func isRedirect(code int) bool {
	return code == http.StatusMovedPermanently ||
		code == http.StatusFound ||
		code == http.StatusSeeOther ||
		code == http.StatusTemporaryRedirect ||
		code == http.StatusPermanentRedirect
}

// ReadBody reads a response body enforcing the configured size limit.
// The response body is closed.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

type roundTripper struct {
	c *Client
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.c.Do(req)
}

// HTTPClient exposes this client as a plain *http.Client for libraries that
// accept one. SSRF and redirect constraints still apply.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: roundTripper{c}}
}

// IsSSRFError returns true if the error is an SSRF blocking error.
func IsSSRFError(err error) bool {
	return errors.Is(err, ErrSSRFBlocked) || errors.Is(err, ErrHostUnresolvable)
}
