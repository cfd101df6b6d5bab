package tls_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/iotfleet/usergate/internal/config"
	tlspkg "github.com/iotfleet/usergate/internal/platform/tls"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestManager_Off(t *testing.T) {
	cfg := &config.TLSConfig{Mode: "off"}
	mgr := tlspkg.NewManager(cfg, testLogger())

	tlsCfg, err := mgr.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg != nil {
		t.Error("expected nil TLS config for 'off' mode")
	}
}

func TestManager_Static_MissingFiles(t *testing.T) {
	cfg := &config.TLSConfig{
		Mode:     "static",
		CertFile: "",
		KeyFile:  "",
	}
	mgr := tlspkg.NewManager(cfg, testLogger())

	_, err := mgr.GetTLSConfig("localhost")
	if err != tlspkg.ErrMissingCert {
		t.Errorf("expected ErrMissingCert, got %v", err)
	}
}

func TestManager_SelfSigned_Generate(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &config.TLSConfig{
		Mode:          "selfsigned",
		SelfSignedDir: tempDir,
	}
	mgr := tlspkg.NewManager(cfg, testLogger())

	tlsCfg, err := mgr.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("GetTLSConfig failed: %v", err)
	}
	if tlsCfg == nil {
		t.Fatal("expected non-nil TLS config")
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Error("expected at least one certificate")
	}

	certFile := filepath.Join(tempDir, "server.crt")
	keyFile := filepath.Join(tempDir, "server.key")

	if _, err := os.Stat(certFile); os.IsNotExist(err) {
		t.Error("certificate file not created")
	}
	if _, err := os.Stat(keyFile); os.IsNotExist(err) {
		t.Error("key file not created")
	}
}

func TestManager_SelfSigned_Reload(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &config.TLSConfig{
		Mode:          "selfsigned",
		SelfSignedDir: tempDir,
	}
	mgr := tlspkg.NewManager(cfg, testLogger())

	// First call generates, second call loads the same files.
	tlsCfg1, err := mgr.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("first GetTLSConfig failed: %v", err)
	}
	tlsCfg2, err := mgr.GetTLSConfig("localhost")
	if err != nil {
		t.Fatalf("second GetTLSConfig failed: %v", err)
	}

	if len(tlsCfg1.Certificates) == 0 || len(tlsCfg2.Certificates) == 0 {
		t.Error("expected certificates in both configs")
	}
}

func TestManager_InvalidMode(t *testing.T) {
	cfg := &config.TLSConfig{Mode: "invalid"}
	mgr := tlspkg.NewManager(cfg, testLogger())

	_, err := mgr.GetTLSConfig("localhost")
	if err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestBuildRootCAPool_Empty(t *testing.T) {
	pool, err := tlspkg.BuildRootCAPool("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool != nil {
		t.Error("expected nil pool when no CA sources configured")
	}
}

func TestBuildRootCAPool_MissingFile(t *testing.T) {
	_, err := tlspkg.BuildRootCAPool(filepath.Join(t.TempDir(), "nope.pem"), "")
	if err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestBuildRootCAPool_FromSelfSigned(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &config.TLSConfig{Mode: "selfsigned", SelfSignedDir: tempDir}
	if _, err := tlspkg.NewManager(cfg, testLogger()).GetTLSConfig("localhost"); err != nil {
		t.Fatalf("failed to generate cert: %v", err)
	}

	pool, err := tlspkg.BuildRootCAPool(filepath.Join(tempDir, "server.crt"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool == nil {
		t.Fatal("expected non-nil pool")
	}

	pool, err = tlspkg.BuildRootCAPool("", tempDir)
	if err != nil {
		t.Fatalf("unexpected error for dir pool: %v", err)
	}
	if pool == nil {
		t.Fatal("expected non-nil pool from dir")
	}
}
