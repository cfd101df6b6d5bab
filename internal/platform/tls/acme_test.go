package tls

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/iotfleet/usergate/internal/config"
)

func TestChallengeStorePresentAndCleanUp(t *testing.T) {
	s := newChallengeStore()

	if err := s.Present("example.com", "tok1", "auth1"); err != nil {
		t.Fatalf("Present(tok1): %v", err)
	}
	if err := s.Present("example.com", "tok2", "auth2"); err != nil {
		t.Fatalf("Present(tok2): %v", err)
	}

	if v, ok := s.lookup("tok1"); !ok || v != "auth1" {
		t.Errorf("tok1: got %q, ok=%v; want auth1, true", v, ok)
	}

	if err := s.CleanUp("example.com", "tok1", "auth1"); err != nil {
		t.Fatalf("CleanUp(tok1): %v", err)
	}
	if _, ok := s.lookup("tok1"); ok {
		t.Error("tok1 should be gone after CleanUp")
	}
	if v, ok := s.lookup("tok2"); !ok || v != "auth2" {
		t.Errorf("tok2 after tok1 cleanup: got %q, ok=%v; want auth2, true", v, ok)
	}
}

func TestChallengeStoreConcurrentAccess(t *testing.T) {
	s := newChallengeStore()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			keyAuth := fmt.Sprintf("auth-%d", i)
			if err := s.Present("example.com", token, keyAuth); err != nil {
				t.Errorf("Present(%s): %v", token, err)
			}
			if err := s.CleanUp("example.com", token, keyAuth); err != nil {
				t.Errorf("CleanUp(%s): %v", token, err)
			}
		}(i)
	}
	wg.Wait()
}

func newTestACMEManager(t *testing.T) *ACMEManager {
	t.Helper()
	return NewACMEManager(&config.ACMEConfig{
		Email:      "ops@example.com",
		StorageDir: t.TempDir(),
	}, nil, nil)
}

func TestChallengeHandlerServesKeyAuth(t *testing.T) {
	m := newTestACMEManager(t)
	if err := m.store.Present("example.com", "test-token", "test-key-auth"); err != nil {
		t.Fatalf("Present: %v", err)
	}

	rec := httptest.NewRecorder()
	m.ChallengeHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/acme-challenge/test-token", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if body := rec.Body.String(); body != "test-key-auth" {
		t.Errorf("body = %q, want test-key-auth", body)
	}
}

func TestChallengeHandlerRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"unknown token", "/.well-known/acme-challenge/unknown"},
		{"empty token", "/.well-known/acme-challenge/"},
		{"wrong path", "/other/path"},
	}

	m := newTestACMEManager(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			m.ChallengeHandler().ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", rec.Code)
			}
		})
	}
}

func TestAccountSaveLoadRoundTrip(t *testing.T) {
	m := newTestACMEManager(t)

	created, err := m.loadOrCreateAccount()
	if err != nil {
		t.Fatalf("loadOrCreateAccount: %v", err)
	}
	if created.Email != "ops@example.com" {
		t.Errorf("email = %q", created.Email)
	}
	if created.key == nil {
		t.Fatal("expected a generated account key")
	}
	if err := m.saveAccount(created); err != nil {
		t.Fatalf("saveAccount: %v", err)
	}

	loaded, err := m.loadOrCreateAccount()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Email != created.Email {
		t.Errorf("reloaded email = %q, want %q", loaded.Email, created.Email)
	}
	if loaded.key == nil {
		t.Error("expected reloaded account key")
	}
}

func TestDirectoryURLSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ACMEConfig
		want string
	}{
		{"explicit directory wins", config.ACMEConfig{Directory: "https://ca.example.com/dir", UseStaging: true}, "https://ca.example.com/dir"},
		{"staging", config.ACMEConfig{UseStaging: true}, acmeStagingURL},
		{"production default", config.ACMEConfig{}, acmeProductionURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewACMEManager(&tt.cfg, nil, nil)
			if got := m.directoryURL(); got != tt.want {
				t.Errorf("directoryURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
