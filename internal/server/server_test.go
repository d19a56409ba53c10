package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend-lacakair/internal/config"
)

func testConfig() config.Config {
	cfg := config.Load()
	cfg.JWTSecret = "secret"
	cfg.ServerPort = ":0"
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	s, err := NewServer(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	resp, err := s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"lacakair_map_clusters", "lacakair_uploaded_bytes_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, target := range []string{"/posts", "/posts/p1/like", "/storage/upload"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodPost, target, nil))
		if err != nil {
			t.Fatalf("%s: %v", target, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, resp.StatusCode)
		}
	}
}

func TestStreamRouteRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, testConfig())

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/markers", nil))
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestNewServerRejectsBadUploader(t *testing.T) {
	cfg := testConfig()
	cfg.UploadEndpoint = "ftp://images.example"
	if _, err := NewServer(cfg, nil, nil, nil); err == nil {
		t.Fatalf("expected error for unsupported upload endpoint")
	}
}
