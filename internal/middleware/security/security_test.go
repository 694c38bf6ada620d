package security

import (
	"bytes"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "creditledger/internal/log"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	tests := []struct {
		name        string
		path        string
		https       bool
		wantNoStore bool
		wantHSTS    bool
	}{
		{"dashboard is never cached", "/dashboard/loans", false, true, false},
		{"auth page is never cached", "/auth", false, true, false},
		{"health check", "/healthz", false, false, false},
		{"https adds HSTS", "/static/app.css", true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.https {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
				t.Errorf("X-Frame-Options = %q", got)
			}
			if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "https://unpkg.com") {
				t.Errorf("CSP does not allow htmx from unpkg: %q", csp)
			}
			if got := rec.Header().Get("Cache-Control") == "no-store"; got != tt.wantNoStore {
				t.Errorf("no-store = %v, want %v", got, tt.wantNoStore)
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS set = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

func TestHeadersMiddleware_ForwardedProto(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestDetector_ClientIP(t *testing.T) {
	d := NewDetector(nil)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public client", "203.0.113.9:5555", "", "", "203.0.113.9"},
		{"spoofed header from public peer ignored", "203.0.113.9:5555", "1.1.1.1", "", "203.0.113.9"},
		{"trusted proxy forwards first hop", "10.0.0.2:80", "198.51.100.4, 10.0.0.2", "", "198.51.100.4"},
		{"trusted proxy with X-Real-IP", "127.0.0.1:80", "", "198.51.100.5", "198.51.100.5"},
		{"trusted proxy with garbage header", "192.168.1.1:80", "not-an-ip", "", "192.168.1.1"},
		{"remote without port", "203.0.113.10", "", "", "203.0.113.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_Inspect(t *testing.T) {
	d := NewDetector(nil)

	tests := []struct {
		name           string
		method         string
		target         string
		agent          string
		wantSuspicious bool
		wantBlocked    bool
	}{
		{"dashboard", http.MethodGet, "/dashboard?q=bpi", "Mozilla/5.0", false, false},
		{"env probe", http.MethodGet, "/.env", "Mozilla/5.0", true, false},
		{"wordpress probe", http.MethodGet, "/wp-login.php", "Mozilla/5.0", true, false},
		{"sql in query", http.MethodGet, "/dashboard?q=1%20union%20select", "Mozilla/5.0", true, false},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true, true},
		{"trace method", "TRACE", "/", "Mozilla/5.0", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			suspicious, blocked := d.Inspect(req)
			if suspicious != tt.wantSuspicious || blocked != tt.wantBlocked {
				t.Errorf("Inspect() = (%v, %v), want (%v, %v)", suspicious, blocked, tt.wantSuspicious, tt.wantBlocked)
			}
		})
	}
}

func TestDetector_Middleware(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})
	d := NewDetector(logger)

	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("probe status = %d, want passthrough", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("TRACE", "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("TRACE status = %d, want 403", rec.Code)
	}

	m := d.GetMetrics()
	if m.SuspiciousRequests != 2 || m.BlockedRequests != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if !strings.Contains(buf.String(), "Suspicious request") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

func TestDetector_AddTrustedProxyInvalid(t *testing.T) {
	if err := NewDetector(nil).AddTrustedProxy("nope"); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}
