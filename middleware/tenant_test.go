package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/tenancy"
)

func TestTenantIdentity(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		header string
		base   string
		want   string
	}{
		{name: "header wins", host: "acme.example.com", header: "globex", base: "example.com", want: "globex"},
		{name: "subdomain", host: "acme.example.com", base: "example.com", want: "acme"},
		{name: "subdomain with port", host: "acme.example.com:8080", base: "example.com", want: "acme"},
		{name: "nested subdomain", host: "api.acme.example.com", base: "example.com", want: "api"},
		{name: "mixed case", host: "ACME.Example.com", base: ".example.com", want: "acme"},
		{name: "bare domain", host: "example.com", base: "example.com", want: ""},
		{name: "foreign domain", host: "acme.other.org", base: "example.com", want: ""},
		{name: "no base domain", host: "acme.example.com", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set(TenantHeader, tt.header)
			}
			if got := TenantIdentity(req, tt.base); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTenantMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := repositories.NewMemoryTenantRepository(
		&models.Tenant{ID: "t1", Slug: "acme", DBName: "tenant_acme", Status: models.TenantStatusActive},
		&models.Tenant{ID: "t2", Slug: "frozen", DBName: "tenant_frozen", Status: models.TenantStatusSuspended},
	)
	manager := tenancy.NewManager(catalog, tenancy.NewMemoryConnector(), tenancy.Options{MaxTenants: 2}, logger)

	var seen string
	handler := Tenant(manager, "example.com", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lease, ok := LeaseFromContext(r.Context())
		if !ok {
			t.Errorf("lease missing from context")
			return
		}
		seen = lease.Tenant().Slug
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		host string
		want int
	}{
		{name: "active", host: "acme.example.com", want: http.StatusNoContent},
		{name: "unknown", host: "nobody.example.com", want: http.StatusNotFound},
		{name: "suspended", host: "frozen.example.com", want: http.StatusForbidden},
		{name: "undetermined", host: "localhost", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
			req.Host = tt.host
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
	if seen != "acme" {
		t.Fatalf("expected handler to run for acme, got %q", seen)
	}
	if manager.Len() != 1 {
		t.Fatalf("expected one cached tenant store, got %d", manager.Len())
	}
}
