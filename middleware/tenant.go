package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/Dosada05/tournament-engine/tenancy"
	"github.com/gosimple/slug"
)

const TenantHeader = "X-Tenant-ID"

type TenantPool interface {
	Resolve(ctx context.Context, identity string) (*models.Tenant, error)
	Acquire(ctx context.Context, tenant *models.Tenant) (*tenancy.Lease, error)
}

// TenantIdentity reads the tenant from the X-Tenant-ID header or, failing
// that, from the first host label under baseDomain.
func TenantIdentity(r *http.Request, baseDomain string) string {
	if v := strings.TrimSpace(r.Header.Get(TenantHeader)); v != "" {
		return v
	}
	if baseDomain == "" {
		return ""
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	suffix := "." + strings.ToLower(strings.TrimPrefix(baseDomain, "."))
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	if i := strings.Index(sub, "."); i >= 0 {
		sub = sub[:i]
	}
	return slug.Make(sub)
}

// Tenant resolves the request's tenant and leases its store for the
// duration of the request.
func Tenant(pool TenantPool, baseDomain string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := TenantIdentity(r, baseDomain)
			if identity == "" {
				errorJSON(w, http.StatusBadRequest, "tenant could not be determined from the request")
				return
			}

			tenant, err := pool.Resolve(r.Context(), identity)
			if err != nil {
				tenantError(w, logger, identity, err)
				return
			}
			lease, err := pool.Acquire(r.Context(), tenant)
			if err != nil {
				tenantError(w, logger, identity, err)
				return
			}
			defer lease.Release()

			next.ServeHTTP(w, r.WithContext(WithLease(r.Context(), lease)))
		})
	}
}

func tenantError(w http.ResponseWriter, logger *slog.Logger, identity string, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		errorJSON(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, services.ErrTenantInactive):
		errorJSON(w, http.StatusForbidden, "tenant is not active")
	case errors.Is(err, services.ErrConnectionFailure):
		logger.Error("tenant store unavailable", "tenant", identity, "error", err)
		errorJSON(w, http.StatusServiceUnavailable, "tenant store is unavailable")
	default:
		logger.Error("tenant resolution failed", "tenant", identity, "error", err)
		errorJSON(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
	}
}
