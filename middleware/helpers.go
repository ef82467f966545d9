package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/tenancy"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	leaseContextKey    contextKey = "tenant_lease"
)

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(models.Identity)
	return id, ok
}

func WithLease(ctx context.Context, lease *tenancy.Lease) context.Context {
	return context.WithValue(ctx, leaseContextKey, lease)
}

// LeaseFromContext returns the tenant lease taken by the Tenant middleware.
func LeaseFromContext(ctx context.Context) (*tenancy.Lease, bool) {
	lease, ok := ctx.Value(leaseContextKey).(*tenancy.Lease)
	return lease, ok && lease != nil
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
