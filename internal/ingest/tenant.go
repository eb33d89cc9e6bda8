package ingest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// secretHeaders are the accepted transport locations for the shared webhook
// secret, tried in this fixed priority order; the first non-empty wins.
var secretHeaders = []string{
	"X-Webhook-Secret",
	"X-Downlink-Apikey",
	"Authorization",
}

// ExtractSecret pulls the shared secret from the request headers. A
// "Bearer " prefix on the Authorization header is stripped.
func ExtractSecret(r *http.Request) string {
	for _, name := range secretHeaders {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		if name == "Authorization" {
			value = strings.TrimPrefix(value, "Bearer ")
		}
		return value
	}
	return ""
}

// TenantResolver maps an inbound shared secret to exactly one tenant. This
// is the sole tenant boundary: every later query is scoped by the resolved
// tenant id, never by identifiers embedded in the payload.
type TenantResolver struct {
	store storage.Store
}

// NewTenantResolver creates a tenant resolver
func NewTenantResolver(store storage.Store) *TenantResolver {
	return &TenantResolver{store: store}
}

// Resolve finds the tenant whose configured webhook secret matches. Every
// candidate is compared in constant time and the scan never exits early, so
// match position does not leak through response timing.
func (r *TenantResolver) Resolve(ctx context.Context, secret string) (*models.Tenant, error) {
	if secret == "" {
		return nil, storage.ErrNotFound
	}

	tenants, err := r.store.ListTenantCredentials(ctx)
	if err != nil {
		return nil, err
	}

	secretBytes := []byte(secret)

	var matched *models.Tenant
	for _, tenant := range tenants {
		if subtle.ConstantTimeCompare(secretBytes, []byte(tenant.WebhookSecret)) == 1 {
			matched = tenant
		}
	}

	if matched == nil {
		return nil, storage.ErrNotFound
	}
	return matched, nil
}
