package ingest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

func TestExtractSecretHeaderPriority(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/webhook", nil)
	r.Header.Set("Authorization", "Bearer auth-secret")
	r.Header.Set("X-Downlink-Apikey", "apikey-secret")
	r.Header.Set("X-Webhook-Secret", "webhook-secret")

	assert.Equal(t, "webhook-secret", ExtractSecret(r))

	r.Header.Del("X-Webhook-Secret")
	assert.Equal(t, "apikey-secret", ExtractSecret(r))

	r.Header.Del("X-Downlink-Apikey")
	assert.Equal(t, "auth-secret", ExtractSecret(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "", ExtractSecret(r))
}

func TestExtractSecretPlainAuthorization(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/webhook", nil)
	r.Header.Set("Authorization", "raw-secret")

	assert.Equal(t, "raw-secret", ExtractSecret(r))
}

func newTenant(name, secret string) *models.Tenant {
	t := &models.Tenant{Name: name, WebhookSecret: secret}
	t.ID = uuid.New()
	return t
}

func TestTenantResolverMatches(t *testing.T) {
	store := newFakeStore()
	alpha := newTenant("alpha", "secret-alpha")
	beta := newTenant("beta", "secret-beta")
	store.tenants = []*models.Tenant{alpha, beta}

	resolver := NewTenantResolver(store)

	tenant, err := resolver.Resolve(context.Background(), "secret-beta")
	require.NoError(t, err)
	assert.Equal(t, beta.ID, tenant.ID)

	tenant, err = resolver.Resolve(context.Background(), "secret-alpha")
	require.NoError(t, err)
	assert.Equal(t, alpha.ID, tenant.ID)
}

func TestTenantResolverRejectsUnknownSecret(t *testing.T) {
	store := newFakeStore()
	store.tenants = []*models.Tenant{newTenant("alpha", "secret-alpha")}

	resolver := NewTenantResolver(store)

	_, err := resolver.Resolve(context.Background(), "secret-alph")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = resolver.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
