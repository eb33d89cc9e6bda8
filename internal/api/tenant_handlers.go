package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// ========== Tenant handlers ==========

// HandleListTenants lists tenants
func (s *RESTServer) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := claimsFromContext(ctx)
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	limit, offset := paginationParams(r)

	tenants, total, err := s.store.ListTenants(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"total":   total,
	})
}

// HandleCreateTenant creates a tenant. The webhook secret is generated
// server-side and returned exactly once in the creation response.
func (s *RESTServer) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		Name                  string `json:"name" validate:"required,min=3,max=100"`
		Description           string `json:"description"`
		UpstreamApplicationID string `json:"upstream_application_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate webhook secret")
		return
	}

	tenant := &models.Tenant{
		Name:                  req.Name,
		Description:           req.Description,
		WebhookSecret:         secret,
		UpstreamApplicationID: req.UpstreamApplicationID,
	}

	if err := s.store.CreateTenant(r.Context(), tenant); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "tenant already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"tenant":         tenant,
		"webhook_secret": secret,
	})
}

// HandleGetTenant gets a tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if !s.canAccessTenant(ctx, id) {
		s.respondError(w, http.StatusForbidden, "access denied")
		return
	}

	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleUpdateTenant updates a tenant
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if !s.canAccessTenant(ctx, id) {
		s.respondError(w, http.StatusForbidden, "access denied")
		return
	}

	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		Name                  *string           `json:"name"`
		Description           *string           `json:"description"`
		UpstreamApplicationID *string           `json:"upstream_application_id"`
		HTTPIntegration       *models.Variables `json:"http_integration"`
		MQTTIntegration       *models.Variables `json:"mqtt_integration"`
		IsDisabled            *bool             `json:"is_disabled"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.Description != nil {
		tenant.Description = *req.Description
	}
	if req.UpstreamApplicationID != nil {
		tenant.UpstreamApplicationID = *req.UpstreamApplicationID
	}
	if req.HTTPIntegration != nil {
		tenant.HTTPIntegration = req.HTTPIntegration
	}
	if req.MQTTIntegration != nil {
		tenant.MQTTIntegration = req.MQTTIntegration
	}
	if req.IsDisabled != nil {
		tenant.IsDisabled = *req.IsDisabled
	}

	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleDeleteTenant deletes a tenant
func (s *RESTServer) HandleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if err := s.store.DeleteTenant(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// canAccessTenant reports whether the authenticated user may act on the
// given tenant. Admins may act on any tenant; other users only on their own.
func (s *RESTServer) canAccessTenant(ctx context.Context, tenantID uuid.UUID) bool {
	claims := claimsFromContext(ctx)
	if claims == nil {
		return false
	}
	if claims.IsAdmin {
		return true
	}
	return claims.TenantID != nil && *claims.TenantID == tenantID
}

func generateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
