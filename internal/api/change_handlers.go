package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// ========== Pending change handlers ==========

// HandleCreatePendingChange records a configuration command as dispatched
// to the device. Confirmation happens later, on the sensor's own uplinks.
func (s *RESTServer) HandleCreatePendingChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Type   string           `json:"type" validate:"required"`
		Params models.Variables `json:"params"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changeType := models.ChangeType(req.Type)
	if !changeType.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid change type")
		return
	}

	change := &models.PendingChange{
		TenantID: sensor.TenantID,
		SensorID: sensor.ID,
		Type:     changeType,
		Params:   req.Params,
		Status:   models.ChangeStatusSent,
		SentAt:   time.Now(),
	}

	if err := s.store.CreatePendingChange(ctx, change); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, change)
}

// HandleListPendingChanges lists pending changes for the effective tenant
func (s *RESTServer) HandleListPendingChanges(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.effectiveTenant(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)

	changes, total, err := s.store.ListPendingChanges(r.Context(), tenantID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"total":   total,
	})
}

// HandleGetPendingChange gets one pending change
func (s *RESTServer) HandleGetPendingChange(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid change id")
		return
	}

	change, err := s.store.GetPendingChange(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "change not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !s.canAccessTenant(r.Context(), change.TenantID) {
		s.respondError(w, http.StatusForbidden, "access denied")
		return
	}

	s.respondJSON(w, http.StatusOK, change)
}

// ========== Door event handlers ==========

// HandleListDoorEvents lists door events for the effective tenant
func (s *RESTServer) HandleListDoorEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.effectiveTenant(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)

	events, total, err := s.store.ListDoorEvents(r.Context(), tenantID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
