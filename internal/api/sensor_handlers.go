package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coldtrace/coldtrace-server/internal/ingest"
	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// ========== Sensor handlers ==========

// HandleListSensors lists sensors for the effective tenant
func (s *RESTServer) HandleListSensors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := s.effectiveTenant(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)

	sensors, total, err := s.store.ListSensors(ctx, tenantID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sensors": sensors,
		"total":   total,
	})
}

// HandleCreateSensor provisions a sensor
func (s *RESTServer) HandleCreateSensor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := s.effectiveTenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Name            string `json:"name" validate:"required,min=1,max=100"`
		DevEUI          string `json:"dev_eui" validate:"required"`
		NetworkDeviceID string `json:"network_device_id"`
		SerialNumber    string `json:"serial_number"`
		Type            string `json:"type"`
		UnitID          string `json:"unit_id"`
		CatalogID       string `json:"catalog_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	devEUI, err := ingest.NormalizeEUI(req.DevEUI)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid dev_eui")
		return
	}

	sensorType := models.SensorType(req.Type)
	if req.Type == "" {
		sensorType = models.SensorTypeUnknown
	}
	if !sensorType.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid sensor type")
		return
	}

	sensor := &models.Sensor{
		DevEUI:          devEUI,
		NetworkDeviceID: req.NetworkDeviceID,
		SerialNumber:    req.SerialNumber,
		Name:            req.Name,
		Type:            sensorType,
		Status:          models.SensorStatusPending,
	}
	sensor.TenantID = tenantID

	if req.UnitID != "" {
		unitID, err := parseID(req.UnitID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid unit id")
			return
		}
		sensor.UnitID = &unitID
	}
	if req.CatalogID != "" {
		catalogID, err := parseID(req.CatalogID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid catalog id")
			return
		}
		if _, err := s.store.GetCatalogEntry(ctx, catalogID); err != nil {
			s.respondError(w, http.StatusBadRequest, "catalog entry not found")
			return
		}
		sensor.CatalogID = &catalogID
	}

	if err := s.store.CreateSensor(ctx, sensor); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "sensor already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, sensor)
}

// HandleGetSensor gets a sensor
func (s *RESTServer) HandleGetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, sensor)
}

// HandleUpdateSensor updates a sensor
func (s *RESTServer) HandleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Name               *string `json:"name"`
		NetworkDeviceID    *string `json:"network_device_id"`
		SerialNumber       *string `json:"serial_number"`
		UnitID             *string `json:"unit_id"`
		CatalogID          *string `json:"catalog_id"`
		DecodeModeOverride *string `json:"decode_mode_override"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		sensor.Name = *req.Name
	}
	if req.NetworkDeviceID != nil {
		sensor.NetworkDeviceID = *req.NetworkDeviceID
	}
	if req.SerialNumber != nil {
		sensor.SerialNumber = *req.SerialNumber
	}
	if req.UnitID != nil {
		if *req.UnitID == "" {
			sensor.UnitID = nil
		} else {
			unitID, err := parseID(*req.UnitID)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid unit id")
				return
			}
			sensor.UnitID = &unitID
		}
	}
	if req.CatalogID != nil {
		if *req.CatalogID == "" {
			sensor.CatalogID = nil
		} else {
			catalogID, err := parseID(*req.CatalogID)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid catalog id")
				return
			}
			if _, err := s.store.GetCatalogEntry(ctx, catalogID); err != nil {
				s.respondError(w, http.StatusBadRequest, "catalog entry not found")
				return
			}
			sensor.CatalogID = &catalogID
		}
	}
	if req.DecodeModeOverride != nil {
		if *req.DecodeModeOverride == "" {
			sensor.DecodeModeOverride = nil
		} else {
			mode := models.DecodeMode(*req.DecodeModeOverride)
			if !mode.Valid() {
				s.respondError(w, http.StatusBadRequest, "invalid decode mode")
				return
			}
			sensor.DecodeModeOverride = &mode
		}
	}

	if err := s.store.UpdateSensor(ctx, sensor); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, sensor)
}

// HandleDeleteSensor deletes a sensor
func (s *RESTServer) HandleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteSensor(r.Context(), sensor.ID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleOverrideSensorType pins the sensor type manually. The payload
// binding is marked overridden so automatic classification stops touching
// both the type and the binding.
func (s *RESTServer) HandleOverrideSensorType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Type string `json:"type" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sensorType := models.SensorType(req.Type)
	if !sensorType.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid sensor type")
		return
	}

	if err := s.store.UpdateSensorType(ctx, sensor.ID, sensorType); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	binding, err := s.store.GetPayloadBinding(ctx, sensor.ID)
	if err == storage.ErrNotFound {
		binding = &models.PayloadBinding{SensorID: sensor.ID}
	} else if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	binding.Status = models.BindingStatusOverridden
	if err := s.store.UpsertPayloadBinding(ctx, binding); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sensor.Type = sensorType
	s.respondJSON(w, http.StatusOK, sensor)
}

// HandleGetSensorBinding returns the sensor's payload binding
func (s *RESTServer) HandleGetSensorBinding(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	binding, err := s.store.GetPayloadBinding(r.Context(), sensor.ID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "no binding for sensor")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, binding)
}

// HandleListSensorReadings lists readings for one sensor
func (s *RESTServer) HandleListSensorReadings(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromRequest(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)

	readings, total, err := s.store.ListReadings(r.Context(), sensor.TenantID, sensor.ID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"readings": readings,
		"total":    total,
	})
}

// ========== Scoping helpers ==========

// effectiveTenant resolves the tenant id list queries are scoped to. Admins
// pass ?tenant_id=, other users are pinned to their own tenant.
func (s *RESTServer) effectiveTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}

	if claims.IsAdmin {
		raw := r.URL.Query().Get("tenant_id")
		if raw == "" {
			s.respondError(w, http.StatusBadRequest, "tenant_id query parameter required")
			return uuid.Nil, false
		}
		tenantID, err := parseID(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid tenant_id")
			return uuid.Nil, false
		}
		return tenantID, true
	}

	if claims.TenantID == nil {
		s.respondError(w, http.StatusForbidden, "user has no tenant")
		return uuid.Nil, false
	}
	return *claims.TenantID, true
}

// sensorFromRequest loads the sensor named in the path and enforces tenant
// access.
func (s *RESTServer) sensorFromRequest(w http.ResponseWriter, r *http.Request) (*models.Sensor, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid sensor id")
		return nil, false
	}

	sensor, err := s.store.GetSensor(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "sensor not found")
			return nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}

	if !s.canAccessTenant(r.Context(), sensor.TenantID) {
		s.respondError(w, http.StatusForbidden, "access denied")
		return nil, false
	}

	return sensor, true
}
