package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coldtrace/coldtrace-server/internal/models"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// Device catalog handlers. The catalog is global, not tenant-scoped, so
// every mutation requires admin access.

// HandleListCatalogEntries lists catalog entries
func (s *RESTServer) HandleListCatalogEntries(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	entries, total, err := s.store.ListCatalogEntries(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// HandleCreateCatalogEntry creates a catalog entry
func (s *RESTServer) HandleCreateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		Vendor           string `json:"vendor" validate:"required"`
		Model            string `json:"model" validate:"required"`
		DecodeMode       string `json:"decode_mode" validate:"required,oneof=ttn|app|trust|off"`
		DecoderScript    string `json:"decoder_script"`
		TemperatureUnit  string `json:"temperature_unit" validate:"oneof=C|F"`
		BatteryChemistry string `json:"battery_chemistry"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(req.DecoderScript) > s.config.Ingest.DecoderMaxScriptBytes {
		s.respondError(w, http.StatusBadRequest, "decoder script too large")
		return
	}

	entry := &models.CatalogEntry{
		Vendor:           req.Vendor,
		Model:            req.Model,
		DecodeMode:       models.DecodeMode(req.DecodeMode),
		DecoderScript:    req.DecoderScript,
		TemperatureUnit:  req.TemperatureUnit,
		BatteryChemistry: models.BatteryChemistry(req.BatteryChemistry),
		Revision:         1,
	}
	if entry.TemperatureUnit == "" {
		entry.TemperatureUnit = "C"
	}

	if err := s.store.CreateCatalogEntry(r.Context(), entry); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "catalog entry already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, entry)
}

// HandleGetCatalogEntry gets a catalog entry
func (s *RESTServer) HandleGetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid catalog id")
		return
	}

	entry, err := s.store.GetCatalogEntry(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "catalog entry not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, entry)
}

// HandleUpdateCatalogEntry updates a catalog entry. A script change bumps
// the revision inside one transaction, which invalidates cached compiled
// decoders on the next uplink.
func (s *RESTServer) HandleUpdateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := claimsFromContext(ctx)
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid catalog id")
		return
	}

	var req struct {
		Vendor           *string `json:"vendor"`
		Model            *string `json:"model"`
		DecodeMode       *string `json:"decode_mode"`
		DecoderScript    *string `json:"decoder_script"`
		TemperatureUnit  *string `json:"temperature_unit"`
		BatteryChemistry *string `json:"battery_chemistry"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DecoderScript != nil && len(*req.DecoderScript) > s.config.Ingest.DecoderMaxScriptBytes {
		s.respondError(w, http.StatusBadRequest, "decoder script too large")
		return
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback()

	entry, err := tx.GetCatalogEntry(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "catalog entry not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Vendor != nil {
		entry.Vendor = *req.Vendor
	}
	if req.Model != nil {
		entry.Model = *req.Model
	}
	if req.DecodeMode != nil {
		mode := models.DecodeMode(*req.DecodeMode)
		if !mode.Valid() {
			s.respondError(w, http.StatusBadRequest, "invalid decode mode")
			return
		}
		entry.DecodeMode = mode
	}
	if req.TemperatureUnit != nil {
		entry.TemperatureUnit = *req.TemperatureUnit
	}
	if req.BatteryChemistry != nil {
		entry.BatteryChemistry = models.BatteryChemistry(*req.BatteryChemistry)
	}
	if req.DecoderScript != nil && *req.DecoderScript != entry.DecoderScript {
		entry.DecoderScript = *req.DecoderScript
		entry.Revision++
	}

	if err := tx.UpdateCatalogEntry(ctx, entry); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := tx.Commit(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, entry)
}

// HandleDeleteCatalogEntry deletes a catalog entry
func (s *RESTServer) HandleDeleteCatalogEntry(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid catalog id")
		return
	}

	if err := s.store.DeleteCatalogEntry(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "catalog entry not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
