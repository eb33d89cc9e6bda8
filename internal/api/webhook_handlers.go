package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/coldtrace/coldtrace-server/internal/ingest"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

// HandleWebhook ingests one network-server event. The status contract is
// deliberately narrow: 401 only when the shared secret resolves no tenant,
// 200 when a reading was persisted, 202 for everything else the pipeline
// understood but skipped. Upstream webhook senders retry on 5xx, so
// internal failures past authentication must never surface as one.
func (s *RESTServer) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, err := s.tenants.Resolve(ctx, ingest.ExtractSecret(r))
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusUnauthorized, "invalid webhook credentials")
			return
		}
		log.Error().Err(err).Msg("tenant resolution failed")
		s.respondError(w, http.StatusInternalServerError, "tenant resolution failed")
		return
	}

	if tenant.IsDisabled {
		s.respondError(w, http.StatusUnauthorized, "tenant is disabled")
		return
	}

	var req ingest.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusAccepted, ingest.Result{
			Processed: false,
			Reason:    "invalid_body",
		})
		return
	}

	result := s.orchestrator.Process(ctx, tenant, &req)

	status := http.StatusOK
	if !result.Processed {
		status = http.StatusAccepted
	}
	s.respondJSON(w, status, result)
}

// HandleWebhookProbe answers the reachability checks network servers issue
// when a webhook endpoint is configured.
func (s *RESTServer) HandleWebhookProbe(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
