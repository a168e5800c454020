package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// ConfigWriter updates the clinic_config table. *clinic.PgRepository
// satisfies it.
type ConfigWriter interface {
	SetConfigValue(ctx context.Context, key, value, description string) error
}

// updateConfigHandler lets the front desk change presentation values and
// booking toggles (clinic name, duplicate-specialty policy) without a
// redeploy. The endpoint sits under /admin and is expected to be fenced
// off at the proxy.
func updateConfigHandler(store ConfigWriter, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfigUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		req.Key = strings.TrimSpace(req.Key)
		if req.Key == "" {
			writeError(w, http.StatusBadRequest, "missing_key", "key is required")
			return
		}

		if err := store.SetConfigValue(r.Context(), req.Key, req.Value, req.Description); err != nil {
			log.Error("config update failed", "key", req.Key, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not update configuration")
			return
		}

		log.Info("config updated", "key", req.Key)
		writeJSON(w, http.StatusOK, map[string]string{"key": req.Key, "value": req.Value})
	}
}
