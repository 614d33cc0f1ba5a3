package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type stateResponse struct {
	MachineID     string          `json:"machineId"`
	TS            time.Time       `json:"ts"`
	State         string          `json:"state"`
	PreviousState string          `json:"previousState,omitempty"`
	MeanTemp      float64         `json:"meanTemp"`
	Trend         *float64        `json:"trendCPerMin,omitempty"`
	Explanation   json.RawMessage `json:"explanation,omitempty"`
}

type alertResponse struct {
	ID          int64           `json:"id"`
	MachineID   string          `json:"machineId"`
	TS          time.Time       `json:"ts"`
	State       string          `json:"state"`
	Message     string          `json:"message"`
	Explanation json.RawMessage `json:"explanation,omitempty"`
	Treated     bool            `json:"treated"`
}

// handleMachineState serves the latest classified state, preferring
// the cache and falling back to the repository on a miss.
func (h *Handler) handleMachineState(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if _, err := h.Repo.GetMachine(ctx, unitID); err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "machine not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
		return
	}
	if h.Cache != nil {
		if rec, err := h.Cache.GetCurrentState(ctx, unitID); err == nil && rec != nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": buildStateResponse(*rec)})
			return
		}
	}
	rec, err := h.Repo.GetCurrentState(ctx, unitID)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "no state recorded"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch state"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": buildStateResponse(rec)})
}

func (h *Handler) handleMachineStateHistory(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "invalid limit"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	records, err := h.Repo.ListStateHistory(ctx, unitID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list states"})
		return
	}
	responses := make([]stateResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, buildStateResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "states": responses})
}

func (h *Handler) handleMachineAlerts(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "invalid limit"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	alerts, err := h.Repo.ListAlerts(ctx, unitID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list alerts"})
		return
	}
	responses := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		responses = append(responses, alertResponse{
			ID:          alert.ID,
			MachineID:   alert.MachineID,
			TS:          alert.TSUTC,
			State:       alert.State,
			Message:     alert.Message,
			Explanation: json.RawMessage(alert.Explanation),
			Treated:     alert.Treated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alerts": responses})
}

func buildStateResponse(rec storage.StateRecord) stateResponse {
	return stateResponse{
		MachineID:     rec.MachineID,
		TS:            rec.TSUTC,
		State:         rec.State,
		PreviousState: rec.PreviousState,
		MeanTemp:      rec.MeanTemp,
		Trend:         rec.Trend,
		Explanation:   json.RawMessage(rec.Explanation),
	}
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, strconv.ErrSyntax
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}
