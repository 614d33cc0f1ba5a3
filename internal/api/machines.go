package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/bus"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/ingest"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

type machineRequest struct {
	UnitID              string               `json:"unitId"`
	Name                string               `json:"name"`
	Source              json.RawMessage      `json:"source"`
	Thresholds          *classify.Thresholds `json:"thresholds,omitempty"`
	PollIntervalSeconds int                  `json:"pollIntervalSeconds"`
	ZoneCount           int                  `json:"zoneCount"`
}

type machineResponse struct {
	UnitID              string          `json:"unitId"`
	Name                string          `json:"name"`
	Enabled             bool            `json:"enabled"`
	Source              json.RawMessage `json:"source"`
	Thresholds          json.RawMessage `json:"thresholds,omitempty"`
	PollIntervalSeconds int             `json:"pollIntervalSeconds"`
	ZoneCount           int             `json:"zoneCount"`
	Status              string          `json:"status"`
	StatusReason        json.RawMessage `json:"statusReason,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (h *Handler) handleMachineCreate(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, details := h.validateMachineRequest(ctx, req)
	if len(details) > 0 {
		writeValidationError(w, "VALIDATION_ERROR", "invalid machine request", details)
		return
	}
	if strings.TrimSpace(req.UnitID) != "" {
		_, err := h.Repo.GetMachine(ctx, req.UnitID)
		if err != nil {
			if err == storage.ErrNotFound {
				writeValidationError(w, "UNIT_ID_NOT_ALLOWED", "unitId is server-generated", []classify.ErrorDetail{{Field: "unitId", Problem: "not_allowed", Hint: "Remove unitId or use an existing unitId"}})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
			return
		}
		rec.UnitID = req.UnitID
		if err := h.Repo.UpdateMachine(ctx, rec); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update machine"})
			return
		}
		updated, err := h.Repo.GetMachine(ctx, rec.UnitID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
			return
		}
		_ = h.Bus.Publish(bus.SubjectMachineUpdated, bus.MachineEvent{UnitID: rec.UnitID})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "machine": buildMachineResponse(updated)})
		return
	}
	rec.UnitID = "machine-" + uuid.NewString()
	rec.Status = storage.MachineStatusActive
	if err := h.Repo.CreateMachine(ctx, rec); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to create machine"})
		return
	}
	created, err := h.Repo.GetMachine(ctx, rec.UnitID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
		return
	}
	_ = h.Bus.Publish(bus.SubjectMachineCreated, bus.MachineEvent{UnitID: rec.UnitID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "machine": buildMachineResponse(created)})
}

func (h *Handler) handleMachineList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	machines, err := h.Repo.ListMachines(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list machines"})
		return
	}
	responses := make([]machineResponse, 0, len(machines))
	for _, rec := range machines {
		responses = append(responses, buildMachineResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "machines": responses})
}

func (h *Handler) handleMachineGet(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, err := h.Repo.GetMachine(ctx, unitID)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "machine not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "machine": buildMachineResponse(rec)})
}

func (h *Handler) handleMachineUpdate(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	var req machineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	if strings.TrimSpace(req.UnitID) != "" && req.UnitID != unitID {
		writeValidationError(w, "UNIT_ID_IMMUTABLE", "unitId cannot be changed", []classify.ErrorDetail{{Field: "unitId", Problem: "immutable", Hint: "unitId in path must be preserved"}})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, details := h.validateMachineRequest(ctx, req)
	if len(details) > 0 {
		writeValidationError(w, "VALIDATION_ERROR", "invalid machine request", details)
		return
	}
	rec.UnitID = unitID
	if err := h.Repo.UpdateMachine(ctx, rec); err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "machine not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update machine"})
		return
	}
	updated, err := h.Repo.GetMachine(ctx, unitID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch machine"})
		return
	}
	_ = h.Bus.Publish(bus.SubjectMachineUpdated, bus.MachineEvent{UnitID: unitID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "machine": buildMachineResponse(updated)})
}

func (h *Handler) handleMachineDelete(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.DeleteMachine(ctx, unitID); err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "machine not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to delete machine"})
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Invalidate(ctx, unitID)
	}
	_ = h.Bus.Publish(bus.SubjectMachineDeleted, bus.MachineEvent{UnitID: unitID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleMachineEnable(w http.ResponseWriter, r *http.Request) {
	h.setMachineEnabled(w, r, true, bus.SubjectMachineEnabled)
}

func (h *Handler) handleMachineDisable(w http.ResponseWriter, r *http.Request) {
	h.setMachineEnabled(w, r, false, bus.SubjectMachineDisabled)
}

func (h *Handler) setMachineEnabled(w http.ResponseWriter, r *http.Request, enabled bool, subject string) {
	unitID := chi.URLParam(r, "unitId")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.SetMachineEnabled(ctx, unitID, enabled); err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "machine not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update machine"})
		return
	}
	_ = h.Bus.Publish(subject, bus.MachineEvent{UnitID: unitID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": enabled})
}

// validateMachineRequest checks everything that can be checked without
// touching the telemetry backend. Reachability of the source is the
// worker's job; a machine that fails there is marked INVALID instead.
func (h *Handler) validateMachineRequest(ctx context.Context, req machineRequest) (storage.MachineRecord, []classify.ErrorDetail) {
	details := []classify.ErrorDetail{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		details = append(details, classify.ErrorDetail{Field: "name", Problem: "missing", Hint: "Provide a machine name"})
	}

	var spec ingest.SourceSpec
	if len(req.Source) == 0 {
		details = append(details, classify.ErrorDetail{Field: "source", Problem: "missing", Hint: "Provide a source spec"})
	} else {
		parsed, err := ingest.ParseSourceSpec(req.Source)
		if err != nil {
			var specErr *ingest.SpecError
			if errors.As(err, &specErr) {
				for _, d := range specErr.Details {
					details = append(details, classify.ErrorDetail{Field: "source." + d.Field, Problem: d.Problem, Hint: d.Hint})
				}
			} else {
				details = append(details, classify.ErrorDetail{Field: "source", Problem: "invalid", Hint: err.Error()})
			}
		} else {
			spec = parsed
			if spec.Kind == ingest.KindSQL {
				if _, err := h.Repo.GetConnection(ctx, spec.ConnectionRef); err != nil {
					if err == storage.ErrNotFound {
						details = append(details, classify.ErrorDetail{Field: "source.connectionRef", Problem: "not_found", Hint: "Provide a valid connectionRef"})
					} else {
						details = append(details, classify.ErrorDetail{Field: "source.connectionRef", Problem: "invalid", Hint: "Failed to validate connectionRef"})
					}
				}
			}
		}
	}

	var thresholdsJSON []byte
	if req.Thresholds != nil {
		merged := config.MergeThresholds(h.Defaults.Thresholds, req.Thresholds)
		if cfgErr := merged.Validate(); cfgErr != nil {
			for _, d := range cfgErr.Details {
				details = append(details, classify.ErrorDetail{Field: "thresholds." + d.Field, Problem: d.Problem, Hint: d.Hint})
			}
		} else {
			encoded, err := json.Marshal(req.Thresholds)
			if err != nil {
				details = append(details, classify.ErrorDetail{Field: "thresholds", Problem: "invalid"})
			} else {
				thresholdsJSON = encoded
			}
		}
	}

	pollSeconds := req.PollIntervalSeconds
	if pollSeconds == 0 {
		pollSeconds = h.Defaults.PollIntervalSeconds
	}
	if err := h.Limits.ValidatePollSeconds(pollSeconds); err != nil {
		details = append(details, classify.ErrorDetail{Field: "pollIntervalSeconds", Problem: "out_of_range", Hint: err.Error()})
	}

	zones := req.ZoneCount
	if zones < 0 {
		details = append(details, classify.ErrorDetail{Field: "zoneCount", Problem: "negative"})
		zones = 0
	}
	specZones := 0
	switch spec.Kind {
	case ingest.KindSQL:
		specZones = len(spec.TemperatureColumns)
	case ingest.KindOPCUA:
		specZones = len(spec.TemperatureNodes)
	}
	if zones == 0 {
		zones = specZones
	}
	if zones == 0 {
		zones = h.Defaults.ZoneCount
	}
	if specZones > 0 && zones != specZones {
		details = append(details, classify.ErrorDetail{Field: "zoneCount", Problem: "mismatch", Hint: "Must match the number of configured temperature columns"})
	}

	return storage.MachineRecord{
		Name:                name,
		SourceJSON:          req.Source,
		ThresholdsJSON:      thresholdsJSON,
		PollIntervalSeconds: pollSeconds,
		ZoneCount:           zones,
	}, details
}

func buildMachineResponse(rec storage.MachineRecord) machineResponse {
	return machineResponse{
		UnitID:              rec.UnitID,
		Name:                rec.Name,
		Enabled:             rec.Enabled,
		Source:              normalizeRawMessage(rec.SourceJSON),
		Thresholds:          json.RawMessage(rec.ThresholdsJSON),
		PollIntervalSeconds: rec.PollIntervalSeconds,
		ZoneCount:           rec.ZoneCount,
		Status:              rec.Status,
		StatusReason:        json.RawMessage(rec.StatusReason),
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}

func normalizeRawMessage(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
