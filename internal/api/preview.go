package api

import (
	"errors"
	"net/http"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
)

type previewRequest struct {
	Thresholds *classify.Thresholds `json:"thresholds,omitempty"`
	Sample     classify.Sample      `json:"sample"`
	Previous   *classify.Sample     `json:"previous,omitempty"`
}

type stateCatalogEntry struct {
	State       string   `json:"state"`
	Description string   `json:"description"`
	Conditions  []string `json:"conditions,omitempty"`
}

type stateCatalogResponse struct {
	States []stateCatalogEntry `json:"states"`
}

// handleClassifyPreview classifies one sample without touching any
// machine registration or stored history. The caller supplies the
// predecessor explicitly; thresholds default to the service defaults.
func (h *Handler) handleClassifyPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	merged := config.MergeThresholds(h.Defaults.Thresholds, req.Thresholds)
	classifier, err := classify.NewClassifier(merged)
	if err != nil {
		var cfgErr *classify.ConfigError
		if errors.As(err, &cfgErr) {
			writeValidationError(w, "INVALID_THRESHOLDS", "invalid thresholds", prefixDetails("thresholds.", cfgErr.Details))
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	if req.Previous != nil {
		if sampleErr := classify.ValidateSample(*req.Previous); sampleErr != nil {
			writeValidationError(w, "INVALID_SAMPLE", "invalid previous sample", prefixDetails("previous.", sampleErr.Details))
			return
		}
	}
	result, err := classifier.Classify(req.Sample, req.Previous)
	if err != nil {
		var sampleErr *classify.SampleError
		if errors.As(err, &sampleErr) {
			writeValidationError(w, "INVALID_SAMPLE", "invalid sample", prefixDetails("sample.", sampleErr.Details))
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func prefixDetails(prefix string, details []classify.ErrorDetail) []classify.ErrorDetail {
	prefixed := make([]classify.ErrorDetail, 0, len(details))
	for _, d := range details {
		prefixed = append(prefixed, classify.ErrorDetail{Field: prefix + d.Field, Problem: d.Problem, Hint: d.Hint})
	}
	return prefixed
}

// handleStateCatalog lists the states in evaluation order; the first
// matching rule wins and UNKNOWN is the fallback.
func (h *Handler) handleStateCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateCatalogResponse{States: []stateCatalogEntry{
		{
			State:       string(classify.StateProduction),
			Description: "Screw turning at production speed against production melt pressure.",
			Conditions:  []string{"rpm >= rpmProd", "pressure >= pProd"},
		},
		{
			State:       string(classify.StateHeating),
			Description: "Zones active and mean temperature rising while the screw is below production speed.",
			Conditions:  []string{"rpm < rpmProd", "meanTemp >= tMinActive", "trend >= +trendEps"},
		},
		{
			State:       string(classify.StateCooling),
			Description: "Machine effectively stopped while still hot and losing heat.",
			Conditions:  []string{"rpm < rpmOn", "meanTemp >= tMinActive", "trend <= -trendEps"},
		},
		{
			State:       string(classify.StateIdle),
			Description: "Warm and thermally stable, screw stopped, no melt pressure.",
			Conditions:  []string{"rpm < rpmOn", "pressure < pOn", "meanTemp >= tMinActive", "|trend| < trendEps"},
		},
		{
			State:       string(classify.StateOff),
			Description: "Screw stopped and barrel cold. Residual melt pressure does not keep a cold machine out of OFF.",
			Conditions:  []string{"rpm < rpmOn", "meanTemp < tMinActive"},
		},
		{
			State:       string(classify.StateUnknown),
			Description: "No rule matched. Reported honestly instead of coerced to a neighbour state.",
		},
	}})
}
