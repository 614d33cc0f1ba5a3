// Package api exposes the management surface of the state service:
// telemetry connections, machine registrations, classified state
// queries and a stateless classification preview.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/crypto"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/ingest"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

// Store is the slice of the repository the API serves.
type Store interface {
	CreateConnection(ctx context.Context, conn storage.ConnectionRecord) (string, error)
	GetConnection(ctx context.Context, id string) (storage.ConnectionRecord, error)
	ListConnections(ctx context.Context) ([]storage.ConnectionRecord, error)
	DeleteConnection(ctx context.Context, id string) error
	CreateMachine(ctx context.Context, rec storage.MachineRecord) error
	GetMachine(ctx context.Context, unitID string) (storage.MachineRecord, error)
	ListMachines(ctx context.Context) ([]storage.MachineRecord, error)
	UpdateMachine(ctx context.Context, rec storage.MachineRecord) error
	SetMachineEnabled(ctx context.Context, unitID string, enabled bool) error
	DeleteMachine(ctx context.Context, unitID string) error
	GetCurrentState(ctx context.Context, machineID string) (storage.StateRecord, error)
	ListStateHistory(ctx context.Context, machineID string, limit int) ([]storage.StateRecord, error)
	ListAlerts(ctx context.Context, machineID string, limit int) ([]storage.AlertRecord, error)
}

// Publisher is satisfied by bus.Publisher.
type Publisher interface {
	Publish(subject string, payload any) error
}

// StateCache is satisfied by cache.Cache. It may be left nil; the
// handlers then read states from the repository only.
type StateCache interface {
	GetCurrentState(ctx context.Context, machineID string) (*storage.StateRecord, error)
	Invalidate(ctx context.Context, machineID string) error
}

type Handler struct {
	Repo      Store
	Bus       Publisher
	Encryptor crypto.Encryptor
	Cache     StateCache
	Defaults  config.DefaultsConfig
	Limits    ingest.Limits
	Timeout   time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Get("/states/catalog", h.handleStateCatalog)
	r.Post("/classify/preview", h.handleClassifyPreview)
	r.Route("/connections", func(r chi.Router) {
		r.Post("/", h.handleConnectionCreate)
		r.Get("/", h.handleConnectionList)
		r.Get("/{connectionRef}", h.handleConnectionGet)
		r.Delete("/{connectionRef}", h.handleConnectionDelete)
		r.Post("/{connectionRef}/test", h.handleConnectionTest)
		r.Get("/{connectionRef}/tables/{table}/columns", h.handleConnectionColumns)
	})
	r.Route("/machines", func(r chi.Router) {
		r.Post("/", h.handleMachineCreate)
		r.Get("/", h.handleMachineList)
		r.Get("/{unitId}", h.handleMachineGet)
		r.Put("/{unitId}", h.handleMachineUpdate)
		r.Delete("/{unitId}", h.handleMachineDelete)
		r.Post("/{unitId}/enable", h.handleMachineEnable)
		r.Post("/{unitId}/disable", h.handleMachineDisable)
		r.Get("/{unitId}/state", h.handleMachineState)
		r.Get("/{unitId}/states", h.handleMachineStateHistory)
		r.Get("/{unitId}/alerts", h.handleMachineAlerts)
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type connectionRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

type connectionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	User      string    `json:"user"`
	Database  string    `json:"database"`
	SSLMode   string    `json:"sslMode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleConnectionCreate(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	if details := validateConnectionRequest(req); len(details) > 0 {
		writeValidationError(w, "VALIDATION_ERROR", "invalid connection request", details)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	sealed, err := h.Encryptor.EncryptSecret(req.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to encrypt password"})
		return
	}
	id, err := h.Repo.CreateConnection(ctx, storage.ConnectionRecord{
		Name:     strings.TrimSpace(req.Name),
		Type:     strings.ToLower(strings.TrimSpace(req.Type)),
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		User:     req.User,
		Password: sealed,
		Database: req.Database,
		SSLMode:  req.SSLMode,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to create connection"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectionRef": id})
}

func (h *Handler) handleConnectionList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	conns, err := h.Repo.ListConnections(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list connections"})
		return
	}
	responses := make([]connectionResponse, 0, len(conns))
	for _, conn := range conns {
		responses = append(responses, buildConnectionResponse(conn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "connections": responses})
}

func (h *Handler) handleConnectionGet(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "connectionRef")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	conn, err := h.Repo.GetConnection(ctx, ref)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "connection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch connection"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "connection": buildConnectionResponse(conn)})
}

func (h *Handler) handleConnectionDelete(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "connectionRef")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.DeleteConnection(ctx, ref); err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "connection not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to delete connection"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleConnectionTest opens the stored connection and pings it. The
// credentials never leave the server; the caller learns whether the
// database answered and which tables it exposes.
func (h *Handler) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	client := h.openStoredSQL(ctx, w, chi.URLParam(r, "connectionRef"))
	if client == nil {
		return
	}
	defer client.Close()
	if err := client.TestConnection(ctx); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "message": "connection test failed"})
		return
	}
	tables, err := client.ListTables(ctx)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "message": "failed to list tables"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tables": tables})
}

// handleConnectionColumns describes one table of the stored connection
// so the frontend can offer column pickers when mapping a machine.
func (h *Handler) handleConnectionColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !safeTableName(table) {
		writeValidationError(w, "VALIDATION_ERROR", "invalid table name", []classify.ErrorDetail{{Field: "table", Problem: "invalid", Hint: "Use a plain or schema-qualified table name"}})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	client := h.openStoredSQL(ctx, w, chi.URLParam(r, "connectionRef"))
	if client == nil {
		return
	}
	defer client.Close()
	columns, err := client.ListColumns(ctx, table)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "message": "failed to list columns"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "columns": columns})
}

func safeTableName(table string) bool {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if !ingest.IsSafeIdentifier(part) {
			return false
		}
	}
	return true
}

// openStoredSQL loads the connection record, decrypts its credentials and
// opens the target database. On failure it writes the error response and
// returns nil; the caller owns Close on success.
func (h *Handler) openStoredSQL(ctx context.Context, w http.ResponseWriter, ref string) *ingest.SQLClient {
	conn, err := h.Repo.GetConnection(ctx, ref)
	if err != nil {
		if err == storage.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "connection not found"})
			return nil
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to fetch connection"})
		return nil
	}
	password, err := h.Encryptor.DecryptSecret(conn.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to decrypt password"})
		return nil
	}
	client, err := ingest.OpenSQL(ingest.ConnectionConfig{
		Type:     conn.Type,
		Host:     conn.Host,
		Port:     conn.Port,
		User:     conn.User,
		Password: password,
		Database: conn.Database,
		SSLMode:  conn.SSLMode,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to open connection"})
		return nil
	}
	return client
}

func validateConnectionRequest(req connectionRequest) []classify.ErrorDetail {
	details := []classify.ErrorDetail{}
	if strings.TrimSpace(req.Name) == "" {
		details = append(details, classify.ErrorDetail{Field: "name", Problem: "missing", Hint: "Provide a connection name"})
	}
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case "postgres", "mysql", "sqlserver":
	case "":
		details = append(details, classify.ErrorDetail{Field: "type", Problem: "missing", Hint: "One of postgres, mysql, sqlserver"})
	default:
		details = append(details, classify.ErrorDetail{Field: "type", Problem: "unsupported", Hint: "One of postgres, mysql, sqlserver"})
	}
	if strings.TrimSpace(req.Host) == "" {
		details = append(details, classify.ErrorDetail{Field: "host", Problem: "missing"})
	}
	if req.Port < 0 || req.Port > 65535 {
		details = append(details, classify.ErrorDetail{Field: "port", Problem: "out_of_range", Hint: "Must be between 0 and 65535"})
	}
	if strings.TrimSpace(req.Database) == "" {
		details = append(details, classify.ErrorDetail{Field: "database", Problem: "missing"})
	}
	return details
}

func buildConnectionResponse(conn storage.ConnectionRecord) connectionResponse {
	return connectionResponse{
		ID:        conn.ID,
		Name:      conn.Name,
		Type:      conn.Type,
		Host:      conn.Host,
		Port:      conn.Port,
		User:      conn.User,
		Database:  conn.Database,
		SSLMode:   conn.SSLMode,
		CreatedAt: conn.CreatedAt,
	}
}

type errorResponse struct {
	Ok      bool                   `json:"ok"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details []classify.ErrorDetail `json:"details,omitempty"`
}

func writeValidationError(w http.ResponseWriter, code string, message string, details []classify.ErrorDetail) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Ok:      false,
		Code:    code,
		Message: message,
		Details: details,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
