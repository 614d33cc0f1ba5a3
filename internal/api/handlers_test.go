package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/config"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/crypto"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/ingest"
	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

type fakeStore struct {
	connections map[string]storage.ConnectionRecord
	machines    map[string]storage.MachineRecord
	current     map[string]storage.StateRecord
	history     map[string][]storage.StateRecord
	alerts      map[string][]storage.AlertRecord
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: map[string]storage.ConnectionRecord{},
		machines:    map[string]storage.MachineRecord{},
		current:     map[string]storage.StateRecord{},
		history:     map[string][]storage.StateRecord{},
		alerts:      map[string][]storage.AlertRecord{},
	}
}

func (f *fakeStore) CreateConnection(ctx context.Context, conn storage.ConnectionRecord) (string, error) {
	f.nextID++
	conn.ID = "conn-" + strconv.Itoa(f.nextID)
	conn.CreatedAt = time.Now().UTC()
	f.connections[conn.ID] = conn
	return conn.ID, nil
}

func (f *fakeStore) GetConnection(ctx context.Context, id string) (storage.ConnectionRecord, error) {
	conn, ok := f.connections[id]
	if !ok {
		return storage.ConnectionRecord{}, storage.ErrNotFound
	}
	return conn, nil
}

func (f *fakeStore) ListConnections(ctx context.Context) ([]storage.ConnectionRecord, error) {
	conns := make([]storage.ConnectionRecord, 0, len(f.connections))
	for _, conn := range f.connections {
		conns = append(conns, conn)
	}
	return conns, nil
}

func (f *fakeStore) DeleteConnection(ctx context.Context, id string) error {
	if _, ok := f.connections[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.connections, id)
	return nil
}

func (f *fakeStore) CreateMachine(ctx context.Context, rec storage.MachineRecord) error {
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	f.machines[rec.UnitID] = rec
	return nil
}

func (f *fakeStore) GetMachine(ctx context.Context, unitID string) (storage.MachineRecord, error) {
	rec, ok := f.machines[unitID]
	if !ok {
		return storage.MachineRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListMachines(ctx context.Context) ([]storage.MachineRecord, error) {
	machines := make([]storage.MachineRecord, 0, len(f.machines))
	for _, rec := range f.machines {
		machines = append(machines, rec)
	}
	return machines, nil
}

func (f *fakeStore) UpdateMachine(ctx context.Context, rec storage.MachineRecord) error {
	existing, ok := f.machines[rec.UnitID]
	if !ok {
		return storage.ErrNotFound
	}
	existing.Name = rec.Name
	existing.SourceJSON = rec.SourceJSON
	existing.ThresholdsJSON = rec.ThresholdsJSON
	existing.PollIntervalSeconds = rec.PollIntervalSeconds
	existing.ZoneCount = rec.ZoneCount
	existing.UpdatedAt = time.Now().UTC()
	f.machines[rec.UnitID] = existing
	return nil
}

func (f *fakeStore) SetMachineEnabled(ctx context.Context, unitID string, enabled bool) error {
	rec, ok := f.machines[unitID]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Enabled = enabled
	f.machines[unitID] = rec
	return nil
}

func (f *fakeStore) DeleteMachine(ctx context.Context, unitID string) error {
	if _, ok := f.machines[unitID]; !ok {
		return storage.ErrNotFound
	}
	delete(f.machines, unitID)
	return nil
}

func (f *fakeStore) GetCurrentState(ctx context.Context, machineID string) (storage.StateRecord, error) {
	rec, ok := f.current[machineID]
	if !ok {
		return storage.StateRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListStateHistory(ctx context.Context, machineID string, limit int) ([]storage.StateRecord, error) {
	records := f.history[machineID]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *fakeStore) ListAlerts(ctx context.Context, machineID string, limit int) ([]storage.AlertRecord, error) {
	alerts := f.alerts[machineID]
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

type fakePublisher struct {
	subjects []string
}

func (f *fakePublisher) Publish(subject string, payload any) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakePublisher) count(subject string) int {
	n := 0
	for _, s := range f.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type fakeCache struct {
	states      map[string]*storage.StateRecord
	invalidated []string
}

func (f *fakeCache) GetCurrentState(ctx context.Context, machineID string) (*storage.StateRecord, error) {
	return f.states[machineID], nil
}

func (f *fakeCache) Invalidate(ctx context.Context, machineID string) error {
	f.invalidated = append(f.invalidated, machineID)
	delete(f.states, machineID)
	return nil
}

type apiFixture struct {
	store *fakeStore
	bus   *fakePublisher
	cache *fakeCache
	enc   *crypto.AesGcm
	mux   http.Handler
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	enc, err := crypto.NewAesGcm(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("failed to build encryptor: %v", err)
	}
	store := newFakeStore()
	pub := &fakePublisher{}
	stateCache := &fakeCache{states: map[string]*storage.StateRecord{}}
	h := &Handler{
		Repo:      store,
		Bus:       pub,
		Encryptor: enc,
		Cache:     stateCache,
		Defaults: config.DefaultsConfig{
			Thresholds:          config.DefaultThresholds(),
			PollIntervalSeconds: 15,
			ZoneCount:           4,
		},
		Limits:  ingest.DefaultLimits(),
		Timeout: 2 * time.Second,
	}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return apiFixture{store: store, bus: pub, cache: stateCache, enc: enc, mux: r}
}

func doJSON(t *testing.T, mux http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)
	return resp
}

func TestConnectionCreateEncryptsPassword(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodPost, "/connections", map[string]any{
		"name":     "plant-db",
		"type":     "postgres",
		"host":     "db.plant.local",
		"port":     5432,
		"user":     "reader",
		"password": "hunter2",
		"database": "telemetry",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var parsed struct {
		ConnectionRef string `json:"connectionRef"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed.ConnectionRef == "" {
		t.Fatalf("expected a connectionRef")
	}
	stored := fx.store.connections[parsed.ConnectionRef]
	if stored.Password == "hunter2" {
		t.Fatalf("password stored in plaintext")
	}
	plain, err := fx.enc.DecryptSecret(stored.Password)
	if err != nil {
		t.Fatalf("failed to decrypt stored password: %v", err)
	}
	if plain != "hunter2" {
		t.Fatalf("round-trip mismatch: %q", plain)
	}
}

func TestConnectionCreateValidation(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodPost, "/connections", map[string]any{
		"name": "plant-db",
		"type": "oracle",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var parsed errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code: %s", parsed.Code)
	}
	fields := map[string]bool{}
	for _, d := range parsed.Details {
		fields[d.Field] = true
	}
	for _, want := range []string{"type", "host", "database"} {
		if !fields[want] {
			t.Fatalf("expected a detail for %s, got %v", want, parsed.Details)
		}
	}
}

func TestConnectionCreateRejectsUnknownField(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodPost, "/connections", map[string]any{
		"name":     "plant-db",
		"type":     "postgres",
		"host":     "db",
		"database": "telemetry",
		"passwort": "oops",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "unknown field") {
		t.Fatalf("expected an unknown field error, got %s", resp.Body.String())
	}
}

func TestConnectionListOmitsSecrets(t *testing.T) {
	fx := newAPIFixture(t)

	create := doJSON(t, fx.mux, http.MethodPost, "/connections", map[string]any{
		"name":     "plant-db",
		"type":     "mysql",
		"host":     "db",
		"user":     "reader",
		"password": "hunter2",
		"database": "telemetry",
	})
	if create.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", create.Code)
	}

	resp := doJSON(t, fx.mux, http.MethodGet, "/connections", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Fatalf("plaintext password leaked: %s", body)
	}
	if strings.Contains(body, "password") {
		t.Fatalf("password field leaked: %s", body)
	}
	var parsed struct {
		Ok          bool                 `json:"ok"`
		Connections []connectionResponse `json:"connections"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(parsed.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(parsed.Connections))
	}
	if parsed.Connections[0].Type != "mysql" {
		t.Fatalf("unexpected type: %s", parsed.Connections[0].Type)
	}
}

func TestConnectionDeleteNotFound(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodDelete, "/connections/conn-404", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConnectionTestNotFound(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodPost, "/connections/conn-404/test", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConnectionColumnsNotFound(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodGet, "/connections/conn-404/tables/telemetry/columns", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConnectionColumnsRejectsUnsafeTable(t *testing.T) {
	fx := newAPIFixture(t)

	for _, table := range []string{"drop-table", "1bad", "a.b.c"} {
		resp := doJSON(t, fx.mux, http.MethodGet, "/connections/conn-1/tables/"+table+"/columns", nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("table %q: expected 400, got %d", table, resp.Code)
		}
		if !strings.Contains(resp.Body.String(), "table") {
			t.Fatalf("table %q: expected table detail, got %s", table, resp.Body.String())
		}
	}
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t)

	resp := doJSON(t, fx.mux, http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
