package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
	"github.com/afroash/climate-node/internal/storage"
)

type fakeWriter struct {
	mu      sync.Mutex
	records []*models.SensorRecord
	full    bool
}

func (f *fakeWriter) Write(record *models.SensorRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.records = append(f.records, record)
	return true
}

type fakePublisher struct {
	mu       sync.Mutex
	sensor   []*models.SensorRecord
	statuses []*models.DeviceStatusRecord
	err      error
}

func (f *fakePublisher) PublishSensorData(record *models.SensorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensor = append(f.sensor, record)
	return f.err
}

func (f *fakePublisher) PublishDeviceStatus(record *models.DeviceStatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, record)
	return f.err
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (f *fakeBroadcaster) Broadcast(msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

type failingHistory struct {
	HistoricalStore
}

func (failingHistory) UpsertDeviceStatus(*models.DeviceStatusRecord) error {
	return errors.New("disk full")
}

type apiRig struct {
	store     *MemoryStore
	db        *storage.SQLiteStore
	writer    *fakeWriter
	publisher *fakePublisher
	live      *fakeBroadcaster
	router    http.Handler
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	db, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rig := &apiRig{
		store:     NewMemoryStore(100),
		db:        db,
		writer:    &fakeWriter{},
		publisher: &fakePublisher{},
		live:      &fakeBroadcaster{},
	}
	api := NewAPIHandler(rig.store, Options{
		History:   db,
		Writer:    rig.writer,
		Publisher: rig.publisher,
		Live:      rig.live,
	}, zerolog.Nop())
	rig.router = NewRouter(api, nil, nil, zerolog.Nop())
	return rig
}

func (rig *apiRig) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	rig.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["message"] != "welcome to sensor server" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestHealth(t *testing.T) {
	rig := newAPIRig(t)
	rig.do(http.MethodPost, "/sensor-data", `{"temperature":21.5,"humidity":55}`)

	rec := rig.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[HealthResponse](t, rec)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Store.TotalRecords != 1 {
		t.Errorf("store.total_records = %d, want 1", body.Store.TotalRecords)
	}
	if body.Database == nil {
		t.Error("expected database stats")
	}
}

func TestNotFound(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] != "endpoint not found" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodDelete, "/sensor-data", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestPostSensorData(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(http.MethodPost, "/sensor-data", `{"temperature":21.5,"humidity":55}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	body := decode[struct {
		Message string              `json:"message"`
		Data    models.SensorRecord `json:"data"`
	}](t, rec)
	if body.Message != "sensor data saved" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Data.ID != 1 || body.Data.Temperature != 21.5 || body.Data.Humidity != 55 {
		t.Errorf("data = %+v", body.Data)
	}

	if latest := rig.store.LatestSensorData(); latest == nil || latest.ID != 1 {
		t.Errorf("store latest = %+v", latest)
	}
	if len(rig.writer.records) != 1 || rig.writer.records[0].ID != 1 {
		t.Errorf("writer got %+v", rig.writer.records)
	}
	if len(rig.publisher.sensor) != 1 {
		t.Errorf("published %d sensor records, want 1", len(rig.publisher.sensor))
	}
	if len(rig.live.messages) != 1 || rig.live.messages[0].Type != models.MessageTypeSensorData {
		t.Errorf("broadcast %+v", rig.live.messages)
	}
}

func TestPostSensorData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"temperature":`},
		{"missing humidity", `{"temperature":21.5}`},
		{"missing temperature", `{"humidity":55}`},
		{"wrong type", `{"temperature":"warm","humidity":55}`},
		{"humidity out of range", `{"temperature":21.5,"humidity":120}`},
		{"temperature out of range", `{"temperature":-60,"humidity":55}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newAPIRig(t)

			rec := rig.do(http.MethodPost, "/sensor-data", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if rig.store.Stats().TotalRecords != 0 {
				t.Error("invalid report was stored")
			}
			if len(rig.live.messages) != 0 {
				t.Error("invalid report was broadcast")
			}
		})
	}
}

func TestPostSensorData_SideEffectFailuresDoNotFail(t *testing.T) {
	rig := newAPIRig(t)
	rig.writer.full = true
	rig.publisher.err = errors.New("broker down")

	rec := rig.do(http.MethodPost, "/sensor-data", `{"temperature":21.5,"humidity":55}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rig.store.Stats().TotalRecords != 1 {
		t.Error("report not kept in memory")
	}
}

func TestGetSensorData(t *testing.T) {
	rig := newAPIRig(t)
	for _, temp := range []string{"20", "21", "22"} {
		rig.do(http.MethodPost, "/sensor-data", `{"temperature":`+temp+`,"humidity":50}`)
	}

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantTemps []float64
	}{
		{"all", "/sensor-data", http.StatusOK, []float64{20, 21, 22}},
		{"limited", "/sensor-data?limit=2", http.StatusOK, []float64{21, 22}},
		{"bad limit", "/sensor-data?limit=x", http.StatusBadRequest, nil},
		{"zero limit", "/sensor-data?limit=0", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rig.do(http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantTemps == nil {
				return
			}
			records := decode[[]models.SensorRecord](t, rec)
			if len(records) != len(tt.wantTemps) {
				t.Fatalf("len = %d, want %d", len(records), len(tt.wantTemps))
			}
			for i, want := range tt.wantTemps {
				if records[i].Temperature != want {
					t.Errorf("records[%d].Temperature = %v, want %v", i, records[i].Temperature, want)
				}
			}
		})
	}
}

func TestSensorHistory(t *testing.T) {
	rig := newAPIRig(t)

	now := time.Now().UTC()
	err := rig.db.InsertBatch([]*models.SensorRecord{
		{Temperature: 18, Humidity: 40, UpdatedAt: now.Add(-48 * time.Hour)},
		{Temperature: 19, Humidity: 41, UpdatedAt: now.Add(-2 * time.Hour)},
		{Temperature: 20, Humidity: 42, UpdatedAt: now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	t.Run("default window", func(t *testing.T) {
		rec := rig.do(http.MethodGet, "/sensor-data/history", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		records := decode[[]models.SensorRecord](t, rec)
		if len(records) != 2 {
			t.Fatalf("len = %d, want 2", len(records))
		}
		if records[0].Temperature != 19 {
			t.Errorf("first = %v, want oldest first", records[0].Temperature)
		}
	})

	t.Run("explicit range", func(t *testing.T) {
		q := url.Values{}
		q.Set("start", now.Add(-72*time.Hour).Format(time.RFC3339))
		q.Set("end", now.Add(-90*time.Minute).Format(time.RFC3339))
		rec := rig.do(http.MethodGet, "/sensor-data/history?"+q.Encode(), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if records := decode[[]models.SensorRecord](t, rec); len(records) != 2 {
			t.Errorf("len = %d, want 2", len(records))
		}
	})

	t.Run("empty range is an empty list", func(t *testing.T) {
		q := url.Values{}
		q.Set("start", now.Add(time.Hour).Format(time.RFC3339))
		q.Set("end", now.Add(2*time.Hour).Format(time.RFC3339))
		rec := rig.do(http.MethodGet, "/sensor-data/history?"+q.Encode(), "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rec.Body.String())
		}
	})

	for _, target := range []string{
		"/sensor-data/history?start=yesterday",
		"/sensor-data/history?end=soon",
		"/sensor-data/history?start=2026-01-02T00:00:00Z&end=2026-01-01T00:00:00Z",
	} {
		if rec := rig.do(http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestDailyStats(t *testing.T) {
	rig := newAPIRig(t)

	now := time.Now().UTC()
	err := rig.db.InsertBatch([]*models.SensorRecord{
		{Temperature: 18, Humidity: 40, UpdatedAt: now.Add(-time.Minute)},
		{Temperature: 22, Humidity: 60, UpdatedAt: now.Add(-time.Minute)},
	})
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	rec := rig.do(http.MethodGet, "/sensor-data/daily?days=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	stats := decode[[]storage.DailyStat](t, rec)
	if len(stats) != 1 {
		t.Fatalf("len = %d, want 1", len(stats))
	}
	if stats[0].RecordCount != 2 || stats[0].AvgTemperature != 20 {
		t.Errorf("stat = %+v", stats[0])
	}

	for _, target := range []string{"/sensor-data/daily?days=0", "/sensor-data/daily?days=abc", "/sensor-data/daily?days=1000"} {
		if rec := rig.do(http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestHistoryWithoutDatabase(t *testing.T) {
	api := NewAPIHandler(NewMemoryStore(10), Options{}, zerolog.Nop())
	router := NewRouter(api, nil, nil, zerolog.Nop())

	for _, target := range []string{"/sensor-data/history", "/sensor-data/daily"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", target, rec.Code)
		}
	}
}

func TestPostDeviceStatus(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantOn        bool
		wantConnected bool
	}{
		{"device keys", `{"isOn":true,"wifiConnected":true}`, true, true},
		{"snake case keys", `{"is_on":true,"wifi_connected":false}`, true, false},
		{"device keys win", `{"isOn":false,"is_on":true,"wifiConnected":true}`, false, true},
		{"missing keys default off", `{}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newAPIRig(t)

			rec := rig.do(http.MethodPost, "/device-status", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			body := decode[struct {
				Message string                    `json:"message"`
				Data    models.DeviceStatusRecord `json:"data"`
			}](t, rec)
			if body.Message != "device status saved" {
				t.Errorf("message = %q", body.Message)
			}
			if body.Data.IsOn != tt.wantOn || body.Data.WifiConnected != tt.wantConnected {
				t.Errorf("data = %+v", body.Data)
			}

			persisted, err := rig.db.GetDeviceStatus()
			if err != nil || persisted == nil {
				t.Fatalf("GetDeviceStatus() = %v, %v", persisted, err)
			}
			if persisted.IsOn != tt.wantOn || persisted.WifiConnected != tt.wantConnected {
				t.Errorf("persisted = %+v", persisted)
			}
			if len(rig.publisher.statuses) != 1 {
				t.Errorf("published %d statuses, want 1", len(rig.publisher.statuses))
			}
			if len(rig.live.messages) != 1 || rig.live.messages[0].Type != models.MessageTypeDeviceStatus {
				t.Errorf("broadcast %+v", rig.live.messages)
			}
		})
	}
}

func TestPostDeviceStatus_Invalid(t *testing.T) {
	rig := newAPIRig(t)

	for _, body := range []string{`{"isOn":`, `{"isOn":"yes"}`} {
		if rec := rig.do(http.MethodPost, "/device-status", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
	if rig.store.DeviceStatus() != nil {
		t.Error("invalid status was stored")
	}
}

func TestPostDeviceStatus_PersistFailure(t *testing.T) {
	store := NewMemoryStore(10)
	api := NewAPIHandler(store, Options{History: failingHistory{}}, zerolog.Nop())
	router := NewRouter(api, nil, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/device-status", strings.NewReader(`{"isOn":true,"wifiConnected":true}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if store.DeviceStatus() != nil {
		t.Error("memory ran ahead of the database")
	}
}

func TestGetDeviceStatus(t *testing.T) {
	rig := newAPIRig(t)

	// First read creates the off/disconnected row
	rec := rig.do(http.MethodGet, "/device-status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[models.DeviceStatusRecord](t, rec)
	if got.IsOn || got.WifiConnected {
		t.Errorf("default = %+v, want off", got)
	}
	if persisted, _ := rig.db.GetDeviceStatus(); persisted == nil {
		t.Error("default row not persisted")
	}

	rig.do(http.MethodPost, "/device-status", `{"isOn":true,"wifiConnected":false}`)

	rec = rig.do(http.MethodGet, "/device-status", "")
	got = decode[models.DeviceStatusRecord](t, rec)
	if !got.IsOn || got.WifiConnected {
		t.Errorf("status = %+v, want on and disconnected", got)
	}
	if !strings.Contains(rec.Body.String(), `"is_on":true`) {
		t.Errorf("body %s is not snake_case", rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	api := NewAPIHandler(NewMemoryStore(10), Options{}, zerolog.Nop())

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"allowed", []string{"http://dashboard.local"}, "http://dashboard.local", "http://dashboard.local"},
		{"not allowed", []string{"http://dashboard.local"}, "http://evil.example", ""},
		{"none configured", nil, "http://dashboard.local", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(api, nil, tt.origins, zerolog.Nop())
			req := httptest.NewRequest(http.MethodGet, "/sensor-data", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealth_Components(t *testing.T) {
	api := NewAPIHandler(NewMemoryStore(10), Options{
		Components: map[string]func() any{
			"live_clients": func() any { return 3 },
		},
	}, zerolog.Nop())
	router := NewRouter(api, nil, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decode[HealthResponse](t, rec)
	if body.Database != nil {
		t.Error("expected no database section without history")
	}
	if got, ok := body.Components["live_clients"].(float64); !ok || got != 3 {
		t.Errorf("components = %+v, want live_clients 3", body.Components)
	}
}

type panickingStore struct {
	LiveStore
}

func (panickingStore) Stats() StoreStats {
	panic("stats unavailable")
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	api := NewAPIHandler(panickingStore{NewMemoryStore(10)}, Options{}, zerolog.Nop())
	router := NewRouter(api, nil, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
