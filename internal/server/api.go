package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
	"github.com/afroash/climate-node/internal/storage"
)

const maxBodyBytes = 1 << 16

// Options are the optional collaborators of the API
type Options struct {
	History   HistoricalStore
	Writer    SensorWriter
	Publisher Publisher
	Live      Broadcaster

	// Components adds named sections to GET /health, e.g. writer queue stats
	Components map[string]func() any
}

// APIHandler serves the report endpoints the device posts to and the
// read endpoints the dashboard polls.
type APIHandler struct {
	store      LiveStore
	history    HistoricalStore
	writer     SensorWriter
	publisher  Publisher
	live       Broadcaster
	components map[string]func() any
	logger     zerolog.Logger
}

// NewAPIHandler creates a new API handler. Zero-value options disable the
// matching feature.
func NewAPIHandler(store LiveStore, opts Options, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:      store,
		history:    opts.History,
		writer:     opts.Writer,
		publisher:  opts.Publisher,
		live:       opts.Live,
		components: opts.Components,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type saveResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                `json:"status"`
	Store      StoreStats            `json:"store"`
	Database   *storage.StorageStats `json:"database,omitempty"`
	Components map[string]any        `json:"components,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// HandleRoot greets clients
func (api *APIHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "welcome to sensor server"})
}

// HandleHealth reports liveness and store statistics
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: api.store.Stats()}

	if api.history != nil {
		stats, err := api.history.GetStorageStats()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to get storage stats")
			resp.Status = "degraded"
		} else {
			resp.Database = stats
		}
	}

	if len(api.components) > 0 {
		resp.Components = make(map[string]any, len(api.components))
		for name, stats := range api.components {
			resp.Components[name] = stats()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleNotFound answers unknown paths
func (api *APIHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "endpoint not found")
}

// HandleMethodNotAllowed answers known paths hit with the wrong method
func (api *APIHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// HandlePostSensorData accepts {"temperature":…,"humidity":…} from the device
func (api *APIHandler) HandlePostSensorData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Temperature == nil || body.Humidity == nil {
		writeError(w, http.StatusBadRequest, "temperature and humidity are required")
		return
	}

	data := models.SensorData{Temperature: *body.Temperature, Humidity: *body.Humidity}
	if err := data.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record := models.NewSensorRecord(data)
	api.store.AddSensorData(record)

	if api.writer != nil && !api.writer.Write(record.Copy()) {
		api.logger.Warn().Int64("id", record.ID).Msg("Sensor record not queued for persistence")
	}
	if api.publisher != nil {
		if err := api.publisher.PublishSensorData(record); err != nil {
			api.logger.Warn().Err(err).Msg("Failed to mirror sensor data")
		}
	}
	api.broadcast(models.MessageTypeSensorData, record)

	api.logger.Info().
		Float64("temperature", record.Temperature).
		Float64("humidity", record.Humidity).
		Msg("Sensor data saved")

	writeJSON(w, http.StatusOK, saveResponse{Message: "sensor data saved", Data: record})
}

// HandleGetSensorData returns the recent window of records, oldest first.
// ?limit=N returns only the newest N.
func (api *APIHandler) HandleGetSensorData(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, api.store.ListSensorData(limit))
}

// HandleSensorHistory returns persisted records between start and end (RFC 3339).
// Defaults to the last 24 hours.
func (api *APIHandler) HandleSensorHistory(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history requires the database")
		return
	}

	q := r.URL.Query()
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if s := q.Get("start"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC 3339")
			return
		}
		start = parsed
	}
	if s := q.Get("end"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC 3339")
			return
		}
		end = parsed
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end is before start")
		return
	}

	limit := 1000
	if s := q.Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := api.history.GetSensorDataInRange(start, end, limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query history")
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if records == nil {
		records = []*models.SensorRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// HandleDailyStats returns per-day min/max/avg for the last ?days=N days (default 7)
func (api *APIHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		writeError(w, http.StatusServiceUnavailable, "daily stats require the database")
		return
	}

	days := 7
	if s := r.URL.Query().Get("days"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 || parsed > 366 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 366")
			return
		}
		days = parsed
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	stats, err := api.history.GetDailyStats(start, end)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query daily stats")
		writeError(w, http.StatusInternalServerError, "failed to query daily stats")
		return
	}
	if stats == nil {
		stats = []storage.DailyStat{}
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandlePostDeviceStatus accepts {"isOn":…,"wifiConnected":…} from the device.
// The dashboard's snake_case keys are accepted too.
func (api *APIHandler) HandlePostDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsOn               *bool `json:"isOn"`
		WifiConnected      *bool `json:"wifiConnected"`
		IsOnSnake          *bool `json:"is_on"`
		WifiConnectedSnake *bool `json:"wifi_connected"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	status := models.DeviceStatus{
		IsOn:          firstBool(body.IsOn, body.IsOnSnake),
		WifiConnected: firstBool(body.WifiConnected, body.WifiConnectedSnake),
	}

	record := models.NewDeviceStatusRecord(status)
	if err := api.saveDeviceStatus(record); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save device status")
		return
	}

	api.logger.Info().
		Bool("is_on", record.IsOn).
		Bool("wifi_connected", record.WifiConnected).
		Msg("Device status saved")

	writeJSON(w, http.StatusOK, saveResponse{Message: "device status saved", Data: record})
}

// HandleGetDeviceStatus returns the status row, creating an off/disconnected
// one if the device never reported.
func (api *APIHandler) HandleGetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	record := api.store.DeviceStatus()
	if record == nil {
		record = models.NewDeviceStatusRecord(models.DeviceStatus{})
		if err := api.saveDeviceStatus(record); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create device status")
			return
		}
	}

	writeJSON(w, http.StatusOK, record)
}

// saveDeviceStatus persists first so memory never runs ahead of the database
func (api *APIHandler) saveDeviceStatus(record *models.DeviceStatusRecord) error {
	if api.history != nil {
		if err := api.history.UpsertDeviceStatus(record); err != nil {
			api.logger.Error().Err(err).Msg("Failed to persist device status")
			return err
		}
	}
	api.store.SetDeviceStatus(record)

	if api.publisher != nil {
		if err := api.publisher.PublishDeviceStatus(record); err != nil {
			api.logger.Warn().Err(err).Msg("Failed to mirror device status")
		}
	}
	api.broadcast(models.MessageTypeDeviceStatus, record)
	return nil
}

func (api *APIHandler) broadcast(msgType models.MessageType, payload any) {
	if api.live == nil {
		return
	}
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		api.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to build live message")
		return
	}
	api.live.Broadcast(msg)
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}
