package server

import (
	"time"

	"github.com/afroash/climate-node/internal/models"
	"github.com/afroash/climate-node/internal/storage"
)

// LiveStore holds the recent window of reports and the current device status.
// MemoryStore implements this interface.
type LiveStore interface {
	// AddSensorData appends a record, assigning its ID if unset
	AddSensorData(record *models.SensorRecord)

	// ListSensorData returns up to limit of the newest records, oldest first.
	// limit <= 0 returns everything held.
	ListSensorData(limit int) []*models.SensorRecord

	// LatestSensorData returns the newest record or nil
	LatestSensorData() *models.SensorRecord

	// DeviceStatus returns the current status or nil if none was ever set
	DeviceStatus() *models.DeviceStatusRecord

	// SetDeviceStatus replaces the current status
	SetDeviceStatus(record *models.DeviceStatusRecord)

	// Stats returns statistics about the store
	Stats() StoreStats
}

// HistoricalStore is the persistent side, used when the database is enabled.
// storage.SQLiteStore implements this interface.
type HistoricalStore interface {
	GetSensorDataInRange(start, end time.Time, limit int) ([]*models.SensorRecord, error)
	GetDailyStats(start, end time.Time) ([]storage.DailyStat, error)
	GetStorageStats() (*storage.StorageStats, error)
	UpsertDeviceStatus(record *models.DeviceStatusRecord) error
}

// SensorWriter queues records for persistence.
// storage.DBWriter implements this interface.
type SensorWriter interface {
	Write(record *models.SensorRecord) bool
}

// Publisher mirrors accepted reports to another system.
// mqtt.Publisher implements this interface.
type Publisher interface {
	PublishSensorData(record *models.SensorRecord) error
	PublishDeviceStatus(record *models.DeviceStatusRecord) error
}

// Broadcaster pushes messages to live dashboard clients.
// LiveHandler implements this interface.
type Broadcaster interface {
	Broadcast(msg *models.Message)
}
