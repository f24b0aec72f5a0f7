package server

import (
	"sync"
	"time"

	"github.com/afroash/climate-node/internal/models"
)

// MemoryStore is an in-memory ring of recent sensor records plus the device status
type MemoryStore struct {
	capacity     int
	records      []*models.SensorRecord
	status       *models.DeviceStatusRecord
	nextID       int64
	totalRecords int64
	mutex        sync.RWMutex
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalRecords   int64     `json:"total_records"`
	CurrentRecords int       `json:"current_records"`
	OldestRecord   time.Time `json:"oldest_record,omitempty"`
	NewestRecord   time.Time `json:"newest_record,omitempty"`
}

// Compile-time interface check
var _ LiveStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store that keeps the newest capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		records:  make([]*models.SensorRecord, 0, capacity),
		nextID:   1,
	}
}

// Load seeds the store from persisted data, e.g. on startup.
// records must be oldest first.
func (ms *MemoryStore) Load(records []*models.SensorRecord, status *models.DeviceStatusRecord) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if len(records) > ms.capacity {
		records = records[len(records)-ms.capacity:]
	}
	ms.records = ms.records[:0]
	for _, r := range records {
		ms.records = append(ms.records, r.Copy())
		if r.ID >= ms.nextID {
			ms.nextID = r.ID + 1
		}
	}
	if status != nil {
		s := *status
		ms.status = &s
	}
}

// AddSensorData appends a record, dropping the oldest when full
func (ms *MemoryStore) AddSensorData(record *models.SensorRecord) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if record.ID == 0 {
		record.ID = ms.nextID
	}
	if record.ID >= ms.nextID {
		ms.nextID = record.ID + 1
	}

	if len(ms.records) >= ms.capacity {
		ms.records = append(ms.records[:0], ms.records[1:]...)
	}
	ms.records = append(ms.records, record.Copy())
	ms.totalRecords++
}

// ListSensorData returns copies of the newest limit records, oldest first
func (ms *MemoryStore) ListSensorData(limit int) []*models.SensorRecord {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	start := 0
	if limit > 0 && limit < len(ms.records) {
		start = len(ms.records) - limit
	}

	result := make([]*models.SensorRecord, 0, len(ms.records)-start)
	for _, r := range ms.records[start:] {
		result = append(result, r.Copy())
	}
	return result
}

// LatestSensorData returns a copy of the newest record
func (ms *MemoryStore) LatestSensorData() *models.SensorRecord {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if len(ms.records) == 0 {
		return nil
	}
	return ms.records[len(ms.records)-1].Copy()
}

// DeviceStatus returns a copy of the current status
func (ms *MemoryStore) DeviceStatus() *models.DeviceStatusRecord {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if ms.status == nil {
		return nil
	}
	s := *ms.status
	return &s
}

// SetDeviceStatus replaces the current status
func (ms *MemoryStore) SetDeviceStatus(record *models.DeviceStatusRecord) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	s := *record
	ms.status = &s
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := StoreStats{
		TotalRecords:   ms.totalRecords,
		CurrentRecords: len(ms.records),
	}
	if len(ms.records) > 0 {
		stats.OldestRecord = ms.records[0].UpdatedAt
		stats.NewestRecord = ms.records[len(ms.records)-1].UpdatedAt
	}
	return stats
}
