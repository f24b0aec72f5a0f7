// Package mqtt mirrors accepted reports to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/afroash/climate-node/internal/models"
)

// Topic suffixes under the configured prefix
const (
	SensorDataSuffix   = "sensor-data"
	DeviceStatusSuffix = "device-status"
)

// Publisher mirrors reports to the broker. Failures are returned, never fatal.
type Publisher interface {
	PublishSensorData(record *models.SensorRecord) error

	// PublishDeviceStatus publishes retained so late subscribers see the
	// current status.
	PublishDeviceStatus(record *models.DeviceStatusRecord) error

	Close() error
}

// Topics holds the full topic names for a prefix
type Topics struct {
	SensorData   string
	DeviceStatus string
}

// NewTopics builds topic names under prefix, e.g. "climate-node/sensor-data"
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		SensorData:   prefix + "/" + SensorDataSuffix,
		DeviceStatus: prefix + "/" + DeviceStatusSuffix,
	}
}

// FormatSensorData creates the JSON payload for a sensor record
func FormatSensorData(record *models.SensorRecord) ([]byte, error) {
	return json.Marshal(record)
}

// FormatDeviceStatus creates the JSON payload for a device status record
func FormatDeviceStatus(record *models.DeviceStatusRecord) ([]byte, error) {
	return json.Marshal(record)
}
