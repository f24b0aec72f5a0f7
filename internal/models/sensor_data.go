package models

import (
	"fmt"
	"math"
	"time"
)

// Physical range of the DHT probes. Anything outside is a bad read, not weather.
const (
	MinTemperature = -40.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// SensorData is the latest temperature/humidity pair held by the device.
// Field order is the wire order: temperature, then humidity.
type SensorData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Validate checks that both channels carry a usable number within the probe's range
func (s SensorData) Validate() error {
	if math.IsNaN(s.Temperature) || math.IsNaN(s.Humidity) {
		return fmt.Errorf("reading is not a number (temperature=%v, humidity=%v)", s.Temperature, s.Humidity)
	}
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %.1f°C outside %.0f..%.0f°C", s.Temperature, MinTemperature, MaxTemperature)
	}
	if s.Humidity < MinHumidity || s.Humidity > MaxHumidity {
		return fmt.Errorf("humidity %.1f%% outside %.0f..%.0f%%", s.Humidity, MinHumidity, MaxHumidity)
	}
	return nil
}

func (s SensorData) String() string {
	return fmt.Sprintf("Temperature: %.1f°C, Humidity: %.1f%%", s.Temperature, s.Humidity)
}

// DeviceStatus is the power/connectivity pair reported by the device.
// Field order is the wire order: isOn, then wifiConnected.
type DeviceStatus struct {
	IsOn          bool `json:"isOn"`
	WifiConnected bool `json:"wifiConnected"`
}

func (d DeviceStatus) String() string {
	return fmt.Sprintf("IsOn: %t, WifiConnected: %t", d.IsOn, d.WifiConnected)
}

// SensorRecord is a sensor report as stored and served by the ingest server
type SensorRecord struct {
	ID          int64     `json:"id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSensorRecord stamps a received report with the current time
func NewSensorRecord(data SensorData) *SensorRecord {
	return &SensorRecord{
		Temperature: data.Temperature,
		Humidity:    data.Humidity,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Data returns the temperature/humidity pair of the record
func (r *SensorRecord) Data() SensorData {
	return SensorData{Temperature: r.Temperature, Humidity: r.Humidity}
}

// Copy returns a deep copy of the record
func (r *SensorRecord) Copy() *SensorRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// DeviceStatusRecord is the single device-status row kept by the ingest server.
// It is served in snake_case, which is what the dashboard reads.
type DeviceStatusRecord struct {
	IsOn          bool      `json:"is_on"`
	WifiConnected bool      `json:"wifi_connected"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewDeviceStatusRecord stamps a received status with the current time
func NewDeviceStatusRecord(status DeviceStatus) *DeviceStatusRecord {
	return &DeviceStatusRecord{
		IsOn:          status.IsOn,
		WifiConnected: status.WifiConnected,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Status returns the power/connectivity pair of the record
func (r *DeviceStatusRecord) Status() DeviceStatus {
	return DeviceStatus{IsOn: r.IsOn, WifiConnected: r.WifiConnected}
}
