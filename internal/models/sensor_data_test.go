// internal/models/sensor_data_test.go
package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSensorData_Validate(t *testing.T) {
	tests := []struct {
		name      string
		data      SensorData
		wantError bool
	}{
		{"valid reading", SensorData{Temperature: 22.5, Humidity: 45.0}, false},
		{"valid edge low", SensorData{Temperature: -40.0, Humidity: 0.0}, false},
		{"valid edge high", SensorData{Temperature: 80.0, Humidity: 100.0}, false},
		{"temperature NaN", SensorData{Temperature: math.NaN(), Humidity: 45.0}, true},
		{"humidity NaN", SensorData{Temperature: 22.5, Humidity: math.NaN()}, true},
		{"temperature too low", SensorData{Temperature: -45.0, Humidity: 45.0}, true},
		{"temperature too high", SensorData{Temperature: 85.0, Humidity: 45.0}, true},
		{"humidity negative", SensorData{Temperature: 22.5, Humidity: -5.0}, true},
		{"humidity over 100", SensorData{Temperature: 22.5, Humidity: 105.0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestSensorData_WireFormat(t *testing.T) {
	data, err := json.Marshal(SensorData{Temperature: 21.5, Humidity: 55.0})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"temperature":21.5,"humidity":55}` {
		t.Errorf("payload = %s", data)
	}

	// The server decodes into its own struct with the same key names
	var decoded struct {
		Temperature float64 `json:"temperature"`
		Humidity    float64 `json:"humidity"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Temperature != 21.5 || decoded.Humidity != 55.0 {
		t.Errorf("decoded = %+v, want 21.5/55.0", decoded)
	}
}

func TestDeviceStatus_WireFormat(t *testing.T) {
	data, err := json.Marshal(DeviceStatus{IsOn: true, WifiConnected: false})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"isOn":true,"wifiConnected":false}` {
		t.Errorf("payload = %s", data)
	}
}

func TestNewSensorRecord(t *testing.T) {
	rec := NewSensorRecord(SensorData{Temperature: 22.5, Humidity: 45.0})

	if rec.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", rec.Temperature)
	}
	if rec.Humidity != 45.0 {
		t.Errorf("Humidity = %v, want 45.0", rec.Humidity)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should not be zero")
	}
	if got := rec.Data(); got != (SensorData{Temperature: 22.5, Humidity: 45.0}) {
		t.Errorf("Data() = %+v", got)
	}

	c := rec.Copy()
	c.Temperature = 99
	if rec.Temperature != 22.5 {
		t.Error("Copy should not alias the original")
	}
}

func TestDeviceStatusRecord_JSON(t *testing.T) {
	rec := NewDeviceStatusRecord(DeviceStatus{IsOn: true, WifiConnected: true})

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"is_on", "wifi_connected", "updated_at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if rec.Status() != (DeviceStatus{IsOn: true, WifiConnected: true}) {
		t.Errorf("Status() = %+v", rec.Status())
	}
}
