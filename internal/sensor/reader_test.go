// internal/sensor/reader_test.go
package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
)

// MockDHTSensor implements DHTSensor for testing
type MockDHTSensor struct {
	temperature float64
	humidity    float64
	err         error
	readCount   int
	closed      bool
}

func (m *MockDHTSensor) Read() (float64, float64, error) {
	m.readCount++
	return m.temperature, m.humidity, m.err
}

func (m *MockDHTSensor) Close() error {
	m.closed = true
	return nil
}

func TestReader_Read(t *testing.T) {
	mock := &MockDHTSensor{
		temperature: 22.5,
		humidity:    45.0,
	}
	reader := NewReader(mock, zerolog.Nop())

	data, err := reader.Read()
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	if data.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", data.Temperature)
	}
	if data.Humidity != 45.0 {
		t.Errorf("Humidity = %v, want 45.0", data.Humidity)
	}
	if mock.readCount != 1 {
		t.Errorf("Mock read count = %d, want 1", mock.readCount)
	}
}

func TestReader_ReadFailures(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		humidity    float64
		err         error
	}{
		{"driver error", 0, 0, errors.New("checksum mismatch")},
		{"temperature NaN", math.NaN(), 45.0, nil},
		{"humidity NaN", 22.5, math.NaN(), nil},
		{"both NaN", math.NaN(), math.NaN(), nil},
		{"humidity over 100", 22.5, 120.0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockDHTSensor{temperature: tt.temperature, humidity: tt.humidity, err: tt.err}
			reader := NewReader(mock, zerolog.Nop())

			data, err := reader.Read()
			if !errors.Is(err, ErrReadFailure) {
				t.Fatalf("Read() error = %v, want ErrReadFailure", err)
			}
			if data.Temperature != 0 || data.Humidity != 0 {
				t.Errorf("failed read should return zero data, got %+v", data)
			}
		})
	}
}

func TestReader_Close(t *testing.T) {
	mock := &MockDHTSensor{}
	reader := NewReader(mock, zerolog.Nop())

	if err := reader.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !mock.closed {
		t.Error("Close() should close the underlying sensor")
	}
}
