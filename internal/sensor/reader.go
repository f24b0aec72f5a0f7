package sensor

import (
	"errors"
	"fmt"

	"github.com/afroash/climate-node/internal/models"
	"github.com/rs/zerolog"
)

// ErrReadFailure means the probe produced no usable reading this time
var ErrReadFailure = errors.New("no reading available")

// Reader turns raw probe output into validated SensorData
type Reader struct {
	sensor DHTSensor
	logger zerolog.Logger
}

// NewReader creates a new sensor reader
func NewReader(sensor DHTSensor, logger zerolog.Logger) *Reader {
	return &Reader{
		sensor: sensor,
		logger: logger.With().Str("component", "sensor").Logger(),
	}
}

// Read performs a single reading. Any driver error or invalid value
// (NaN on either channel, out of range) is reported as ErrReadFailure.
func (r *Reader) Read() (models.SensorData, error) {
	temperature, humidity, err := r.sensor.Read()
	if err != nil {
		return models.SensorData{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	data := models.SensorData{Temperature: temperature, Humidity: humidity}
	if err := data.Validate(); err != nil {
		return models.SensorData{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	r.logger.Debug().Float64("temperature", data.Temperature).Float64("humidity", data.Humidity).Msg("Read from sensor")
	return data, nil
}

// Close releases the underlying probe
func (r *Reader) Close() error {
	return r.sensor.Close()
}
