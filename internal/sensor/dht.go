package sensor

import (
	"fmt"

	"github.com/afroash/dht"
)

// DHTSensor defines the interface for reading from a DHT sensor
type DHTSensor interface {
	// Read performs a single reading from the sensor
	// Returns temperature (°C), humidity (%), and any error
	Read() (temperature float64, humidity float64, err error)

	// Close cleans up GPIO resources
	Close() error
}

// DHT11Reader implements DHTSensor for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader opens the DHT11 on the given data pin
func NewDHT11Reader(pin, maxRetries int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("open DHT11 on pin %d: %w", pin, err)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: maxRetries,
		sensor:     sensor,
	}, nil
}

// Read performs a reading from the DHT11 sensor with retry logic.
// Range checks are left to the caller.
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("after %d retries, failed to read from sensor on pin %d: %w", d.maxRetries, d.pin, err)
	}
	return reading.Temperature, reading.Humidity, nil
}

// Close cleans up GPIO resources
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}
