// Package gpio provides the power switch input and the status LEDs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Switch reads the device power switch.
type Switch interface {
	// IsOn returns true while the switch input is high.
	IsOn() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Indicators drives the two status LEDs.
type Indicators interface {
	// Set lights the power LED when power is true and the wifi LED when wifi is true.
	Set(power, wifi bool) error

	// Close turns both LEDs off and releases GPIO resources.
	Close() error
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
