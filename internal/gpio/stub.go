//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSwitch is not available on non-Linux platforms.
type RealSwitch struct{}

// NewRealSwitch returns an error on non-Linux platforms.
func NewRealSwitch(chip string, pin int) (*RealSwitch, error) {
	return nil, errUnsupported
}

// IsOn is not implemented on non-Linux platforms.
func (s *RealSwitch) IsOn() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *RealSwitch) Close() error {
	return nil
}

// RealIndicators is not available on non-Linux platforms.
type RealIndicators struct{}

// NewRealIndicators returns an error on non-Linux platforms.
func NewRealIndicators(chip string, powerPin, wifiPin int) (*RealIndicators, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (i *RealIndicators) Set(power, wifi bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (i *RealIndicators) Close() error {
	return nil
}
