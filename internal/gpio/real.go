//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealSwitch reads the switch from actual hardware.
type RealSwitch struct {
	line *gpiocdev.Line
}

// NewRealSwitch requests pin on chip as an input with pull-down,
// so a floating switch reads as off.
func NewRealSwitch(chip string, pin int) (*RealSwitch, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		return nil, fmt.Errorf("request switch pin %d: %w", pin, err)
	}
	return &RealSwitch{line: line}, nil
}

// IsOn returns true while the input is high (active-high).
func (s *RealSwitch) IsOn() (bool, error) {
	v, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read switch pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the switch line.
func (s *RealSwitch) Close() error {
	if s.line == nil {
		return nil
	}
	return s.line.Close()
}

// RealIndicators drives the LEDs on actual hardware.
type RealIndicators struct {
	power *gpiocdev.Line
	wifi  *gpiocdev.Line
}

// NewRealIndicators requests both LED pins as outputs, initially off.
func NewRealIndicators(chip string, powerPin, wifiPin int) (*RealIndicators, error) {
	power, err := gpiocdev.RequestLine(chip, powerPin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request power LED pin %d: %w", powerPin, err)
	}

	wifi, err := gpiocdev.RequestLine(chip, wifiPin, gpiocdev.AsOutput(0))
	if err != nil {
		power.Close()
		return nil, fmt.Errorf("request wifi LED pin %d: %w", wifiPin, err)
	}

	return &RealIndicators{power: power, wifi: wifi}, nil
}

// Set drives both LEDs.
func (i *RealIndicators) Set(power, wifi bool) error {
	if err := i.power.SetValue(level(power)); err != nil {
		return fmt.Errorf("set power LED: %w", err)
	}
	if err := i.wifi.SetValue(level(wifi)); err != nil {
		return fmt.Errorf("set wifi LED: %w", err)
	}
	return nil
}

// Close turns the LEDs off and releases both lines.
func (i *RealIndicators) Close() error {
	var errs []error

	for name, line := range map[string]*gpiocdev.Line{"power": i.power, "wifi": i.wifi} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("turn off %s LED: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s LED: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
