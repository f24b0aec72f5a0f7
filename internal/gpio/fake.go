package gpio

import "errors"

// FakeSwitch is a test double that returns scripted switch positions.
type FakeSwitch struct {
	// Samples contains scripted positions to return.
	// Each call to IsOn() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by IsOn()
	ReadError error
}

// NewFakeSwitch creates a FakeSwitch with the given samples.
func NewFakeSwitch(samples ...bool) *FakeSwitch {
	return &FakeSwitch{Samples: samples}
}

// IsOn returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeSwitch) IsOn() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the switch as closed.
func (f *FakeSwitch) Close() error {
	f.Closed = true
	return nil
}

// LEDState is one recorded Set call.
type LEDState struct {
	Power bool
	Wifi  bool
}

// FakeIndicators records every LED state it is asked to show.
type FakeIndicators struct {
	History []LEDState
	Closed  bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// Set records the requested state.
func (f *FakeIndicators) Set(power, wifi bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, LEDState{Power: power, Wifi: wifi})
	return nil
}

// Last returns the most recent state, or both off if Set was never called.
func (f *FakeIndicators) Last() LEDState {
	if len(f.History) == 0 {
		return LEDState{}
	}
	return f.History[len(f.History)-1]
}

// Close records that both LEDs were switched off.
func (f *FakeIndicators) Close() error {
	f.Closed = true
	f.History = append(f.History, LEDState{})
	return nil
}
