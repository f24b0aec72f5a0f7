// Package device runs the climate node's control loop: it follows the power
// switch, keeps the connection up while on, samples the sensor and reports
// on fixed intervals, and sends one last status report before going offline.
package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

// State is the controller's position in the power/connection state machine
type State int

const (
	StateOff State = iota
	StateOnDisconnected
	StateOnConnected
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOnDisconnected:
		return "on_disconnected"
	case StateOnConnected:
		return "on_connected"
	default:
		return "unknown"
	}
}

// shutdownTimeout bounds the final report sent when the agent is stopped
const shutdownTimeout = 10 * time.Second

// Switch is the power switch input
type Switch interface {
	IsOn() (bool, error)
}

// Indicators are the power and wifi LEDs
type Indicators interface {
	Set(power, wifi bool) error
}

// SensorReader produces one validated reading per call
type SensorReader interface {
	Read() (models.SensorData, error)
}

// Connectivity brings the secure session up and down
type Connectivity interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Reporter sends the current data and status to the server
type Reporter interface {
	Report(ctx context.Context, data models.SensorData, status models.DeviceStatus) error
}

// Config holds the loop timings
type Config struct {
	SensorInterval time.Duration
	SendInterval   time.Duration
	PollInterval   time.Duration
	GracePeriod    time.Duration
}

// Controller owns DeviceStatus and SensorData. It is driven from a single
// goroutine and is not safe for concurrent use.
type Controller struct {
	cfg      Config
	sw       Switch
	leds     Indicators
	sensor   SensorReader
	conn     Connectivity
	reporter Reporter
	logger   zerolog.Logger

	// sleep is the pause between the final report and teardown
	sleep func(time.Duration)

	status models.DeviceStatus
	data   models.SensorData

	// elapsed time since start at which each action last ran
	lastSensorRead time.Duration
	lastSend       time.Duration
}

// NewController wires the collaborators into a controller that starts off
func NewController(
	cfg Config,
	sw Switch,
	leds Indicators,
	sensor SensorReader,
	conn Connectivity,
	reporter Reporter,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		cfg:      cfg,
		sw:       sw,
		leds:     leds,
		sensor:   sensor,
		conn:     conn,
		reporter: reporter,
		logger:   logger.With().Str("component", "controller").Logger(),
		sleep:    time.Sleep,
	}
}

// State returns the current state
func (c *Controller) State() State {
	switch {
	case !c.status.IsOn:
		return StateOff
	case c.status.WifiConnected:
		return StateOnConnected
	default:
		return StateOnDisconnected
	}
}

// Status returns the current device status
func (c *Controller) Status() models.DeviceStatus {
	return c.status
}

// Data returns the last good sensor reading
func (c *Controller) Data() models.SensorData {
	return c.data
}

// Run ticks every poll interval until ctx is cancelled, then goes offline
// the same way a switch-off would.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.logger.Info().
		Dur("sensor_interval", c.cfg.SensorInterval).
		Dur("send_interval", c.cfg.SendInterval).
		Dur("poll_interval", c.cfg.PollInterval).
		Msg("Starting control loop")

	start := time.Now()
	c.Tick(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			c.Shutdown(ctx)
			return nil
		case <-ticker.C:
			c.Tick(ctx, time.Since(start))
		}
	}
}

// Tick runs one pass of the loop. now is the elapsed time since start and
// must not go backwards between calls.
func (c *Controller) Tick(ctx context.Context, now time.Duration) {
	on, err := c.sw.IsOn()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read power switch")
		return
	}

	switch {
	case !on && c.status.IsOn:
		c.switchOff(ctx)
		c.updateIndicators()
		return
	case !on:
		c.updateIndicators()
		return
	case !c.status.IsOn:
		c.logger.Info().Msg("Switched on")
		c.status.IsOn = true
	}

	if !c.status.WifiConnected {
		if err := c.conn.Connect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Connect failed, will retry next tick")
		} else {
			c.status.WifiConnected = true
		}
	}
	c.updateIndicators()

	if now-c.lastSensorRead >= c.cfg.SensorInterval {
		c.readSensor()
		c.lastSensorRead = now
	}

	if now-c.lastSend >= c.cfg.SendInterval {
		c.report(ctx)
		c.lastSend = now
	}
}

// Shutdown sends the final report and tears the session down if the device
// is on and connected. It ignores ctx cancellation so the report can go out.
func (c *Controller) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if c.status.IsOn {
		c.switchOff(ctx)
	}
	c.updateIndicators()
	c.logger.Info().Msg("Control loop stopped")
}

func (c *Controller) switchOff(ctx context.Context) {
	c.logger.Info().Bool("connected", c.status.WifiConnected).Msg("Switched off")
	c.status.IsOn = false

	if !c.status.WifiConnected {
		return
	}

	// The server learns of the disconnect from this report, so the session
	// stays up until it has been sent.
	c.status.WifiConnected = false
	c.report(ctx)
	c.sleep(c.cfg.GracePeriod)

	if err := c.conn.Disconnect(); err != nil {
		c.logger.Warn().Err(err).Msg("Disconnect failed")
	}
}

func (c *Controller) readSensor() {
	data, err := c.sensor.Read()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Sensor read failed, keeping previous values")
		return
	}
	c.data = data
	c.logger.Info().
		Float64("temperature", data.Temperature).
		Float64("humidity", data.Humidity).
		Msg("Sensor reading")
}

func (c *Controller) report(ctx context.Context) {
	if err := c.reporter.Report(ctx, c.data, c.status); err != nil {
		c.logger.Debug().Err(err).Msg("Report incomplete")
	}
}

func (c *Controller) updateIndicators() {
	if err := c.leds.Set(c.status.IsOn, c.status.WifiConnected); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update indicators")
	}
}
