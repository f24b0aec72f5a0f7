package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/config"
	"github.com/afroash/climate-node/internal/device"
	"github.com/afroash/climate-node/internal/gpio"
	"github.com/afroash/climate-node/internal/network"
	"github.com/afroash/climate-node/internal/reporter"
	"github.com/afroash/climate-node/internal/sensor"
)

const version = "v0.3.0"

// hardware is what the controller touches on the board
type hardware struct {
	sw     device.Switch
	leds   device.Indicators
	sensor device.SensorReader
}

func main() {
	configPath := flag.String("config", "configs/device.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional env file with WIFI_* and SERVER_* overrides")
	printState := flag.Bool("print-state", false, "read the switch and sensor once, print them and exit")
	fetchFP := flag.String("fingerprint", "", "print the SHA-256 fingerprint of host:port and exit")
	flag.Parse()

	if *fetchFP != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fp, err := network.FetchFingerprint(ctx, *fetchFP)
		if err != nil {
			log.Fatalf("Failed to fetch fingerprint: %v", err)
		}
		fmt.Println(fp)
		return
	}

	if err := config.LoadEnvFile(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	logger.Info().
		Str("version", version).
		Str("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("Starting climate node")

	sw, err := gpio.NewRealSwitch(cfg.GPIO.Chip, cfg.GPIO.SwitchPin)
	if err != nil {
		log.Fatalf("Failed to open power switch: %v", err)
	}
	defer sw.Close()

	leds, err := gpio.NewRealIndicators(cfg.GPIO.Chip, cfg.GPIO.PowerLEDPin, cfg.GPIO.WifiLEDPin)
	if err != nil {
		log.Fatalf("Failed to open status LEDs: %v", err)
	}
	defer leds.Close()

	probe, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin, cfg.Sensor.MaxRetries)
	if err != nil {
		log.Fatalf("Failed to open sensor: %v", err)
	}
	reader := sensor.NewReader(probe, logger)
	defer reader.Close()

	hw := hardware{sw: sw, leds: leds, sensor: reader}

	if *printState {
		if err := printOnce(hw); err != nil {
			log.Fatalf("Failed to read state: %v", err)
		}
		return
	}

	link, err := network.NewLink(cfg.WiFi)
	if err != nil {
		log.Fatalf("Failed to set up network link: %v", err)
	}

	controller, err := buildController(cfg, hw, link, logger)
	if err != nil {
		log.Fatalf("Failed to build controller: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := controller.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Control loop failed")
	}
	logger.Info().Msg("Climate node stopped")
}

// buildController wires the connectivity manager and reporter around hw
func buildController(cfg *config.Config, hw hardware, link network.Link, logger zerolog.Logger) (*device.Controller, error) {
	fp, err := network.ParseFingerprint(cfg.Server.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("server fingerprint: %w", err)
	}

	manager := network.NewManager(network.ManagerConfig{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		Fingerprint:          fp,
		ConnectTimeout:       cfg.Server.ConnectTimeout,
		ReconnectInterval:    cfg.Server.ReconnectInterval,
		MaxReconnectInterval: cfg.Server.MaxReconnectInterval,
		RequestTimeout:       cfg.Server.RequestTimeout,
	}, link, logger)

	rep := reporter.New(manager.BaseURL(), manager.HTTPClient(), manager, logger)

	return device.NewController(device.Config{
		SensorInterval: cfg.Sensor.ReadInterval,
		SendInterval:   cfg.Device.SendInterval,
		PollInterval:   cfg.Device.PollInterval,
		GracePeriod:    cfg.Device.GracePeriod,
	}, hw.sw, hw.leds, hw.sensor, manager, rep, logger), nil
}

func printOnce(hw hardware) error {
	on, err := hw.sw.IsOn()
	if err != nil {
		return fmt.Errorf("read switch: %w", err)
	}
	fmt.Printf("switch: %t\n", on)

	data, err := hw.sensor.Read()
	if err != nil {
		fmt.Printf("sensor: %v\n", err)
		return nil
	}
	fmt.Println(data)
	return nil
}
