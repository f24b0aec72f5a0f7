// Package reporter posts the device's sensor data and status to the report server.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-node/internal/models"
)

const (
	SensorDataPath   = "/sensor-data"
	DeviceStatusPath = "/device-status"
)

// ErrNotConnected is returned when there is no session to report over
var ErrNotConnected = errors.New("no active session")

// Session tells the reporter whether a secure session is up
type Session interface {
	IsConnected() bool
}

// StatusError is a non-2xx reply from the server
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: server returned %d", e.Path, e.StatusCode)
}

// Reporter sends fire-and-forget JSON POSTs
type Reporter struct {
	client  *resty.Client
	session Session
	logger  zerolog.Logger
}

// New creates a reporter for baseURL. httpClient should carry the pinned transport.
func New(baseURL string, httpClient *http.Client, session Session, logger zerolog.Logger) *Reporter {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")

	return &Reporter{
		client:  client,
		session: session,
		logger:  logger.With().Str("component", "reporter").Logger(),
	}
}

// Report posts data and status independently. A failure of one POST does not
// stop the other; nothing is retried. The returned error joins both outcomes.
func (r *Reporter) Report(ctx context.Context, data models.SensorData, status models.DeviceStatus) error {
	if !r.session.IsConnected() {
		r.logger.Warn().
			Str("sensor_data", data.String()).
			Str("device_status", status.String()).
			Msg("Not connected, skipping report")
		return ErrNotConnected
	}

	return errors.Join(
		r.post(ctx, SensorDataPath, data),
		r.post(ctx, DeviceStatusPath, status),
	)
}

func (r *Reporter) post(ctx context.Context, path string, body any) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("Report request failed")
		return fmt.Errorf("POST %s: %w", path, err)
	}

	if !resp.IsSuccess() {
		r.logger.Error().
			Str("path", path).
			Int("status", resp.StatusCode()).
			Str("body", string(resp.Body())).
			Msg("Server rejected report")
		return &StatusError{Path: path, StatusCode: resp.StatusCode()}
	}

	r.logger.Debug().Str("path", path).Int("status", resp.StatusCode()).Msg("Report sent")
	return nil
}
