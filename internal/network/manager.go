package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrAssociateTimeout means the network did not come up within the connect timeout
var ErrAssociateTimeout = errors.New("network association timed out")

// Stage names the step of Connect that failed
type Stage string

const (
	StageAssociate Stage = "associate"
	StageHandshake Stage = "handshake"
)

// ConnectError is returned by Connect
type ConnectError struct {
	Stage Stage
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed at %s: %v", e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ManagerConfig holds configuration for the connectivity manager.
// ConnectTimeout <= 0 waits for the network until ctx is cancelled.
type ManagerConfig struct {
	Host                 string
	Port                 int
	Fingerprint          Fingerprint
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	RequestTimeout       time.Duration
}

// Manager owns the network association and the pinned TLS session to the report server
type Manager struct {
	link   Link
	logger zerolog.Logger

	addr                 string
	tlsConfig            *tls.Config
	connectTimeout       time.Duration
	reconnectInterval    time.Duration
	maxReconnectInterval time.Duration
	requestTimeout       time.Duration

	transport *http.Transport
	client    *http.Client

	state      ConnectionState
	associated bool
	stateMutex sync.RWMutex
}

// NewManager creates a new connectivity manager
func NewManager(cfg ManagerConfig, link Link, logger zerolog.Logger) *Manager {
	tlsConfig := PinnedTLSConfig(cfg.Fingerprint, cfg.Host)

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: cfg.RequestTimeout,
		MaxIdleConns:        2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Manager{
		link:                 link,
		logger:               logger.With().Str("component", "network").Logger(),
		addr:                 net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tlsConfig:            tlsConfig,
		connectTimeout:       cfg.ConnectTimeout,
		reconnectInterval:    cfg.ReconnectInterval,
		maxReconnectInterval: cfg.MaxReconnectInterval,
		requestTimeout:       cfg.RequestTimeout,
		transport:            transport,
		client:               &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		state:                StateDisconnected,
	}
}

// BaseURL is the root of the report endpoints
func (m *Manager) BaseURL() string {
	return "https://" + m.addr
}

// HTTPClient returns a client whose TLS is pinned to the configured fingerprint
func (m *Manager) HTTPClient() *http.Client {
	return m.client
}

// setState safely updates the connection state
func (m *Manager) setState(state ConnectionState) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.state = state
	m.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (m *Manager) State() ConnectionState {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// IsConnected returns true if a pinned session has been established
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect joins the network and then proves the pinned TLS session with a handshake.
// Association is retried with exponential backoff until the connect timeout.
// When the handshake fails the association is released rather than left up.
func (m *Manager) Connect(ctx context.Context) error {
	m.setState(StateConnecting)
	m.logger.Info().Str("addr", m.addr).Msg("Connecting to server...")

	if err := m.associate(ctx); err != nil {
		m.setState(StateDisconnected)
		return &ConnectError{Stage: StageAssociate, Err: err}
	}
	m.stateMutex.Lock()
	m.associated = true
	m.stateMutex.Unlock()

	if err := m.handshake(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Secure handshake failed, releasing network association")
		if rerr := m.release(); rerr != nil {
			m.logger.Warn().Err(rerr).Msg("Failed to release network association")
		}
		m.setState(StateDisconnected)
		return &ConnectError{Stage: StageHandshake, Err: err}
	}

	m.setState(StateConnected)
	m.logger.Info().Msg("Connected to server")
	return nil
}

// associate polls the link until it is up, doubling the delay between attempts.
// Only the connect timeout maps to ErrAssociateTimeout; the caller's own
// cancellation or deadline is returned as is.
func (m *Manager) associate(parent context.Context) error {
	ctx := parent
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	delay := m.reconnectInterval
	for {
		if m.link.Associated() {
			return nil
		}
		if err := m.link.Associate(ctx); err != nil {
			m.logger.Debug().Err(err).Msg("Association attempt failed")
		} else if m.link.Associated() {
			return nil
		}

		m.logger.Debug().Dur("delay", delay).Msg("Waiting for network")
		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return err
			}
			return ErrAssociateTimeout
		case <-time.After(delay):
		}

		delay *= 2
		if delay > m.maxReconnectInterval {
			delay = m.maxReconnectInterval
		}
	}
}

// handshake dials the server once to check the pinned certificate
func (m *Manager) handshake(ctx context.Context) error {
	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}

	dialer := &tls.Dialer{Config: m.tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("tls dial %s: %w", m.addr, err)
	}
	return conn.Close()
}

func (m *Manager) release() error {
	m.transport.CloseIdleConnections()
	err := m.link.Release()

	m.stateMutex.Lock()
	wasAssociated := m.associated
	m.associated = false
	m.stateMutex.Unlock()

	if err != nil && wasAssociated {
		return err
	}
	return nil
}

// Disconnect closes pooled sessions and leaves the network. Idempotent.
func (m *Manager) Disconnect() error {
	m.logger.Info().Msg("Disconnecting")
	err := m.release()
	m.setState(StateDisconnected)
	return err
}
