// Package connection manages the lifetime of chat transport connections on
// behalf of the UI shell. It multiplexes any number of named connections,
// each bound to one account JID, and reports lifecycle state and received
// stanzas to a caller-supplied sink. Stanza contents are opaque strings here;
// protocol semantics belong to the external core library.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley-core/pkg/account"
)

// DefaultReadTimeout bounds the wait for the next inbound frame. The
// transport performs no keep-alives of its own, so this should comfortably
// exceed the client's ping interval.
const DefaultReadTimeout = 300000 * time.Millisecond

// outboundBuffer is the per-connection send queue depth.
const outboundBuffer = 64

// State describes a connection lifecycle transition reported to the sink.
type State string

const (
	StateConnected             State = "connected"
	StateDisconnected          State = "disconnected"
	StateAuthenticationFailure State = "authentication-failure"
	StateConnectionError       State = "connection-error"
	StateConnectionTimeout     State = "connection-timeout"
)

// Sink receives connection events. Implementations must not block; calls are
// made from connection goroutines.
type Sink interface {
	ConnectionState(id string, state State)
	ConnectionReceive(id string, stanza string)
}

var (
	// ErrInvalidJID is returned when the connect address cannot be parsed.
	ErrInvalidJID = account.ErrInvalidJID
	// ErrConnectionExists is returned when the connection identifier is taken.
	ErrConnectionExists = errors.New("connection identifier already exists")
	// ErrAnotherConnectionBound is returned when another live connection is
	// already bound to the same bare JID.
	ErrAnotherConnectionBound = errors.New("another connection is bound on the JID")
	// ErrConnectionNotFound is returned for operations on unknown identifiers.
	ErrConnectionNotFound = errors.New("connection does not exist")
	// ErrCannotWrite is returned when a stanza cannot be handed to the
	// connection's writer.
	ErrCannotWrite = errors.New("failure to write on sender")
)

// Manager owns the registry of named connections. Connections are single-use:
// once one terminates, for any reason, the caller destroys it and connects
// again under a fresh identifier.
type Manager struct {
	logger *slog.Logger
	sink   Sink
	dialer *websocket.Dialer

	mu    sync.RWMutex
	conns map[string]*client
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer, mainly for tests.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) {
		m.dialer = dialer
	}
}

// NewManager builds a Manager that reports events to sink.
func NewManager(logger *slog.Logger, sink Sink, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		logger: logger,
		sink:   sink,
		dialer: websocket.DefaultDialer,
		conns:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConnectOption customizes a single connection.
type ConnectOption func(*connectConfig)

type connectConfig struct {
	readTimeout time.Duration
}

// WithReadTimeout overrides the inbound frame timeout for one connection.
func WithReadTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) {
		c.readTimeout = timeout
	}
}

// Connect opens a connection identified by id for the given account address
// against a websocket endpoint, and starts its read and write pumps. The
// identifier must be unused and no live connection may already be bound to
// the same bare JID.
func (m *Manager) Connect(ctx context.Context, id, address, endpoint string, opts ...ConnectOption) error {
	m.logger.Info("Connection connect requested", "id", id, "jid", address)

	cfg := connectConfig{readTimeout: DefaultReadTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	jid, err := account.ParseJID(address)
	if err != nil {
		return err
	}

	if err := m.checkGuards(id, jid); err != nil {
		return err
	}

	ws, _, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	c := newClient(id, jid, ws, cfg.readTimeout)

	// The guards ran before the dial, which happens outside the lock; another
	// caller may have raced us here, so re-check before inserting.
	m.mu.Lock()
	if err := m.checkGuardsLocked(id, jid); err != nil {
		m.mu.Unlock()
		c.kill()
		return err
	}
	m.conns[id] = c
	total := len(m.conns)
	m.mu.Unlock()

	m.startPumps(c)
	m.sink.ConnectionState(id, StateConnected)

	m.logger.Info("Connection connect request complete", "id", id, "connections", total)
	return nil
}

func (m *Manager) checkGuards(id string, jid account.JID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkGuardsLocked(id, jid)
}

func (m *Manager) checkGuardsLocked(id string, jid account.JID) error {
	if _, exists := m.conns[id]; exists {
		return ErrConnectionExists
	}

	// Reject a second parallel connection on the same bare JID. This
	// prevents manager mis-uses where the implementor client requests
	// multiple connections for one account.
	for otherID, other := range m.conns {
		if other.jid.Bare() == jid.Bare() {
			m.logger.Error("Connection connect request conflicts with existing connection",
				"id", id, "conflict", otherID)
			return ErrAnotherConnectionBound
		}
	}

	return nil
}

// Send enqueues a stanza on the connection's writer. A dead or saturated
// writer yields ErrCannotWrite after triggering the recovery path.
func (m *Manager) Send(id, stanza string) error {
	m.logger.Debug("Connection send requested", "id", id)

	c := m.lookup(id)
	if c == nil {
		m.logger.Error("Connection send request failed, connection does not exist", "id", id)
		return ErrConnectionNotFound
	}

	if c.killed() {
		// Pumps are gone; raise an implicit disconnected so the implementor
		// destroys the client.
		m.logger.Info("Recovering: raising an implicit disconnected event", "id", id)
		m.emitAbort(id, StateConnectionError)
		return ErrCannotWrite
	}

	select {
	case c.outbound <- stanza:
		m.logger.Debug("Connection send request complete", "id", id)
		return nil
	default:
		m.logger.Error("Connection send request failed, writer saturated", "id", id)
		return ErrCannotWrite
	}
}

// Disconnect requests a clean close and immediately reports the connection
// as disconnected, without waiting for the server's close acknowledgement
// (which may never arrive after network issues).
func (m *Manager) Disconnect(id string) error {
	m.logger.Info("Connection disconnect requested", "id", id)

	c := m.lookup(id)
	if c == nil {
		m.logger.Error("Connection disconnect request failed, connection does not exist", "id", id)
		return ErrConnectionNotFound
	}

	if c.killed() {
		m.logger.Info("Recovering: raising an implicit disconnected event", "id", id)
		m.emitAbort(id, StateConnectionError)
		return ErrCannotWrite
	}

	// Ask the peer for a clean close, then stop the pumps so no further
	// events get emitted for this connection. The disconnected state is
	// reported immediately: waiting for the server's acknowledgement could
	// mean waiting for a TCP timeout after network issues.
	_ = c.closeGracefully()
	c.kill()

	m.sink.ConnectionState(id, StateDisconnected)
	m.logger.Info("Connection disconnect request complete", "id", id)
	return nil
}

// Destroy removes the connection from the registry and stops any remaining
// background work. It does not perform a clean close; callers invoke it after
// a disconnected state event, purely for garbage collection. Destroying an
// unknown identifier is not an error.
func (m *Manager) Destroy(id string) {
	m.logger.Info("Connection destroy requested", "id", id)

	m.mu.Lock()
	c, exists := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()

	if !exists {
		m.logger.Warn("Connection destroy request complete, but was already destroyed", "id", id)
		return
	}

	c.kill()
	m.logger.Info("Connection destroy request complete", "id", id)
}

func (m *Manager) lookup(id string) *client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[id]
}

// emitAbort reports an abnormal terminal state, always followed by an
// explicit disconnected event so the implementor knows the connection is
// gone, whether or not an error caused it. The disconnected state is not
// emitted twice in a row.
func (m *Manager) emitAbort(id string, state State) {
	m.sink.ConnectionState(id, state)

	if state != StateDisconnected {
		m.sink.ConnectionState(id, StateDisconnected)
	}
}
