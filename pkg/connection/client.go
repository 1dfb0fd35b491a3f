package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/parley-im/parley-core/pkg/account"
)

// client is one live websocket connection with its read and write pumps.
type client struct {
	id          string
	jid         account.JID
	ws          *websocket.Conn
	readTimeout time.Duration

	outbound chan string

	ctx      context.Context
	cancel   context.CancelFunc
	killOnce sync.Once

	// done is closed once both pumps have exited.
	done chan struct{}
}

func newClient(id string, jid account.JID, ws *websocket.Conn, readTimeout time.Duration) *client {
	ctx, cancel := context.WithCancel(context.Background())

	return &client{
		id:          id,
		jid:         jid,
		ws:          ws,
		readTimeout: readTimeout,
		outbound:    make(chan string, outboundBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// kill stops both pumps and drops the underlying socket. Safe to call more
// than once and before the pumps have started.
func (c *client) kill() {
	c.killOnce.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

// killed reports whether the pumps are stopped or gone.
func (c *client) killed() bool {
	select {
	case <-c.done:
		return true
	default:
		return c.ctx.Err() != nil
	}
}

// closeGracefully asks the peer for a clean close. Best-effort; the manager
// does not wait for the acknowledgement.
func (c *client) closeGracefully() error {
	deadline := time.Now().Add(time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.ws.WriteControl(websocket.CloseMessage, message, deadline)
}

func (m *Manager) startPumps(c *client) {
	g, ctx := errgroup.WithContext(c.ctx)

	// ReadMessage blocks without honoring contexts; drop the socket when the
	// group winds down so the reader unblocks.
	context.AfterFunc(ctx, func() { c.ws.Close() })

	g.Go(func() error {
		return m.writePump(ctx, c)
	})
	g.Go(func() error {
		return m.readPump(ctx, c)
	})

	go func() {
		if err := g.Wait(); err != nil {
			m.logger.Warn("Connection pumps terminated with error", "id", c.id, "error", err)
		} else {
			m.logger.Info("Connection pumps stopped", "id", c.id)
		}
		close(c.done)
	}()
}

// writePump drains the outbound queue onto the socket until the connection
// winds down.
func (m *Manager) writePump(ctx context.Context, c *client) error {
	m.logger.Info("Connection write poller has started", "id", c.id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case stanza := <-c.outbound:
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(stanza)); err != nil {
				m.logger.Error("Failed sending stanza over connection", "id", c.id, "error", err)
				return fmt.Errorf("stanza send error: %w", err)
			}
			m.logger.Debug("Sent stanza over connection", "id", c.id)
		}
	}
}

// readPump forwards inbound frames to the sink. Every read is armed with a
// deadline; the underlying transport implements no timeout whatsoever, so a
// silent peer would otherwise hang the connection forever.
func (m *Manager) readPump(ctx context.Context, c *client) error {
	m.logger.Info("Connection read poller has started", "id", c.id, "timeout", c.readTimeout)

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			readErr := m.handleReadError(c, err)
			// The read side is finished either way; stop the write pump too
			// so the connection fully winds down without waiting for Destroy.
			c.kill()
			return readErr
		}

		m.logger.Debug("Received stanza on connection", "id", c.id)
		m.sink.ConnectionReceive(c.id, string(message))
	}
}

// handleReadError classifies a terminal read failure and emits the matching
// abort states. A read failing because the connection was killed on purpose
// emits nothing. The check is against the client's root context, not the
// pump group's: a sibling pump failure cancels the group and drops the
// socket, and that read failure must still surface as a connection error.
func (m *Manager) handleReadError(c *client, err error) error {
	if c.ctx.Err() != nil {
		return nil
	}

	switch {
	case isTimeout(err):
		m.logger.Warn("Timed out waiting for next frame", "id", c.id, "timeout", c.readTimeout)
		m.emitAbort(c.id, StateConnectionTimeout)
		return fmt.Errorf("read timeout: %w", err)

	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		m.logger.Info("Received close on connection", "id", c.id)
		m.emitAbort(c.id, StateDisconnected)
		return nil

	case websocket.IsCloseError(err, websocket.ClosePolicyViolation):
		m.logger.Warn("Connection closed by server with authentication failure", "id", c.id, "error", err)
		m.emitAbort(c.id, StateAuthenticationFailure)
		return fmt.Errorf("authentication error: %w", err)

	default:
		m.logger.Warn("Connection closed with error", "id", c.id, "error", err)
		m.emitAbort(c.id, StateConnectionError)
		return fmt.Errorf("connection error: %w", err)
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
