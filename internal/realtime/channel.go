package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Channel maintains a single authenticated websocket connection to the
// backend event stream. At most one live connection exists per Channel;
// Connect on an already-connected channel is a no-op. Transport-level
// disconnects trigger automatic reconnection with a bounded number of
// attempts and a fixed delay, re-joining previously joined rooms.
type Channel struct {
	endpoint          string
	reconnectAttempts int
	reconnectDelay    time.Duration
	logger            *zap.Logger

	// writeMu serializes writes; gorilla connections allow only one
	// concurrent writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	token    string
	rooms    map[string]bool
	handlers map[string]Handler
	closing  bool

	// gen identifies the connection each readPump/reconnect loop belongs
	// to. Disconnect and Connect both advance it, so a loop left over from
	// a superseded connection aborts instead of dialing again.
	gen uint64
}

// NewChannel creates a channel for the given websocket endpoint.
func NewChannel(endpoint string, reconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *Channel {
	return &Channel{
		endpoint:          endpoint,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
		logger:            logger,
		rooms:             make(map[string]bool),
		handlers:          make(map[string]Handler),
	}
}

// Connect establishes the connection authenticated with token and starts
// the read pump. If a connection is already live it is kept and Connect
// returns nil regardless of the token supplied.
func (c *Channel) Connect(token string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.token = token
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(token)
	if err != nil {
		c.dispatch(EventConnectError, nil)
		return fmt.Errorf("connecting realtime channel: %w", err)
	}

	c.mu.Lock()
	if c.closing || c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("Realtime channel connected")
	c.dispatch(EventConnect, nil)

	go c.readPump(conn, gen)
	return nil
}

// Connected reports whether a live connection exists.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect tears down the connection and clears room membership so a
// future Connect dials afresh. In-flight reads terminate without
// reconnecting.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.rooms = make(map[string]bool)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// On registers the handler for an event name, replacing any previous one.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for an event name.
func (c *Channel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// JoinRoom subscribes the connection to a room. Membership is remembered
// and re-established after a reconnect. Best effort: send failures are
// logged, not returned.
func (c *Channel) JoinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := c.send(conn, eventRoomJoin, roomPayload{Room: room}); err != nil {
		c.logger.Warn("Failed to join room", zap.String("room", room), zap.Error(err))
	}
}

// LeaveRoom unsubscribes the connection from a room.
func (c *Channel) LeaveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := c.send(conn, eventRoomLeave, roomPayload{Room: room}); err != nil {
		c.logger.Warn("Failed to leave room", zap.String("room", room), zap.Error(err))
	}
}

// Emit sends a client-originated event with the given payload.
func (c *Channel) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("emitting %s: channel not connected", event)
	}
	return c.send(conn, event, payload)
}

// dial opens the websocket, passing the token both as a query parameter
// and an Authorization header.
func (c *Channel) dial(token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// send marshals and writes a frame.
func (c *Channel) send(conn *websocket.Conn, event string, payload interface{}) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling %s payload: %w", event, err)
		}
		data = raw
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame{Event: event, Data: data})
}

// readPump reads frames until the connection drops, then attempts to
// reconnect. It exits when the channel is being closed, its connection
// generation is superseded, or reconnection attempts are exhausted.
func (c *Channel) readPump(conn *websocket.Conn, gen uint64) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			closing := c.closing
			stale := c.gen != gen
			c.mu.Unlock()

			if closing {
				c.dispatch(EventDisconnect, nil)
				return
			}
			if stale {
				return
			}

			c.logger.Warn("Realtime channel dropped", zap.Error(err))
			c.dispatch(EventDisconnect, nil)

			next := c.reconnect(gen)
			if next == nil {
				return
			}
			conn = next
			continue
		}

		if f.Event == "" {
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

// reconnect retries the dial up to the configured attempt count with a
// fixed delay, restoring room membership on success. Returns nil when the
// channel is closing, the generation is superseded, or attempts are
// exhausted.
func (c *Channel) reconnect(gen uint64) *websocket.Conn {
	c.mu.Lock()
	token := c.token
	if c.gen == gen {
		c.conn = nil
	}
	c.mu.Unlock()

	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		time.Sleep(c.reconnectDelay)

		c.mu.Lock()
		if c.closing || c.gen != gen {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		conn, err := c.dial(token)
		if err != nil {
			c.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.closing || c.gen != gen {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.mu.Unlock()

		for _, room := range rooms {
			if err := c.send(conn, eventRoomJoin, roomPayload{Room: room}); err != nil {
				c.logger.Warn("Failed to rejoin room after reconnect",
					zap.String("room", room), zap.Error(err))
			}
		}

		c.logger.Info("Realtime channel reconnected", zap.Int("attempt", attempt))
		c.dispatch(EventConnect, nil)
		return conn
	}

	c.mu.Lock()
	stale := c.closing || c.gen != gen
	c.mu.Unlock()
	if !stale {
		c.logger.Error("Realtime reconnection attempts exhausted",
			zap.Int("attempts", c.reconnectAttempts))
		c.dispatch(EventConnectError, nil)
	}
	return nil
}

// dispatch invokes the registered handler for an event, if any. The
// handler runs outside the channel lock.
func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	h := c.handlers[event]
	c.mu.Unlock()

	if h != nil {
		h(data)
	}
}
