package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	mu      sync.RWMutex
	subs    map[string]bool
	markets map[int64]bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[string]bool, len(Channels)),
		markets: make(map[int64]bool),
	}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	return c
}

// close ends the write loop, which sends a close frame. Callers hold the
// hub lock so no delivery races with it.
func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func (c *client) queue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) wants(channel string, marketID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel] && (len(c.markets) == 0 || c.markets[marketID])
}

func (c *client) apply(msg subscribeMsg) {
	var on bool
	switch msg.Action {
	case "subscribe":
		on = true
	case "unsubscribe":
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		if on {
			c.subs[ch] = true
		} else {
			delete(c.subs, ch)
		}
	}
	for _, id := range msg.Markets {
		if on {
			c.markets[id] = true
		} else {
			delete(c.markets, id)
		}
	}
}

// readLoop applies subscription changes until the peer goes away or stops
// answering pings.
func (c *client) readLoop(logger *slog.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if err := json.Unmarshal(raw, &msg); err == nil {
			c.apply(msg)
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
