// Package ws pushes live market events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/afrifutures/marketd/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Channels are the bus channels relayed to clients.
var Channels = []string{
	domain.ChannelMarketCreated,
	domain.ChannelStakePlaced,
	domain.ChannelMarketResolved,
	domain.ChannelPayoutClaimed,
	domain.ChannelOracleFailure,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscribeMsg is sent by clients to change what they receive.
//
//	{"action":"subscribe","channels":["market.stake"],"markets":[12]}
//
// A client starts on every channel and every market. Naming markets narrows
// it to those markets.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	Markets  []int64  `json:"markets"`
}

// Hub fans bus events out to connected websocket clients. Each bus channel
// has its own forwarding goroutine. A client that cannot keep up loses
// events rather than stalling the others.
type Hub struct {
	bus       domain.SignalBus
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub. mode is reported to clients in the hello frame.
func NewHub(bus domain.SignalBus, mode string, logger *slog.Logger) *Hub {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "unknown"
	}
	return &Hub{
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: time.Now().UTC(),
		clients:   make(map[*client]struct{}),
	}
}

// Run forwards bus events until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range Channels {
		events, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "bus subscribe failed", slog.String("channel", ch), slog.String("error", err.Error()))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.forward(ctx, ch, events)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
	clear(h.clients)
	h.mu.Unlock()
	return ctx.Err()
}

func (h *Hub) forward(ctx context.Context, channel string, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			h.deliver(channel, marketOf(data), data)
		}
	}
}

func marketOf(payload []byte) int64 {
	var ev struct {
		MarketID int64 `json:"market_id"`
	}
	_ = json.Unmarshal(payload, &ev)
	return ev.MarketID
}

func (h *Hub) deliver(channel string, marketID int64, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(channel, marketID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow client",
				slog.String("channel", channel),
				slog.Int64("market_id", marketID),
			)
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request and starts the client on every channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn)
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	c.queue(h.hello())

	go c.writeLoop()
	go func() {
		c.readLoop(h.logger)
		h.remove(c)
	}()
}

// hello lets clients mark the connection healthy before any market event
// arrives.
func (h *Hub) hello() []byte {
	msg, _ := json.Marshal(map[string]any{
		"type":           "hello",
		"mode":           h.mode,
		"channels":       Channels,
		"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
	})
	return msg
}
