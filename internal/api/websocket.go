package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/stripgate/internal/infrastructure/config"
	"github.com/nerrad567/stripgate/internal/infrastructure/logging"
	"github.com/nerrad567/stripgate/internal/power"
)

// Channel names one of the outlet event streams.
type Channel string

// Outlet event channels.
const (
	ChannelStateChanged  Channel = "outlet.state_changed"
	ChannelCommandFailed Channel = "outlet.command_failed"
)

var allChannels = []Channel{ChannelStateChanged, ChannelCommandFailed}

func (c Channel) valid() bool {
	return c == ChannelStateChanged || c == ChannelCommandFailed
}

// Frame types. Clients send subscribe, unsubscribe and ping; the hub sends
// the rest.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"

	frameEvent        = "event"
	frameSubscription = "subscription"
	framePong         = "pong"
	frameError        = "error"
)

// wsSendBufferSize is the per-client outbound frame buffer.
const wsSendBufferSize = 64

// OutletEvent is the payload of both outlet channels.
type OutletEvent struct {
	IP         string      `json:"ip"`
	Alias      string      `json:"alias,omitempty"`
	PlugNumber int         `json:"plug_number"`
	State      power.State `json:"state"`
	Source     string      `json:"source,omitempty"`
	Attempts   int         `json:"attempts"`
	Error      string      `json:"error,omitempty"`
	At         time.Time   `json:"at"`
}

func outletEvent(ev power.Event) OutletEvent {
	out := OutletEvent{
		IP:         ev.Command.Address,
		Alias:      ev.Result.Alias,
		PlugNumber: ev.Command.Outlet,
		State:      ev.Command.State,
		Source:     ev.Command.Source,
		Attempts:   ev.Attempts,
		At:         ev.At.UTC(),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// ClientFrame is a frame sent by a client.
//
// subscribe adds Channels (both when empty) and, when Addresses is set,
// replaces the strip filter. unsubscribe removes Channels (both when empty).
type ClientFrame struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channels  []Channel `json:"channels,omitempty"`
	Addresses []string  `json:"addresses,omitempty"`
}

// ServerFrame is a frame sent by the hub. ID echoes the client frame it
// answers.
type ServerFrame struct {
	Type      string       `json:"type"`
	ID        string       `json:"id,omitempty"`
	Channel   Channel      `json:"channel,omitempty"`
	Event     *OutletEvent `json:"event,omitempty"`
	Channels  []Channel    `json:"channels,omitempty"`
	Addresses []string     `json:"addresses,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// subscription is what one client wants to receive. An empty address set
// means every strip.
type subscription struct {
	channels  map[Channel]struct{}
	addresses map[string]struct{}
}

func (s *subscription) add(channels []Channel, addresses []string) {
	if len(channels) == 0 {
		channels = allChannels
	}
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}
	if len(addresses) > 0 {
		s.addresses = make(map[string]struct{}, len(addresses))
		for _, a := range addresses {
			s.addresses[a] = struct{}{}
		}
	}
}

func (s *subscription) remove(channels []Channel) {
	if len(channels) == 0 {
		channels = allChannels
	}
	for _, ch := range channels {
		delete(s.channels, ch)
	}
}

func (s *subscription) matches(ch Channel, address string) bool {
	if _, ok := s.channels[ch]; !ok {
		return false
	}
	if len(s.addresses) == 0 {
		return true
	}
	_, ok := s.addresses[address]
	return ok
}

// Hub fans outlet events out to WebSocket clients. It implements
// power.Observer and power.FailureObserver.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu  sync.Mutex
	sub subscription
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		sub:  subscription{channels: make(map[Channel]struct{})},
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Clients must present the API key; origin is not checked.
		return true
	},
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// OutletChanged implements power.Observer. It never blocks on slow clients.
func (h *Hub) OutletChanged(_ context.Context, ev power.Event) error {
	h.publish(ChannelStateChanged, outletEvent(ev))
	return nil
}

// OutletFailed implements power.FailureObserver.
func (h *Hub) OutletFailed(_ context.Context, ev power.Event) error {
	h.publish(ChannelCommandFailed, outletEvent(ev))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes c. Only the call that removes it closes c.send, so a
// shutdown racing a disconnect cannot close it twice.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// publish encodes ev once and queues it for every client whose
// subscription matches the channel and the event's strip.
func (h *Hub) publish(ch Channel, ev OutletEvent) {
	data, err := json.Marshal(ServerFrame{
		Type:      frameEvent,
		Channel:   ch,
		Event:     &ev,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("encoding outlet event failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.wants(ch, ev.IP) {
			c.queue(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("outlet event sent", "channel", ch, "address", ev.IP, "recipients", sent)
	}
}

// handleWebSocket upgrades an authenticated request to a WebSocket.
//
// The API key may be sent as the X-Api-Key header or, for browsers that
// cannot set headers on an upgrade, as the api_key query parameter. The
// optional channel and address query parameters (repeatable) subscribe the
// client straight away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := r.Header.Get(headerAPIKey)
	if key == "" {
		key = q.Get("api_key")
	}
	if !s.validAPIKey(key) {
		writeUnauthorized(w)
		return
	}

	channels, err := parseChannels(q["channel"])
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	if len(channels) > 0 || len(q["address"]) > 0 {
		c.sub.add(channels, q["address"])
	}
	s.hub.register(c)

	go c.writeLoop()
	go c.readLoop()
}

func parseChannels(names []string) ([]Channel, error) {
	channels := make([]Channel, 0, len(names))
	for _, n := range names {
		ch := Channel(n)
		if !ch.valid() {
			return nil, fmt.Errorf("unknown channel %q", n)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// keepalive returns how long the connection may stay silent before it is
// considered dead.
func keepalive(cfg config.WebSocketConfig) time.Duration {
	return time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
}

func (c *wsClient) readLoop() {
	cfg := c.hub.cfg
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(keepalive(cfg)))
	}
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts as alive.
		extend() //nolint:errcheck // as above
		c.handleFrame(data)
	}
}

func (c *wsClient) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error is checked
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleFrame(data []byte) {
	var in ClientFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(ServerFrame{Type: frameError, Error: "invalid JSON frame"})
		return
	}

	switch in.Type {
	case frameSubscribe, frameUnsubscribe:
		for _, ch := range in.Channels {
			if !ch.valid() {
				c.reply(ServerFrame{Type: frameError, ID: in.ID, Error: fmt.Sprintf("unknown channel %q", ch)})
				return
			}
		}
		c.mu.Lock()
		if in.Type == frameSubscribe {
			c.sub.add(in.Channels, in.Addresses)
		} else {
			c.sub.remove(in.Channels)
		}
		channels, addresses := c.snapshot()
		c.mu.Unlock()

		c.reply(ServerFrame{Type: frameSubscription, ID: in.ID, Channels: channels, Addresses: addresses})
	case framePing:
		c.reply(ServerFrame{Type: framePong, ID: in.ID})
	default:
		c.reply(ServerFrame{Type: frameError, ID: in.ID, Error: "unknown frame type: " + in.Type})
	}
}

// snapshot lists the current subscription in a stable order. c.mu must be
// held.
func (c *wsClient) snapshot() ([]Channel, []string) {
	var channels []Channel
	for _, ch := range allChannels {
		if _, ok := c.sub.channels[ch]; ok {
			channels = append(channels, ch)
		}
	}
	addresses := make([]string, 0, len(c.sub.addresses))
	for a := range c.sub.addresses {
		addresses = append(addresses, a)
	}
	slices.Sort(addresses)
	return channels, addresses
}

func (c *wsClient) wants(ch Channel, address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub.matches(ch, address)
}

func (c *wsClient) reply(f ServerFrame) {
	f.Timestamp = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.queue(data)
}

// queue drops data when the client is slow or already unregistered.
func (c *wsClient) queue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}
