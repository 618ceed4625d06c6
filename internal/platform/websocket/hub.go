// Package websocket fans realtime updates out to connected clients. Clients
// subscribe to topics such as chat:{channelId} or inbox:{userId}; each topic
// prefix has a TopicHandler that decides who may subscribe and what initial
// snapshot they receive.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrForbidden    = errors.New("not allowed to subscribe to topic")
)

// Event is one frame sent to a client.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewEvent encodes data into an Event for topic.
func NewEvent(eventType, topic string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Topic: topic, Timestamp: time.Now().UTC(), Data: raw}, nil
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// TopicHandler guards and seeds the topics under one prefix.
type TopicHandler interface {
	Authorize(ctx context.Context, s *auth.Session, topic string) error
	Snapshot(ctx context.Context, s *auth.Session, topic string) (Event, error)
}

type Client struct {
	ID      string
	Session *auth.Session
	Topics  []string
	Send    chan []byte
}

func NewClient(s *auth.Session) *Client {
	return &Client{
		ID:      uuid.NewString(),
		Session: s,
		Send:    make(chan []byte, 256),
	}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{} // topic -> set of clients
	all      map[*Client]struct{}
	handlers map[string]TopicHandler // prefix -> handler
	logger   zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*topicLock
}

type topicLock struct {
	mu   sync.Mutex
	refs int
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		handlers: make(map[string]TopicHandler),
		logger:   logger.With().Str("component", "websocket").Logger(),
		locks:    make(map[string]*topicLock),
	}
}

// lockTopic serializes snapshot reads and their delivery on one topic, so a
// subscriber never receives an older snapshot after a newer one.
func (h *Hub) lockTopic(topic string) func() {
	h.locksMu.Lock()
	l := h.locks[topic]
	if l == nil {
		l = &topicLock{}
		h.locks[topic] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, topic)
		}
		h.locksMu.Unlock()
	}
}

// Handle routes topics starting with prefix to th.
func (h *Hub) Handle(prefix string, th TopicHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[prefix] = th
}

func (h *Hub) handlerFor(topic string) TopicHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for prefix, th := range h.handlers {
		if strings.HasPrefix(topic, prefix) {
			return th
		}
	}
	return nil
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister removes the client everywhere and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe authorizes each topic, adds the client to it and queues the
// topic's current snapshot. Topics that fail are reported back to the client
// as error frames and skipped.
func (h *Hub) Subscribe(ctx context.Context, client *Client, topics []string) {
	for _, topic := range topics {
		th := h.handlerFor(topic)
		if th == nil {
			h.sendError(client, topic, ErrUnknownTopic)
			continue
		}
		if err := th.Authorize(ctx, client.Session, topic); err != nil {
			h.sendError(client, topic, err)
			continue
		}

		if !h.subscribe(ctx, client, topic, th) {
			return
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, client *Client, topic string, th TopicHandler) bool {
	unlock := h.lockTopic(topic)
	defer unlock()

	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return false
	}
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	if _, dup := h.clients[topic][client]; !dup {
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
	h.mu.Unlock()

	snap, err := th.Snapshot(ctx, client.Session, topic)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("snapshot failed")
		h.sendError(client, topic, err)
		return true
	}
	h.send(client, snap)
	return true
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(client, t)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) ProcessMessage(ctx context.Context, client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(ctx, client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	default:
		h.sendError(client, "", errors.New("unknown action "+msg.Action))
	}
}

// Broadcast sends event to every subscriber of topic. Slow clients whose
// buffers are full miss the frame; the next snapshot supersedes it.
func (h *Hub) Broadcast(topic string, event Event) {
	event.Topic = topic
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish loads the topic's current snapshot and broadcasts it. Nothing is
// loaded when the topic has no subscribers. Loads and deliveries on one topic
// never interleave, so the last frame a subscriber gets reflects the latest
// state.
func (h *Hub) Publish(ctx context.Context, topic string, load func(ctx context.Context) (Event, error)) error {
	unlock := h.lockTopic(topic)
	defer unlock()

	if h.TopicCount(topic) == 0 {
		return nil
	}
	evt, err := load(ctx)
	if err != nil {
		return err
	}
	h.Broadcast(topic, evt)
	return nil
}

func (h *Hub) send(client *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) sendError(client *Client, topic string, err error) {
	h.send(client, Event{Type: "error", Topic: topic, Timestamp: time.Now().UTC(), Error: err.Error()})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	sessionCheckPeriod = 15 * time.Second
)

// RevocationChecker reports whether a signed-out token id was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Handler upgrades authenticated requests to websocket connections. A
// connection is closed when its session expires or is signed out.
type Handler struct {
	hub          *Hub
	revocations  RevocationChecker
	sessionCheck time.Duration
	upgrader     gorillawebsocket.Upgrader
}

// NewHandler builds a Handler. An empty allowedOrigins accepts any origin;
// native mobile clients send none.
func NewHandler(hub *Hub, revocations RevocationChecker, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:          hub,
		revocations:  revocations,
		sessionCheck: sessionCheckPeriod,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

func (wsh *Handler) HandleConnect(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(s)
	wsh.hub.Register(client)

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(c.Request().Context())
	go wsh.writePump(ctx, client, ws)
	go wsh.readPump(ctx, client, ws)

	return nil
}

func (wsh *Handler) readPump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if client.Session.ExpiresAt.Before(time.Now()) {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(ctx, client, msg)
	}
}

// sessionValid reports whether the client's session is still live. A failed
// revocation lookup counts as invalid, like it does for plain requests.
func (wsh *Handler) sessionValid(ctx context.Context, s *auth.Session) bool {
	if !s.ExpiresAt.After(time.Now()) {
		return false
	}
	if wsh.revocations == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	revoked, err := wsh.revocations.IsRevoked(ctx, s.TokenID)
	if err != nil {
		wsh.hub.logger.Warn().Err(err).Str("token_id", s.TokenID).Msg("revocation lookup failed")
		return false
	}
	return !revoked
}

func (wsh *Handler) writePump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	check := time.NewTicker(wsh.sessionCheck)
	expiry := time.NewTimer(time.Until(client.Session.ExpiresAt))
	defer func() {
		ticker.Stop()
		check.Stop()
		expiry.Stop()
		ws.Close()
	}()

	endSession := func() {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(gorillawebsocket.CloseMessage,
			gorillawebsocket.FormatCloseMessage(gorillawebsocket.ClosePolicyViolation, "session ended"))
	}

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		case <-expiry.C:
			endSession()
			return
		case <-check.C:
			if !wsh.sessionValid(ctx, client.Session) {
				endSession()
				return
			}
		}
	}
}
