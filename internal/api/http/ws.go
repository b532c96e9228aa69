package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"moviesearch/internal/metrics"
	"moviesearch/internal/session"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 4096
	wsSendBuffer     = 64
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// clientMessage is one event sent by the browser. Only the fields relevant
// to Type are set.
type clientMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Key       string `json:"key,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Direction string `json:"direction,omitempty"`
	Item      string `json:"item,omitempty"`
}

var errUnknownMessage = errors.New("unknown message type")

func decodeClientMessage(data []byte) (session.Event, error) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "input":
		return session.Input{Text: msg.Text}, nil
	case "key":
		if msg.Key == "" {
			return nil, errors.New("key message without key")
		}
		return session.Key{Name: msg.Key}, nil
	case "submit":
		return session.Submit{}, nil
	case "pick":
		if msg.Index == nil {
			return nil, errors.New("pick message without index")
		}
		return session.Pick{Index: *msg.Index}, nil
	case "page":
		switch strings.ToLower(msg.Direction) {
		case "next":
			return session.NextPage{}, nil
		case "prev", "previous":
			return session.PrevPage{}, nil
		default:
			return nil, fmt.Errorf("invalid page direction %q", msg.Direction)
		}
	case "open":
		if msg.Item == "" {
			return nil, errors.New("open message without item")
		}
		return session.OpenDetail{Key: msg.Item}, nil
	case "close":
		return session.CloseDetail{}, nil
	case "reset":
		return session.Reset{}, nil
	case "focus":
		return session.Focus{}, nil
	case "blur":
		return session.Blur{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, msg.Type)
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := allowed[strings.ToLower(parsed.Scheme+"://"+parsed.Host)]
		return ok
	}
}

type wsClient struct {
	id      string
	hub     *wsHub
	conn    *websocket.Conn
	session *session.Session
	logger  *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue hands a message to the write pump without blocking. A client that
// cannot keep up is disconnected.
func (c *wsClient) enqueue(msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		c.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("ws client too slow, disconnecting")
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) render(view session.View) {
	c.enqueue("view", view)
}

// Refresh asks the browser to reload the page.
func (c *wsClient) Refresh() {
	c.enqueue("navigate", map[string]string{"action": "refresh"})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.session.Close()
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		ev, err := decodeClientMessage(data)
		if err != nil {
			c.logger.Debug("ws message ignored", slog.String("error", err.Error()))
			c.enqueue("error", map[string]string{"message": err.Error()})
			continue
		}
		if !c.session.Post(ev) {
			return
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.NewString()
	logger := s.logger.With(slog.String("session", id))
	client := &wsClient{
		id:     id,
		hub:    s.hub,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, wsSendBuffer),
	}
	opts := append([]session.Option{}, s.sessionOpts...)
	opts = append(opts,
		session.WithID(id),
		session.WithLogger(s.logger),
		session.WithImages(s.catalog),
		session.WithNavigator(client),
		session.WithRenderer(client.render),
	)
	client.session = session.New(s.catalog, opts...)

	if !s.hub.add(client) {
		client.session.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.writePump()
	go func() {
		if err := client.session.Run(s.sessionsCtx); err != nil {
			logger.Debug("session loop stopped", slog.String("error", err.Error()))
		}
		// The loop only ends on shutdown or disconnect; make sure the socket follows.
		client.closeSend()
	}()
	go client.readPump()
}

// wsHub tracks live sessions so shutdown can disconnect them.
type wsHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  sync.Once
	count      atomic.Int64
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				client.closeSend()
				delete(h.clients, client)
			}
			h.count.Store(0)
			metrics.ActiveSessions.Set(0)
			h.logger.Debug("ws hub stopped, all sessions disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			metrics.ActiveSessions.Set(float64(len(h.clients)))
			h.logger.Debug("ws session connected", slog.String("session", client.id), slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				h.count.Store(int64(len(h.clients)))
				metrics.ActiveSessions.Set(float64(len(h.clients)))
				h.logger.Debug("ws session disconnected", slog.String("session", client.id), slog.Int("total", len(h.clients)))
			}
		}
	}
}

// add registers client. It reports false once the hub is closed.
func (h *wsHub) add(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *wsHub) remove(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *wsHub) clientCount() int {
	return int(h.count.Load())
}
