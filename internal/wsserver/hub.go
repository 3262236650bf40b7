package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline       = 5 * time.Second
	readDeadline        = 90 * time.Second
	defaultPingInterval = 30 * time.Second
	// Client messages are tiny action objects.
	maxReadMessageSize = 4 * 1024
)

var wsUpgrader = websocket.Upgrader{
	// The server binds to loopback; the overlay may be a file:// page with a
	// null origin.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// HubOptions configures the overlay server.
type HubOptions struct {
	// Addr is the listen address. "127.0.0.1:0" picks a free port.
	Addr string
	// Bootstrap returns the messages a client needs to draw from scratch:
	// layout, then state. It runs on connect and on "ready" with the hub's
	// write lock held, so it must not block on anything that calls Send.
	Bootstrap func() []Message
	// Status returns the payload of a "status" reply. May be nil.
	Status       func() any
	PingInterval time.Duration
}

// Hub serves one overlay connection at a time. A new connection replaces the
// old one so an overlay reload never needs a daemon restart.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// mu protects conn. writeMu serializes writes, which gorilla/websocket does
// not allow concurrently, and keeps seq in write order.
//
// Any write failure drops the client; it has to reconnect.
type Hub struct {
	opts HubOptions

	mu     sync.RWMutex
	conn   *websocket.Conn
	connID string

	writeMu sync.Mutex
	seq     atomic.Uint64

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &Hub{opts: opts}
}

// Start listens and serves in the background. ctx becomes the base context of
// request handlers; Stop shuts the server down.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln
	h.url = fmt.Sprintf("ws://%s/ws", ln.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[ERROR-WS] server error", "error", serveErr)
		}
	}()
	slog.Info("[DEBUG-WS] overlay server started", "url", h.url)
	return nil
}

// Stop closes the client and shuts the server down. Idempotent.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.connID = ""
		h.mu.Unlock()
		if conn != nil {
			h.closeConn(conn, "hub stop")
		}
		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
		slog.Info("[DEBUG-WS] overlay server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL, empty before Start.
func (h *Hub) URL() string {
	return h.url
}

// Addr returns the bound address, nil before Start.
func (h *Hub) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Send writes msg to the connected client, if any, stamping the next seq.
func (h *Hub) Send(msg Message) {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil {
		return
	}
	h.writeMu.Lock()
	err := h.writeLocked(conn, msg)
	h.writeMu.Unlock()
	if err != nil {
		h.dropConn(conn, "send", err)
	}
}

// writeLocked must be called with writeMu held.
func (h *Hub) writeLocked(conn *websocket.Conn, msg Message) error {
	msg.Seq = h.seq.Add(1)
	payload, err := json.Marshal(msg)
	if err != nil {
		// A marshal error is a bug in the message, not a dead client.
		slog.Debug("[DEBUG-WS] marshal failed", "type", msg.Type, "error", err)
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	err = conn.WriteMessage(websocket.TextMessage, payload)
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil && err == nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed", "error", clearErr)
	}
	return err
}

// attach makes conn the active client and writes its bootstrap in one hold
// of writeMu. A Send that sees conn waits for writeMu, so the bootstrap is
// always the first thing the client reads.
func (h *Hub) attach(conn *websocket.Conn, id string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.connID = id
	h.mu.Unlock()
	if old != nil {
		h.closeConn(old, "replaced by new connection")
	}
	return h.writeBootstrapLocked(conn)
}

func (h *Hub) sendBootstrap(conn *websocket.Conn) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.writeBootstrapLocked(conn)
}

// writeBootstrapLocked must be called with writeMu held.
func (h *Hub) writeBootstrapLocked(conn *websocket.Conn) error {
	if h.opts.Bootstrap == nil {
		return nil
	}
	for _, msg := range h.opts.Bootstrap() {
		if err := h.writeLocked(conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) sendTo(conn *websocket.Conn, msg Message) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.writeLocked(conn, msg)
}

// clearIfCurrent forgets conn if it is still the active connection.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn {
		return false
	}
	h.conn = nil
	h.connID = ""
	return true
}

func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if err := conn.Close(); err != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", err)
	}
}

func (h *Hub) dropConn(conn *websocket.Conn, reason string, err error) {
	slog.Debug("[DEBUG-WS] write failed, dropping client", "reason", reason, "error", err)
	h.clearIfCurrent(conn)
	h.closeConn(conn, reason)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("[DEBUG-WS] upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		h.closeConn(conn, "initial read deadline")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	id := uuid.NewString()
	pingDone := make(chan struct{})
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[ERROR-WS] connection handler recovered from panic",
				"conn", id,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read loop exit")
		slog.Info("[DEBUG-WS] overlay disconnected", "conn", id)
	}()

	if err := h.attach(conn, id); err != nil {
		slog.Debug("[DEBUG-WS] bootstrap failed", "conn", id, "error", err)
		return
	}
	slog.Info("[DEBUG-WS] overlay connected", "conn", id, "remoteAddr", conn.RemoteAddr())
	go h.pingLoop(conn, pingDone)

	for {
		msgType, raw, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[DEBUG-WS] read error", "conn", id, "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := h.handleClientMessage(conn, raw); err != nil {
			slog.Debug("[DEBUG-WS] reply failed", "conn", id, "error", err)
			return
		}
	}
}

func (h *Hub) handleClientMessage(conn *websocket.Conn, raw []byte) error {
	var msg clientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return h.sendTo(conn, Message{Type: TypeError, Error: fmt.Sprintf("invalid JSON: %s", err)})
	}
	switch msg.Action {
	case actionReady:
		return h.sendBootstrap(conn)
	case actionStatus:
		var status any
		if h.opts.Status != nil {
			status = h.opts.Status()
		}
		payload, err := json.Marshal(status)
		if err != nil {
			return h.sendTo(conn, Message{Type: TypeError, Error: fmt.Sprintf("status: %s", err)})
		}
		return h.sendTo(conn, Message{Type: TypeStatus, Status: payload})
	default:
		return h.sendTo(conn, Message{Type: TypeError, Error: fmt.Sprintf("unknown action %q", msg.Action)})
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[ERROR-WS] ping loop recovered from panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "ping loop panic")
		}
	}()

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			h.writeMu.Unlock()
			if err != nil {
				h.dropConn(conn, "ping", err)
				return
			}
		}
	}
}

// ConnectionID returns the id of the active client, empty when none.
func (h *Hub) ConnectionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connID
}
