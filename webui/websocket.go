package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketBroadcaster fans page and backend updates out to every
// connected dashboard.
//
// Each client gets its own buffered send channel drained by a write pump.
// A client whose buffer fills up is disconnected rather than slowing the
// others down.
type WebSocketBroadcaster struct {
	clients   map[*websocket.Conn]clientInfo
	clientsMu sync.RWMutex

	broadcast  chan WSMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	doneOnce   sync.Once

	upgrader       websocket.Upgrader
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendBuffer     int

	initial func() WSMessage
	logger  *zap.Logger
}

type clientInfo struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// BroadcasterConfig configures a WebSocketBroadcaster.
type BroadcasterConfig struct {
	// PingInterval is how often to ping clients (default: 30s)
	PingInterval time.Duration

	// PongWait is how long to wait for a pong (default: 60s)
	PongWait time.Duration

	// WriteWait bounds a single write (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize is the largest client message accepted (default: 512 bytes)
	MaxMessageSize int64

	BroadcastBufferSize  int
	ClientSendBufferSize int

	// InitialState builds the message sent to every new client (optional).
	InitialState func() WSMessage

	Logger *zap.Logger
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
	}
}

// NewWebSocketBroadcaster creates a broadcaster. Zero fields of config take
// their defaults. Call Start before accepting connections.
func NewWebSocketBroadcaster(config BroadcasterConfig) *WebSocketBroadcaster {
	def := DefaultBroadcasterConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = def.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = def.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = def.BroadcastBufferSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = def.ClientSendBufferSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &WebSocketBroadcaster{
		clients:        make(map[*websocket.Conn]clientInfo),
		broadcast:      make(chan WSMessage, config.BroadcastBufferSize),
		register:       make(chan *websocket.Conn),
		unregister:     make(chan *websocket.Conn),
		done:           make(chan struct{}),
		pingInterval:   config.PingInterval,
		pongWait:       config.PongWait,
		writeWait:      config.WriteWait,
		maxMessageSize: config.MaxMessageSize,
		sendBuffer:     config.ClientSendBufferSize,
		initial:        config.InitialState,
		logger:         config.Logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment; the dashboard is served by this process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the broadcast loop until ctx is cancelled, then disconnects
// every client.
func (b *WebSocketBroadcaster) Start(ctx context.Context) {
	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()
	defer b.doneOnce.Do(func() { close(b.done) })

	b.logger.Debug("broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.closeAllClients()
			b.logger.Debug("broadcaster stopped")
			return

		case conn := <-b.register:
			b.addClient(conn)

		case conn := <-b.unregister:
			b.removeClient(conn)

		case message := <-b.broadcast:
			b.broadcastToAll(message)

		case <-pingTicker.C:
			b.sendPingToAll()
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (b *WebSocketBroadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(b.pongWait))
		return nil
	})

	select {
	case b.register <- conn:
	case <-b.done:
		conn.Close()
		return
	}
	go b.readPump(conn)
}

// BroadcastMessage queues msg for every client without blocking. When the
// queue is full the message is dropped.
func (b *WebSocketBroadcaster) BroadcastMessage(msg WSMessage) {
	select {
	case b.broadcast <- msg:
	default:
		b.logger.Warn("broadcast buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// ClientCount returns the number of connected clients.
func (b *WebSocketBroadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

func (b *WebSocketBroadcaster) addClient(conn *websocket.Conn) {
	info := clientInfo{
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, b.sendBuffer),
	}

	if b.initial != nil {
		if data, err := json.Marshal(b.initial()); err == nil {
			info.send <- data
		} else {
			b.logger.Error("failed to marshal initial state", zap.Error(err))
		}
	}

	b.clientsMu.Lock()
	b.clients[conn] = info
	total := len(b.clients)
	b.clientsMu.Unlock()

	go b.writePump(conn, info.send)
	b.logger.Debug("client connected",
		zap.String("remote_addr", info.remoteAddr),
		zap.Int("clients", total))
}

func (b *WebSocketBroadcaster) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	info, ok := b.clients[conn]
	if !ok {
		return
	}
	close(info.send)
	delete(b.clients, conn)
	conn.Close()
	b.logger.Debug("client disconnected",
		zap.String("remote_addr", info.remoteAddr),
		zap.Duration("connected_for", time.Since(info.connectedAt)),
		zap.Int("clients", len(b.clients)))
}

func (b *WebSocketBroadcaster) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal broadcast message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		select {
		case info.send <- data:
		default:
			b.logger.Warn("client send buffer full, closing", zap.String("remote_addr", info.remoteAddr))
			go b.requestUnregister(conn)
		}
	}
}

func (b *WebSocketBroadcaster) sendPingToAll() {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		deadline := time.Now().Add(b.writeWait)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			b.logger.Debug("ping failed", zap.String("remote_addr", info.remoteAddr), zap.Error(err))
			go b.requestUnregister(conn)
		}
	}
}

func (b *WebSocketBroadcaster) requestUnregister(conn *websocket.Conn) {
	select {
	case b.unregister <- conn:
	case <-b.done:
	}
}

func (b *WebSocketBroadcaster) closeAllClients() {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for conn, info := range b.clients {
		close(info.send)
		conn.Close()
		delete(b.clients, conn)
	}
}

// readPump only keeps the read deadline moving; clients send nothing.
func (b *WebSocketBroadcaster) readPump(conn *websocket.Conn) {
	defer b.requestUnregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (b *WebSocketBroadcaster) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			b.logger.Debug("write failed", zap.Error(err))
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}
