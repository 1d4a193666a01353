package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/dynasty/go/internal/draft/room"
	"github.com/rs/zerolog/log"
)

// Room is the part of room.Coordinator a connection talks to.
type Room interface {
	Handle(ctx context.Context, s room.Session, frame []byte)
	Leave(ctx context.Context, s room.Session)
}

// ConnectionManager manages WebSocket connections for draft rooms
type ConnectionManager struct {
	// Connection pools organized by draft ID
	draftConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents a WebSocket connection to a client. It implements
// room.Session.
type Connection struct {
	id      string
	draftID uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	room    Room
	manager *ConnectionManager

	done        chan struct{}
	closeOnce   sync.Once
	closeReason string

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		draftConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and attaches it to r.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, draftID uuid.UUID, rm Room) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		return nil, err
	}

	connection := &Connection{
		id:          uuid.New().String(),
		draftID:     draftID,
		conn:        conn,
		send:        make(chan []byte, cm.config.SendBufferSize),
		room:        rm,
		manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.id).
		Str("draft_id", draftID.String()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.draftConnections[conn.draftID] == nil {
		cm.draftConnections[conn.draftID] = make(map[*Connection]bool)
	}
	cm.draftConnections[conn.draftID][conn] = true

	log.Debug().
		Str("connection_id", conn.id).
		Str("draft_id", conn.draftID.String()).
		Int("total_connections", len(cm.draftConnections[conn.draftID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.draftConnections[conn.draftID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(cm.draftConnections, conn.draftID)
			}
			log.Info().
				Str("connection_id", conn.id).
				Str("draft_id", conn.draftID.String()).
				Str("reason", conn.reason()).
				Msg("connection unregistered")
		}
	}
}

// ConnectionStats is returned by the stats endpoint.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveDrafts     int            `json:"active_drafts"`
	DraftConnections map[string]int `json:"draft_connections"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{DraftConnections: make(map[string]int)}
	for draftID, connections := range cm.draftConnections {
		stats.TotalConnections += len(connections)
		stats.DraftConnections[draftID.String()] = len(connections)
	}
	stats.ActiveDrafts = len(cm.draftConnections)
	return stats
}

// CloseAll closes every connection, used on shutdown.
func (cm *ConnectionManager) CloseAll(reason string) {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.draftConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.Close(reason)
	}
}

// ID implements room.Session.
func (c *Connection) ID() string { return c.id }

// Send implements room.Session. It never blocks.
func (c *Connection) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close implements room.Session. The close frame carries reason.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Connection) reason() string {
	select {
	case <-c.done:
		return c.closeReason
	default:
		return ""
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				c.Close("write failed")
				return
			}

		case <-c.done:
			// flush what is already queued, then say goodbye
			for {
				select {
				case message := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
					if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason)
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.manager.config.WriteTimeout))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.Close("ping failed")
				return
			}
		}
	}
}

// readPump feeds client frames to the room until the connection drops.
func (c *Connection) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close("connection closed")
		c.room.Leave(context.Background(), c)
		c.manager.unregisterConnection(c)
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.room.Handle(ctx, c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
