package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"notification-sync-service/config"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/metrics"

	"github.com/gorilla/websocket"
)

const (
	// Valores por defecto cuando la configuración viene vacía
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
	defaultBufferSize     = 256
)

var (
	// ErrClientClosed indica que la sesión ya se dio de baja
	ErrClientClosed = errors.New("client send channel closed")
	// ErrSendBufferFull indica que el cliente no consume sus mensajes
	ErrSendBufferFull = errors.New("client send buffer full")
)

// clientSettings son los tiempos y límites de una conexión
type clientSettings struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	bufferSize     int
}

func newClientSettings(cfg config.WebSocketConfig) clientSettings {
	s := clientSettings{
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingInterval,
		maxMessageSize: cfg.MaxMessageSize,
		bufferSize:     cfg.MessageBufferSize,
	}
	if s.writeWait <= 0 {
		s.writeWait = defaultWriteWait
	}
	if s.pongWait <= 0 {
		s.pongWait = defaultPongWait
	}
	// El ping debe salir antes de que venza la espera del pong
	if s.pingPeriod <= 0 || s.pingPeriod >= s.pongWait {
		s.pingPeriod = (s.pongWait * 9) / 10
	}
	if s.maxMessageSize <= 0 {
		s.maxMessageSize = defaultMaxMessageSize
	}
	if s.bufferSize <= 0 {
		s.bufferSize = defaultBufferSize
	}
	return s
}

// ConnectionHandler define las operaciones para manejar eventos de conexión
type ConnectionHandler interface {
	OnConnect(client *Client)
	OnDisconnect(client *Client)
	OnMessage(client *Client, messageType int, message []byte)
	OnError(client *Client, err error)
}

// Client representa la conexión WebSocket de una sesión
type Client struct {
	hub               *Hub
	conn              *websocket.Conn
	send              chan []byte
	sendMutex         sync.Mutex
	sendClosed        bool
	session           usecase.SessionRef
	sessionID         string
	lastActivity      atomic.Int64
	settings          clientSettings
	connectionHandler ConnectionHandler
}

// NewClient crea un nuevo cliente WebSocket
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	session usecase.SessionRef,
	settings clientSettings,
	handler ConnectionHandler,
) *Client {
	c := &Client{
		hub:               hub,
		conn:              conn,
		send:              make(chan []byte, settings.bufferSize),
		session:           session,
		sessionID:         session.SessionID,
		settings:          settings,
		connectionHandler: handler,
	}
	c.UpdateLastActivity()
	return c
}

// readPump bombea mensajes desde la conexión WebSocket al manejador
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		if c.connectionHandler != nil {
			c.connectionHandler.OnDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(c.settings.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.UpdateLastActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.settings.pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				if c.connectionHandler != nil {
					c.connectionHandler.OnError(c, err)
				}
			}
			break
		}

		c.UpdateLastActivity()
		metrics.WebSocketMessageReceived()

		if c.connectionHandler != nil {
			c.connectionHandler.OnMessage(c, messageType, message)
		}
	}
}

// writePump bombea mensajes desde el hub a la conexión WebSocket.
// Cada actualización viaja en su propio frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if c.connectionHandler != nil {
		c.connectionHandler.OnConnect(c)
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.writeWait))
			if !ok {
				// El hub cerró el canal
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.WebSocketError("write")
				return
			}
			metrics.WebSocketMessageSent()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send encola un mensaje para el cliente sin bloquear
func (c *Client) Send(message []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if c.sendClosed {
		return ErrClientClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend cierra el canal de salida una sola vez
func (c *Client) closeSend() {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// Close cierra la conexión del cliente; readPump se encarga de la baja
func (c *Client) Close() {
	c.conn.Close()
}

// SessionID devuelve el identificador de la sesión
func (c *Client) SessionID() string {
	return c.sessionID
}

// IsActive verifica si el cliente está activo
func (c *Client) IsActive() bool {
	return time.Since(c.GetLastActivity()) <= c.settings.pongWait
}

// GetLastActivity devuelve la última vez que el cliente estuvo activo
func (c *Client) GetLastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// UpdateLastActivity actualiza la última actividad del cliente
func (c *Client) UpdateLastActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}
