package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"notification-sync-service/config"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
	"notification-sync-service/pkg/throttling"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const commandTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator identifica al usuario de un token
type Authenticator interface {
	Identify(token string) (tenantID, userID uuid.UUID, err error)
}

// SubscriptionService atiende los comandos de suscripción de las sesiones
type SubscriptionService interface {
	SubscribeUnreadNotifications(session usecase.SessionRef, cmd usecase.UnreadNotificationsSubCmd) error
	SubscribeUnreadCount(session usecase.SessionRef, cmd usecase.UnreadCountSubCmd) error
	Unsubscribe(session usecase.SessionRef, cmdID int)
	Refresh(session usecase.SessionRef, cmdID int) error
	MarkAsRead(ctx context.Context, session usecase.SessionRef, cmd usecase.MarkAsReadCmd) error
	CloseSession(sessionID string)
}

// pongMessage es la respuesta a un ping de aplicación
type pongMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Server acepta conexiones WebSocket y traduce sus comandos al servicio de suscripciones
type Server struct {
	hub           *Hub
	authenticator Authenticator
	subscriptions SubscriptionService
	throttler     *throttling.KeyedThrottler
	settings      clientSettings
	logger        *logging.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewServer crea un servidor WebSocket sobre el hub indicado
func NewServer(
	hub *Hub,
	authenticator Authenticator,
	subscriptions SubscriptionService,
	throttler *throttling.KeyedThrottler,
	cfg config.WebSocketConfig,
	logger *logging.Logger,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		hub:           hub,
		authenticator: authenticator,
		subscriptions: subscriptions,
		throttler:     throttler,
		settings:      newClientSettings(cfg),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// HandleConnection maneja una nueva conexión WebSocket
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	tenantID, userID, err := s.authenticator.Identify(token)
	if err != nil {
		metrics.WebSocketError("auth")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WebSocketError("upgrade")
		s.logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	session := usecase.SessionRef{
		SessionID: uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
	}
	client := NewClient(s.hub, conn, session, s.settings, s)

	s.hub.register(client)
	metrics.WebSocketConnectionsChange(1)

	// Iniciar el bombeo de mensajes
	go client.writePump()
	go client.readPump()
}

// tokenFromRequest acepta el token en la query o en la cabecera Authorization
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// OnConnect se llama cuando arranca la escritura de un cliente
func (s *Server) OnConnect(client *Client) {
	s.logger.Debug("Session %s connected for user %s", client.sessionID, client.session.UserID)
}

// OnDisconnect libera las suscripciones de la sesión
func (s *Server) OnDisconnect(client *Client) {
	if !s.hub.unregister(client) {
		return
	}
	metrics.WebSocketConnectionsChange(-1)
	s.subscriptions.CloseSession(client.sessionID)
	s.throttler.Forget(client.sessionID)
	s.logger.Debug("Session %s disconnected", client.sessionID)
}

// OnError se llama cuando la conexión se cierra de forma inesperada
func (s *Server) OnError(client *Client, err error) {
	metrics.WebSocketError("read")
	s.logger.Warn("WebSocket error on session %s: %v", client.sessionID, err)
}

// OnMessage interpreta y despacha un comando de la sesión
func (s *Server) OnMessage(client *Client, messageType int, message []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	envelope, cmd, err := usecase.ParseCommand(message)
	if err != nil {
		metrics.WebSocketError("bad_command")
		s.reply(client, usecase.NewErrorUpdate(0, err))
		return
	}

	if !s.throttler.Allow(client.sessionID) {
		metrics.CommandThrottled()
		s.reply(client, &usecase.ErrorUpdate{
			CmdID:     cmdIDOf(cmd),
			ErrorCode: usecase.ErrorCodeThrottled,
			ErrorMsg:  "too many commands",
		})
		return
	}

	if envelope.Type == usecase.CmdPing {
		s.pong(client)
		return
	}

	if err := s.dispatch(client.session, cmd); err != nil {
		if !errors.Is(err, usecase.ErrInvalidLimit) && !errors.Is(err, usecase.ErrUnknownSubscription) {
			s.logger.Warn("Command %s on session %s failed: %v", envelope.Type, client.sessionID, err)
		}
		s.reply(client, usecase.NewErrorUpdate(cmdIDOf(cmd), err))
	}
}

// dispatch invoca la operación del servicio de suscripciones correspondiente al comando
func (s *Server) dispatch(session usecase.SessionRef, cmd interface{}) error {
	switch c := cmd.(type) {
	case *usecase.UnreadNotificationsSubCmd:
		return s.subscriptions.SubscribeUnreadNotifications(session, *c)
	case *usecase.UnreadCountSubCmd:
		return s.subscriptions.SubscribeUnreadCount(session, *c)
	case *usecase.UnsubscribeCmd:
		s.subscriptions.Unsubscribe(session, c.CmdID)
		return nil
	case *usecase.RefreshCmd:
		return s.subscriptions.Refresh(session, c.CmdID)
	case *usecase.MarkAsReadCmd:
		ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
		defer cancel()
		return s.subscriptions.MarkAsRead(ctx, session, *c)
	default:
		return usecase.ErrBadCommand
	}
}

// cmdIDOf devuelve el cmdId de un comando, o 0 si no lo tiene
func cmdIDOf(cmd interface{}) int {
	switch c := cmd.(type) {
	case *usecase.UnreadNotificationsSubCmd:
		return c.CmdID
	case *usecase.UnreadCountSubCmd:
		return c.CmdID
	case *usecase.UnsubscribeCmd:
		return c.CmdID
	case *usecase.RefreshCmd:
		return c.CmdID
	default:
		return 0
	}
}

func (s *Server) reply(client *Client, update usecase.CmdUpdate) {
	s.hub.Send(client.sessionID, update)
}

func (s *Server) pong(client *Client) {
	payload, err := json.Marshal(pongMessage{Type: "pong", Timestamp: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}
	client.Send(payload)
}

// ConnectedSessions devuelve el número de sesiones abiertas
func (s *Server) ConnectedSessions() int {
	return s.hub.GetClientCount()
}

// Shutdown cierra todas las sesiones y cancela los comandos en curso
func (s *Server) Shutdown() {
	s.hub.Shutdown()
	s.cancel()
}
