package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
)

// Hub mantiene el seguimiento de todas las sesiones activas de este proceso
type Hub struct {
	// Sesiones registradas por sessionID
	clients map[string]*Client

	mutex  sync.RWMutex
	logger *logging.Logger
}

// NewHub crea un nuevo hub
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// register registra un cliente en el hub
func (h *Hub) register(client *Client) {
	h.mutex.Lock()
	h.clients[client.sessionID] = client
	h.mutex.Unlock()
}

// unregister elimina un cliente del hub; devuelve false si ya no estaba
func (h *Hub) unregister(client *Client) bool {
	h.mutex.Lock()
	current, ok := h.clients[client.sessionID]
	if ok && current == client {
		delete(h.clients, client.sessionID)
	}
	h.mutex.Unlock()

	client.closeSend()
	return ok && current == client
}

// Send serializa una actualización y la encola para la sesión indicada.
// Implementa usecase.Transport.
func (h *Hub) Send(sessionID string, update usecase.CmdUpdate) {
	h.mutex.RLock()
	client, exists := h.clients[sessionID]
	h.mutex.RUnlock()

	if !exists {
		h.logger.Debug("Dropping %s for disconnected session %s", update.GetType(), sessionID)
		return
	}

	message, err := json.Marshal(update)
	if err != nil {
		metrics.WebSocketError("encode")
		h.logger.Error("Failed to encode %s for session %s: %v", update.GetType(), sessionID, err)
		return
	}

	switch err := client.Send(message); {
	case err == nil:
	case errors.Is(err, ErrClientClosed):
		// La sesión se está dando de baja
		h.logger.Debug("Dropping %s for closing session %s", update.GetType(), sessionID)
	default:
		// Si el buffer está lleno, cerramos la sesión para que el cliente se resincronice
		metrics.WebSocketError("slow_consumer")
		h.logger.Warn("Send buffer full for session %s, closing connection", sessionID)
		client.Close()
	}
}

// clientsSnapshot devuelve una copia de los clientes registrados
func (h *Hub) clientsSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// IsSessionConnected verifica si una sesión tiene conexión activa
func (h *Hub) IsSessionConnected(sessionID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, exists := h.clients[sessionID]
	return exists
}

// GetClientCount devuelve el número total de clientes conectados
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown cierra todas las conexiones
func (h *Hub) Shutdown() {
	for _, client := range h.clientsSnapshot() {
		client.Close()
	}
}
