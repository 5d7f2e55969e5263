package websocket

import (
	"sync"
	"time"

	"notification-sync-service/pkg/logging"
)

// ConnectionCleaner se encarga de cerrar las sesiones WebSocket inactivas
type ConnectionCleaner struct {
	hub            *Hub
	interval       time.Duration
	inactivityTime time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	logger         *logging.Logger
}

// NewConnectionCleaner crea una nueva instancia de ConnectionCleaner
func NewConnectionCleaner(hub *Hub, interval, inactivityTime time.Duration, logger *logging.Logger) *ConnectionCleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if inactivityTime <= 0 {
		inactivityTime = 5 * time.Minute
	}

	return &ConnectionCleaner{
		hub:            hub,
		interval:       interval,
		inactivityTime: inactivityTime,
		stopCh:         make(chan struct{}),
		logger:         logger,
	}
}

// Start inicia el proceso de limpieza de conexiones
func (c *ConnectionCleaner) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop detiene el proceso de limpieza de conexiones
func (c *ConnectionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// run ejecuta el proceso de limpieza periódicamente
func (c *ConnectionCleaner) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanInactiveConnections(time.Now())
		}
	}
}

// cleanInactiveConnections cierra las conexiones sin actividad desde antes de now-inactivityTime.
// Cerrar la conexión termina readPump, que da de baja la sesión y sus suscripciones.
func (c *ConnectionCleaner) cleanInactiveConnections(now time.Time) int {
	inactiveThreshold := now.Add(-c.inactivityTime)

	closed := 0
	for _, client := range c.hub.clientsSnapshot() {
		if !client.GetLastActivity().Before(inactiveThreshold) {
			continue
		}

		c.logger.Info("Closing inactive WebSocket session: SessionID=%s, UserID=%s, LastActivity=%s",
			client.sessionID, client.session.UserID, client.GetLastActivity().Format(time.RFC3339))
		client.Close()
		closed++
	}

	if closed > 0 {
		c.logger.Info("Cleaned %d inactive WebSocket connections", closed)
	}
	return closed
}
