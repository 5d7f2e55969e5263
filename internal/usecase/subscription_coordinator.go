package usecase

import (
	"context"
	"fmt"
	"sync/atomic"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// EventHandler recibe los eventos de dominio de una suscripción
type EventHandler func(update entity.SubscriptionUpdate)

// EventFanout enruta los eventos de dominio hacia las suscripciones registradas
type EventFanout interface {
	Subscribe(key entity.SubscriptionKey, handler EventHandler) error
	Unsubscribe(key entity.SubscriptionKey)
}

// EventPublisher publica eventos de dominio en el fan-out
type EventPublisher interface {
	Publish(ctx context.Context, update entity.SubscriptionUpdate) error
}

// Transport entrega mensajes a una sesión del canal push
type Transport interface {
	Send(sessionID string, update CmdUpdate)
}

// Executor ejecuta en orden las tareas de una misma clave
type Executor interface {
	Execute(key string, task func()) error
}

// NotificationMarker marca notificaciones como leídas
type NotificationMarker interface {
	MarkAsRead(ctx context.Context, tenantID, recipientID, notificationID uuid.UUID) error
}

// SessionRef identifica la sesión que envía un comando y su usuario
type SessionRef struct {
	SessionID string
	TenantID  uuid.UUID
	UserID    uuid.UUID
}

// SubscriptionStatus es el estado del ciclo de vida de una suscripción
type SubscriptionStatus int32

const (
	StatusCreating SubscriptionStatus = iota
	StatusActive
	StatusTerminated
)

// String devuelve el nombre del estado
func (s SubscriptionStatus) String() string {
	switch s {
	case StatusCreating:
		return "CREATING"
	case StatusActive:
		return "ACTIVE"
	case StatusTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

type registryKey struct {
	sessionID string
	cmdID     int
}

// subscription agrupa la configuración y el estado de una suscripción.
// El estado solo se toca desde las tareas de su clave en el Executor.
type subscription struct {
	config SubscriptionConfig
	status atomic.Int32
	unread *UnreadNotificationsState
	count  *UnreadCountState
}

func (s *subscription) getStatus() SubscriptionStatus {
	return SubscriptionStatus(s.status.Load())
}

func (s *subscription) executorKey() string {
	return s.config.Key.String()
}

func (s *subscription) deliver(update CmdUpdate) {
	if update == nil {
		return
	}
	s.config.Handler.OnUpdate(s.config.Key.SessionID, update)
}

// SubscriptionCoordinator crea, alimenta y termina las suscripciones de las sesiones de este proceso
type SubscriptionCoordinator struct {
	serviceID     string
	maxLimit      int
	reconciler    *UpdateReconciler
	fanout        EventFanout
	transport     Transport
	executor      Executor
	marker        NotificationMarker
	subscriptions *xsync.MapOf[registryKey, *subscription]
	logger        *logging.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewSubscriptionCoordinator crea un coordinador
func NewSubscriptionCoordinator(
	serviceID string,
	maxLimit int,
	reconciler *UpdateReconciler,
	fanout EventFanout,
	transport Transport,
	executor Executor,
	marker NotificationMarker,
	logger *logging.Logger,
) *SubscriptionCoordinator {
	ctx, cancel := context.WithCancel(context.Background())

	return &SubscriptionCoordinator{
		serviceID:     serviceID,
		maxLimit:      maxLimit,
		reconciler:    reconciler,
		fanout:        fanout,
		transport:     transport,
		executor:      executor,
		marker:        marker,
		subscriptions: xsync.NewMapOf[registryKey, *subscription](),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SubscribeUnreadNotifications registra una suscripción al conjunto de no leídas.
// La respuesta inicial llega de forma asíncrona por el Transport.
func (c *SubscriptionCoordinator) SubscribeUnreadNotifications(session SessionRef, cmd UnreadNotificationsSubCmd) error {
	limit := cmd.Limit
	if limit > c.maxLimit && c.maxLimit > 0 {
		limit = c.maxLimit
	}

	state, err := NewUnreadNotificationsState(limit)
	if err != nil {
		return err
	}

	sub := &subscription{
		config: c.newConfig(session, cmd.CmdID, KindUnreadNotifications, limit),
		unread: state,
	}
	return c.register(sub)
}

// SubscribeUnreadCount registra una suscripción al contador de no leídas
func (c *SubscriptionCoordinator) SubscribeUnreadCount(session SessionRef, cmd UnreadCountSubCmd) error {
	sub := &subscription{
		config: c.newConfig(session, cmd.CmdID, KindUnreadCount, 0),
		count:  NewUnreadCountState(),
	}
	return c.register(sub)
}

// Unsubscribe termina la suscripción cmdID de la sesión; ids desconocidos se ignoran
func (c *SubscriptionCoordinator) Unsubscribe(session SessionRef, cmdID int) {
	if sub, ok := c.subscriptions.LoadAndDelete(registryKey{session.SessionID, cmdID}); ok {
		c.terminate(sub)
	}
}

// Refresh fuerza la resincronización completa de una suscripción existente
func (c *SubscriptionCoordinator) Refresh(session SessionRef, cmdID int) error {
	sub, ok := c.subscriptions.Load(registryKey{session.SessionID, cmdID})
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, cmdID)
	}

	return c.executor.Execute(sub.executorKey(), func() {
		if sub.getStatus() != StatusActive {
			return
		}

		update, err := c.refresh(sub, refreshReasonCommand)
		if err != nil {
			c.logger.Error("Refresh of %s failed: %v", sub.config.Key, err)
			sub.deliver(NewErrorUpdate(cmdID, err))
			return
		}
		sub.deliver(update)
	})
}

// MarkAsRead delega en el servicio de notificaciones; el cambio llega después como evento
func (c *SubscriptionCoordinator) MarkAsRead(ctx context.Context, session SessionRef, cmd MarkAsReadCmd) error {
	return c.marker.MarkAsRead(ctx, session.TenantID, session.UserID, cmd.NotificationID)
}

// CloseSession termina todas las suscripciones de una sesión
func (c *SubscriptionCoordinator) CloseSession(sessionID string) {
	var keys []registryKey
	c.subscriptions.Range(func(key registryKey, _ *subscription) bool {
		if key.sessionID == sessionID {
			keys = append(keys, key)
		}
		return true
	})

	for _, key := range keys {
		if sub, ok := c.subscriptions.LoadAndDelete(key); ok {
			c.terminate(sub)
		}
	}
	if len(keys) > 0 {
		c.logger.Debug("Closed %d subscriptions of session %s", len(keys), sessionID)
	}
}

// Status devuelve el estado de la suscripción cmdID de la sesión
func (c *SubscriptionCoordinator) Status(sessionID string, cmdID int) (SubscriptionStatus, bool) {
	sub, ok := c.subscriptions.Load(registryKey{sessionID, cmdID})
	if !ok {
		return StatusTerminated, false
	}
	return sub.getStatus(), true
}

// ActiveSubscriptions devuelve el número de suscripciones registradas
func (c *SubscriptionCoordinator) ActiveSubscriptions() int {
	return c.subscriptions.Size()
}

// Stop termina todas las suscripciones y cancela las consultas en curso
func (c *SubscriptionCoordinator) Stop() {
	c.subscriptions.Range(func(key registryKey, sub *subscription) bool {
		c.subscriptions.Delete(key)
		c.terminate(sub)
		return true
	})
	c.cancel()
}

func (c *SubscriptionCoordinator) newConfig(session SessionRef, cmdID int, kind SubscriptionKind, limit int) SubscriptionConfig {
	return SubscriptionConfig{
		Key: entity.SubscriptionKey{
			ServiceID:      c.serviceID,
			SessionID:      session.SessionID,
			SubscriptionID: cmdID,
			TenantID:       session.TenantID,
			EntityID:       session.UserID,
		},
		Kind:    kind,
		Limit:   limit,
		Handler: UpdateHandlerFunc(c.send),
	}
}

// register guarda la suscripción, sustituyendo a la que tuviera el mismo cmdID,
// y encola el alta en su clave serial
func (c *SubscriptionCoordinator) register(sub *subscription) error {
	if err := sub.config.Validate(); err != nil {
		return err
	}

	key := registryKey{sub.config.Key.SessionID, sub.config.Key.SubscriptionID}
	if previous, loaded := c.subscriptions.LoadAndStore(key, sub); loaded {
		c.logger.Debug("Replacing subscription %s", previous.config.Key)
		c.terminate(previous)
	}

	if err := c.executor.Execute(sub.executorKey(), func() { c.activate(sub) }); err != nil {
		c.forget(sub)
		sub.status.Store(int32(StatusTerminated))
		return err
	}
	return nil
}

// activate se ejecuta en la clave serial de la suscripción: registra en el fan-out,
// toma la instantánea inicial y envía la actualización completa. Los eventos que
// lleguen mientras tanto quedan encolados detrás de esta tarea.
func (c *SubscriptionCoordinator) activate(sub *subscription) {
	if sub.getStatus() != StatusCreating {
		return
	}

	if err := c.fanout.Subscribe(sub.config.Key, c.eventHandler(sub)); err != nil {
		c.logger.Error("Failed to register %s with fan-out: %v", sub.config.Key, err)
		c.fail(sub, fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
		return
	}

	update, err := c.refresh(sub, refreshReasonSubscribe)
	if err != nil {
		c.logger.Error("Initial snapshot for %s failed: %v", sub.config.Key, err)
		c.fail(sub, err)
		return
	}

	if !sub.status.CompareAndSwap(int32(StatusCreating), int32(StatusActive)) {
		return
	}
	metrics.SubscriptionsChange(string(sub.config.Kind), 1)
	c.logger.Debug("Subscription %s is active", sub.config.Key)
	sub.deliver(update)
}

// fail termina una suscripción cuyo alta no pudo completarse y avisa al cliente
func (c *SubscriptionCoordinator) fail(sub *subscription, err error) {
	c.forget(sub)
	if sub.status.Swap(int32(StatusTerminated)) == int32(StatusTerminated) {
		return
	}
	c.fanout.Unsubscribe(sub.config.Key)
	sub.deliver(NewErrorUpdate(sub.config.Key.SubscriptionID, err))
}

// forget borra la suscripción del registro solo si sigue siendo la registrada
func (c *SubscriptionCoordinator) forget(sub *subscription) {
	key := registryKey{sub.config.Key.SessionID, sub.config.Key.SubscriptionID}
	c.subscriptions.Compute(key, func(current *subscription, loaded bool) (*subscription, bool) {
		return current, !loaded || current == sub
	})
}

// terminate marca la suscripción como terminada y encola la baja del fan-out en su
// clave serial, así nunca adelanta a un alta pendiente
func (c *SubscriptionCoordinator) terminate(sub *subscription) {
	previous := SubscriptionStatus(sub.status.Swap(int32(StatusTerminated)))
	if previous == StatusTerminated {
		return
	}
	if previous == StatusActive {
		metrics.SubscriptionsChange(string(sub.config.Kind), -1)
	}

	deregister := func() { c.fanout.Unsubscribe(sub.config.Key) }
	if err := c.executor.Execute(sub.executorKey(), deregister); err != nil {
		deregister()
	}
	c.logger.Debug("Subscription %s terminated", sub.config.Key)
}

func (c *SubscriptionCoordinator) eventHandler(sub *subscription) EventHandler {
	return func(event entity.SubscriptionUpdate) {
		if sub.getStatus() == StatusTerminated {
			metrics.SubscriptionEventDropped("terminated")
			return
		}
		if err := c.executor.Execute(sub.executorKey(), func() { c.handleEvent(sub, event) }); err != nil {
			metrics.SubscriptionEventDropped("executor")
			c.logger.Warn("Dropping event for %s: %v", sub.config.Key, err)
		}
	}
}

func (c *SubscriptionCoordinator) handleEvent(sub *subscription, event entity.SubscriptionUpdate) {
	if sub.getStatus() != StatusActive {
		metrics.SubscriptionEventDropped("terminated")
		return
	}

	var (
		update CmdUpdate
		err    error
	)
	switch sub.config.Kind {
	case KindUnreadNotifications:
		update, err = c.reconciler.ReconcileUnread(c.ctx, sub.config, sub.unread, event)
	case KindUnreadCount:
		update, err = c.reconciler.ReconcileCount(c.ctx, sub.config, sub.count, event)
	}
	if err != nil {
		c.logger.Error("Failed to apply %s to %s, keeping previous state: %v", event.Type, sub.config.Key, err)
		return
	}
	sub.deliver(update)
}

func (c *SubscriptionCoordinator) refresh(sub *subscription, reason string) (CmdUpdate, error) {
	if sub.config.Kind == KindUnreadCount {
		return c.reconciler.RefreshCount(c.ctx, sub.config, sub.count, reason)
	}
	return c.reconciler.RefreshUnread(c.ctx, sub.config, sub.unread, reason)
}

// send entrega una actualización al transporte
func (c *SubscriptionCoordinator) send(sessionID string, update CmdUpdate) {
	switch u := update.(type) {
	case *UnreadNotificationsUpdate:
		metrics.SubscriptionUpdateSent(string(KindUnreadNotifications), string(u.UpdateType))
	case *UnreadCountUpdate:
		metrics.SubscriptionUpdateSent(string(KindUnreadCount), "count")
	default:
		metrics.SubscriptionUpdateSent("none", string(update.GetType()))
	}
	c.transport.Send(sessionID, update)
}
