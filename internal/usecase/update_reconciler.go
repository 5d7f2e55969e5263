package usecase

import (
	"context"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
)

// Motivos de resincronización completa, usados como etiqueta de métricas
const (
	refreshReasonSubscribe = "subscribe"
	refreshReasonRead      = "read"
	refreshReasonWithdrawn = "withdrawn"
	refreshReasonCommand   = "command"
)

// UpdateReconciler decide, para cada evento de dominio, entre un parche incremental
// sobre el estado de la suscripción o una resincronización completa con el almacén.
// Devuelve la actualización a enviar, o nil si el evento no produce mensaje.
// Si la consulta al almacén falla, el estado anterior se conserva y no hay mensaje.
type UpdateReconciler struct {
	fetcher SnapshotFetcher
	logger  *logging.Logger
}

// NewUpdateReconciler crea un reconciliador sobre el fetcher indicado
func NewUpdateReconciler(fetcher SnapshotFetcher, logger *logging.Logger) *UpdateReconciler {
	return &UpdateReconciler{
		fetcher: fetcher,
		logger:  logger,
	}
}

// RefreshUnread recarga la caché de no leídas y devuelve una actualización completa
func (r *UpdateReconciler) RefreshUnread(ctx context.Context, config SubscriptionConfig, state *UnreadNotificationsState, reason string) (CmdUpdate, error) {
	metrics.SubscriptionFullRefresh(string(KindUnreadNotifications), reason)

	key := config.Key
	page, err := r.fetcher.FetchUnreadPage(ctx, key.TenantID, key.EntityID, state.Limit())
	if err != nil {
		return nil, err
	}

	state.Load(page)
	return NewFullUpdate(key.SubscriptionID, state), nil
}

// RefreshCount recarga el contador y devuelve la actualización de conteo
func (r *UpdateReconciler) RefreshCount(ctx context.Context, config SubscriptionConfig, state *UnreadCountState, reason string) (CmdUpdate, error) {
	metrics.SubscriptionFullRefresh(string(KindUnreadCount), reason)

	key := config.Key
	count, err := r.fetcher.FetchUnreadCount(ctx, key.TenantID, key.EntityID)
	if err != nil {
		return nil, err
	}

	state.Set(count)
	return countUpdate(config, state), nil
}

// ReconcileUnread aplica un evento a una suscripción de no leídas
func (r *UpdateReconciler) ReconcileUnread(ctx context.Context, config SubscriptionConfig, state *UnreadNotificationsState, event entity.SubscriptionUpdate) (CmdUpdate, error) {
	switch event.Type {
	case entity.UpdateNotificationChanged:
		notification := event.Notification
		if notification == nil {
			return nil, nil
		}

		// Salir del conjunto puede promover otra notificación desde la cola del almacén
		if notification.IsRead() {
			return r.RefreshUnread(ctx, config, state, refreshReasonRead)
		}

		if evicted := state.Upsert(notification, event.NewNotification); evicted > 0 {
			r.logger.Debug("Evicted %d notifications from %s", evicted, config.Key)
		}
		return NewPartialUpdate(config.Key.SubscriptionID, notification, state), nil

	case entity.UpdateNotificationRequestWithdrawn:
		if !state.HasRequest(event.RequestID) {
			return nil, nil
		}
		return r.RefreshUnread(ctx, config, state, refreshReasonWithdrawn)
	}

	r.logger.Warn("Ignoring unknown event type %q for %s", event.Type, config.Key)
	return nil, nil
}

// ReconcileCount aplica un evento a una suscripción de solo conteo.
// Siempre produce una actualización, aunque el contador no cambie.
func (r *UpdateReconciler) ReconcileCount(ctx context.Context, config SubscriptionConfig, state *UnreadCountState, event entity.SubscriptionUpdate) (CmdUpdate, error) {
	switch event.Type {
	case entity.UpdateNotificationChanged:
		notification := event.Notification
		if event.NewNotification {
			state.Increment()
		} else if notification != nil && notification.IsRead() {
			state.Decrement()
		}

	case entity.UpdateNotificationRequestWithdrawn:
		// No se sabe cuántas de las retiradas seguían sin leer
		return r.RefreshCount(ctx, config, state, refreshReasonWithdrawn)
	}

	return countUpdate(config, state), nil
}

func countUpdate(config SubscriptionConfig, state *UnreadCountState) CmdUpdate {
	return &UnreadCountUpdate{
		CmdID:            config.Key.SubscriptionID,
		TotalUnreadCount: state.UnreadCount(),
	}
}
