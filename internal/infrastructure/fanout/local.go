package fanout

import (
	"context"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"

	"github.com/puzpuzpuz/xsync/v3"
)

const transportLocal = "local"

// handlerSet es inmutable: cada alta o baja publica un mapa nuevo
type handlerSet map[entity.SubscriptionKey]usecase.EventHandler

// LocalFanout enruta los eventos de dominio a las suscripciones de este proceso,
// indexadas por la identidad (tenant, usuario) destinataria
type LocalFanout struct {
	byIdentity *xsync.MapOf[entity.Identity, handlerSet]
	logger     *logging.Logger
}

// NewLocalFanout crea un fan-out en memoria
func NewLocalFanout(logger *logging.Logger) *LocalFanout {
	return &LocalFanout{
		byIdentity: xsync.NewMapOf[entity.Identity, handlerSet](),
		logger:     logger,
	}
}

// Subscribe registra el manejador de una suscripción
func (f *LocalFanout) Subscribe(key entity.SubscriptionKey, handler usecase.EventHandler) error {
	f.byIdentity.Compute(key.Identity(), func(current handlerSet, _ bool) (handlerSet, bool) {
		next := make(handlerSet, len(current)+1)
		for k, h := range current {
			next[k] = h
		}
		next[key] = handler
		return next, false
	})
	f.logger.Debug("Fan-out registered %s", key)
	return nil
}

// Unsubscribe elimina el manejador de una suscripción; claves desconocidas se ignoran
func (f *LocalFanout) Unsubscribe(key entity.SubscriptionKey) {
	f.byIdentity.Compute(key.Identity(), func(current handlerSet, loaded bool) (handlerSet, bool) {
		if !loaded {
			return nil, true
		}
		if _, ok := current[key]; !ok {
			return current, false
		}
		next := make(handlerSet, len(current))
		for k, h := range current {
			if k != key {
				next[k] = h
			}
		}
		return next, len(next) == 0
	})
}

// Publish entrega el evento en este proceso
func (f *LocalFanout) Publish(_ context.Context, update entity.SubscriptionUpdate) error {
	f.Deliver(update)
	return nil
}

// Deliver llama a los manejadores registrados para el destinatario del evento
func (f *LocalFanout) Deliver(update entity.SubscriptionUpdate) int {
	handlers, ok := f.byIdentity.Load(update.Recipient())
	if !ok {
		metrics.FanoutEvent(transportLocal, "deliver", "no_subscribers")
		return 0
	}

	for _, handler := range handlers {
		handler(update)
	}
	metrics.FanoutEvent(transportLocal, "deliver", "success")
	f.logger.Debug("Event %s for %s delivered to %d subscriptions", update.Type, update.Recipient(), len(handlers))
	return len(handlers)
}

// Subscriptions devuelve el número total de suscripciones registradas
func (f *LocalFanout) Subscriptions() int {
	total := 0
	f.byIdentity.Range(func(_ entity.Identity, handlers handlerSet) bool {
		total += len(handlers)
		return true
	})
	return total
}
