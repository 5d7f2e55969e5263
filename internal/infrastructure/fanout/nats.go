package fanout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/usecase"
	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
	"notification-sync-service/pkg/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

const transportNats = "nats"

// NatsFanout reparte los eventos de dominio entre todos los procesos del clúster.
// Publica en <prefijo>.<tenant>.<usuario>; cada proceso escucha <prefijo>.> y
// entrega localmente a sus suscripciones.
type NatsFanout struct {
	conn       *nats.Conn
	sub        *nats.Subscription
	local      *LocalFanout
	prefix     string
	compressor *utils.MessageCompressor
	logger     *logging.Logger
}

// ConnectNats abre la conexión con NATS reintentando con backoff exponencial
func ConnectNats(ctx context.Context, url string, maxWait time.Duration, logger *logging.Logger) (*nats.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	var conn *nats.Conn
	connect := func() error {
		var err error
		conn, err = nats.Connect(url,
			nats.Name("notification-sync-service"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("Disconnected from NATS: %v", err)
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("Reconnected to NATS at %s", c.ConnectedUrl())
			}),
		)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("NATS not ready, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNatsFanout crea el puente entre NATS y el fan-out local
func NewNatsFanout(conn *nats.Conn, local *LocalFanout, prefix string, compressor *utils.MessageCompressor, logger *logging.Logger) *NatsFanout {
	return &NatsFanout{
		conn:       conn,
		local:      local,
		prefix:     strings.TrimSuffix(prefix, "."),
		compressor: compressor,
		logger:     logger,
	}
}

// Start se suscribe a todos los eventos del prefijo
func (f *NatsFanout) Start() error {
	sub, err := f.conn.Subscribe(f.prefix+".>", f.handleMsg)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s.>: %w", f.prefix, err)
	}
	f.sub = sub
	f.logger.Info("Listening for subscription updates on %s.>", f.prefix)
	return nil
}

// Close deja de escuchar y vacía la conexión
func (f *NatsFanout) Close() error {
	if f.sub != nil {
		if err := f.sub.Unsubscribe(); err != nil {
			f.logger.Warn("Failed to unsubscribe from NATS: %v", err)
		}
	}
	return f.conn.Drain()
}

// Subscribe implementa usecase.EventFanout
func (f *NatsFanout) Subscribe(key entity.SubscriptionKey, handler usecase.EventHandler) error {
	return f.local.Subscribe(key, handler)
}

// Unsubscribe implementa usecase.EventFanout
func (f *NatsFanout) Unsubscribe(key entity.SubscriptionKey) {
	f.local.Unsubscribe(key)
}

// Publish implementa usecase.EventPublisher; el evento vuelve a este proceso por la suscripción
func (f *NatsFanout) Publish(_ context.Context, update entity.SubscriptionUpdate) error {
	data, err := EncodeUpdate(update)
	if err != nil {
		metrics.FanoutEvent(transportNats, "publish", "error")
		return err
	}

	payload, _ := f.compressor.CompressMessage(data)
	if err := f.conn.Publish(f.Subject(update.Recipient()), payload); err != nil {
		metrics.FanoutEvent(transportNats, "publish", "error")
		return fmt.Errorf("failed to publish subscription update: %w", err)
	}
	metrics.FanoutEvent(transportNats, "publish", "success")
	return nil
}

// Subject devuelve el subject NATS de una identidad
func (f *NatsFanout) Subject(identity entity.Identity) string {
	return fmt.Sprintf("%s.%s.%s", f.prefix, identity.TenantID, identity.UserID)
}

func (f *NatsFanout) handleMsg(msg *nats.Msg) {
	data, err := f.compressor.DecompressMessage(msg.Data)
	if err != nil {
		metrics.FanoutEvent(transportNats, "receive", "error")
		f.logger.Error("Discarding unreadable message on %s: %v", msg.Subject, err)
		return
	}

	update, err := DecodeUpdate(data)
	if err != nil {
		metrics.FanoutEvent(transportNats, "receive", "error")
		f.logger.Error("Discarding malformed message on %s: %v", msg.Subject, err)
		return
	}

	metrics.FanoutEvent(transportNats, "receive", "success")
	f.local.Deliver(update)
}
