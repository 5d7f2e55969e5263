package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Métricas HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total de solicitudes HTTP procesadas",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duración de las solicitudes HTTP en segundos",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Métricas de WebSocket
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Número actual de conexiones WebSocket activas",
		},
	)

	websocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total de mensajes WebSocket enviados",
		},
	)

	websocketMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total de mensajes WebSocket recibidos",
		},
	)

	websocketErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total de errores WebSocket",
		},
		[]string{"type"},
	)

	commandsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_commands_throttled_total",
			Help: "Comandos rechazados por superar el límite de tasa de la sesión",
		},
	)

	// Métricas de suscripciones
	subscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Número de suscripciones activas por tipo",
		},
		[]string{"kind"},
	)

	subscriptionUpdatesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_updates_sent_total",
			Help: "Actualizaciones enviadas a los clientes por tipo de suscripción y de actualización",
		},
		[]string{"kind", "update_type"},
	)

	subscriptionFullRefresh = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_full_refresh_total",
			Help: "Resincronizaciones completas por motivo",
		},
		[]string{"kind", "reason"},
	)

	subscriptionEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_events_dropped_total",
			Help: "Eventos descartados por suscripción inexistente o terminada",
		},
		[]string{"reason"},
	)

	snapshotFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_fetch_duration_seconds",
			Help:    "Duración de las consultas de instantánea al almacén",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // De 1ms a ~4s
		},
		[]string{"kind", "result"},
	)

	// Métricas del fan-out de eventos
	fanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_total",
			Help: "Eventos de dominio publicados o recibidos por el fan-out",
		},
		[]string{"transport", "direction", "result"},
	)

	executorQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_pending_tasks",
			Help: "Tareas pendientes en el pool de trabajadores",
		},
	)

	// Métricas de base de datos
	dbOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operations_total",
			Help: "Total de operaciones de base de datos",
		},
		[]string{"operation", "table", "result"},
	)

	dbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duración de las operaciones de base de datos en segundos",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
)

// HTTPMiddleware registra métricas para solicitudes HTTP
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Crear un ResponseWriter personalizado para capturar el código de estado
		rw := NewResponseWriter(w)

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.StatusCode)
		path := GetNormalizedPath(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// ResponseWriter personalizado para capturar el código de estado
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

// NewResponseWriter crea un nuevo ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{w, http.StatusOK}
}

// WriteHeader sobrescribe el método original para capturar el código de estado
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack deja pasar las conexiones WebSocket a través del middleware
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.StatusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// GetNormalizedPath usa la plantilla de la ruta de mux para evitar cardinalidad alta
func GetNormalizedPath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// WebSocketConnectionsChange actualiza el número de conexiones WebSocket
func WebSocketConnectionsChange(delta int) {
	websocketConnections.Add(float64(delta))
}

// WebSocketMessageSent incrementa el contador de mensajes WebSocket enviados
func WebSocketMessageSent() {
	websocketMessagesSent.Inc()
}

// WebSocketMessageReceived incrementa el contador de mensajes WebSocket recibidos
func WebSocketMessageReceived() {
	websocketMessagesReceived.Inc()
}

// WebSocketError registra un error de WebSocket
func WebSocketError(errorType string) {
	websocketErrors.WithLabelValues(errorType).Inc()
}

// CommandThrottled registra un comando rechazado por el limitador
func CommandThrottled() {
	commandsThrottled.Inc()
}

// SubscriptionsChange actualiza el número de suscripciones activas de un tipo
func SubscriptionsChange(kind string, delta int) {
	subscriptionsActive.WithLabelValues(kind).Add(float64(delta))
}

// SubscriptionUpdateSent registra una actualización enviada a un cliente
func SubscriptionUpdateSent(kind, updateType string) {
	subscriptionUpdatesSent.WithLabelValues(kind, updateType).Inc()
}

// SubscriptionFullRefresh registra una resincronización completa
func SubscriptionFullRefresh(kind, reason string) {
	subscriptionFullRefresh.WithLabelValues(kind, reason).Inc()
}

// SubscriptionEventDropped registra un evento descartado
func SubscriptionEventDropped(reason string) {
	subscriptionEventsDropped.WithLabelValues(reason).Inc()
}

// TrackSnapshotFetch mide la duración de una consulta de instantánea
func TrackSnapshotFetch(kind string) func(result string) {
	start := time.Now()
	return func(result string) {
		snapshotFetchDuration.WithLabelValues(kind, result).Observe(time.Since(start).Seconds())
	}
}

// FanoutEvent registra un evento publicado o recibido por el fan-out
func FanoutEvent(transport, direction, result string) {
	fanoutEvents.WithLabelValues(transport, direction, result).Inc()
}

// SetExecutorQueueDepth actualiza el número de tareas pendientes del pool
func SetExecutorQueueDepth(depth int) {
	executorQueueDepth.Set(float64(depth))
}

// ObserveDatabaseOperation registra una operación de base de datos con su duración
func ObserveDatabaseOperation(operation, table, result string, duration time.Duration) {
	dbOperationsTotal.WithLabelValues(operation, table, result).Inc()
	dbOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// TrackDatabaseOperation mide y registra la duración de una operación de base de datos
func TrackDatabaseOperation(operation, table string) func(result string) {
	start := time.Now()
	return func(result string) {
		ObserveDatabaseOperation(operation, table, result, time.Since(start))
	}
}

// Result convierte un error en la etiqueta de resultado de las métricas
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
