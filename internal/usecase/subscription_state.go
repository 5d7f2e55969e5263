package usecase

import (
	"container/list"
	"errors"
	"fmt"

	"notification-sync-service/internal/domain/entity"

	"github.com/google/uuid"
)

// Errores comunes de las suscripciones
var (
	ErrStoreUnavailable       = errors.New("notification store unavailable")
	ErrUnknownSubscription    = errors.New("unknown subscription")
	ErrInvalidLimit           = errors.New("limit must be positive")
	ErrSubscriptionTerminated = errors.New("subscription terminated")
)

// SubscriptionKind distingue las dos variantes de suscripción
type SubscriptionKind string

const (
	KindUnreadNotifications SubscriptionKind = "notifications"
	KindUnreadCount         SubscriptionKind = "count"
)

// SubscriptionConfig es el registro explícito con el que se construye una suscripción
type SubscriptionConfig struct {
	Key     entity.SubscriptionKey
	Kind    SubscriptionKind
	Limit   int
	Handler UpdateHandler
}

// Validate rechaza configuraciones que no pueden producir un estado válido
func (c SubscriptionConfig) Validate() error {
	if c.Kind == KindUnreadNotifications && c.Limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, c.Limit)
	}
	if c.Handler == nil {
		return errors.New("subscription handler is required")
	}
	return nil
}

// orderedNotifications es un mapa id -> notificación que conserva el orden de llegada
type orderedNotifications struct {
	order *list.List
	index map[uuid.UUID]*list.Element
}

func newOrderedNotifications() orderedNotifications {
	return orderedNotifications{
		order: list.New(),
		index: make(map[uuid.UUID]*list.Element),
	}
}

// put inserta al final o sobrescribe en su sitio; devuelve true si era nueva
func (o *orderedNotifications) put(n *entity.Notification) bool {
	if elem, ok := o.index[n.ID]; ok {
		elem.Value = n
		return false
	}
	o.index[n.ID] = o.order.PushBack(n)
	return true
}

// removeOldest quita la entrada más antigua
func (o *orderedNotifications) removeOldest() {
	front := o.order.Front()
	if front == nil {
		return
	}
	delete(o.index, front.Value.(*entity.Notification).ID)
	o.order.Remove(front)
}

func (o *orderedNotifications) len() int {
	return o.order.Len()
}

// UnreadNotificationsState es la caché acotada de no leídas de una suscripción
type UnreadNotificationsState struct {
	notifications orderedNotifications
	totalUnread   int
	limit         int
}

// NewUnreadNotificationsState crea un estado vacío con el límite indicado
func NewUnreadNotificationsState(limit int) (*UnreadNotificationsState, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return &UnreadNotificationsState{
		notifications: newOrderedNotifications(),
		limit:         limit,
	}, nil
}

// Load reemplaza el estado completo con una instantánea del almacén.
// Los elementos llegan del más reciente al más antiguo y se insertan al revés,
// así el orden de llegada coincide con el cronológico.
func (s *UnreadNotificationsState) Load(page *entity.NotificationPage) {
	fresh := newOrderedNotifications()
	items := page.Items
	if len(items) > s.limit {
		items = items[:s.limit]
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] == nil || items[i].IsRead() {
			continue
		}
		fresh.put(items[i])
	}

	s.notifications = fresh
	s.totalUnread = page.TotalUnread
	if s.totalUnread < fresh.len() {
		s.totalUnread = fresh.len()
	}
}

// Upsert inserta o sobrescribe una notificación no leída conservando su posición de llegada.
// Si es nueva suma uno al total. Después descarta las entradas más antiguas por encima del
// límite sin tocar el total, ya que siguen sin leer en el almacén. Devuelve cuántas descartó.
func (s *UnreadNotificationsState) Upsert(n *entity.Notification, isNew bool) int {
	s.notifications.put(n)
	if isNew {
		s.totalUnread++
	}

	evicted := 0
	for s.notifications.len() > s.limit {
		s.notifications.removeOldest()
		evicted++
	}

	// Una actualización de una notificación que no estaba en caché no cambia el total del
	// almacén, pero el total nunca puede quedar por debajo de lo materializado
	if s.totalUnread < s.notifications.len() {
		s.totalUnread = s.notifications.len()
	}
	return evicted
}

// HasRequest indica si alguna notificación en caché pertenece a la solicitud
func (s *UnreadNotificationsState) HasRequest(requestID uuid.UUID) bool {
	for e := s.notifications.order.Front(); e != nil; e = e.Next() {
		if e.Value.(*entity.Notification).RequestID == requestID {
			return true
		}
	}
	return false
}

// Contains indica si la notificación está en caché
func (s *UnreadNotificationsState) Contains(id uuid.UUID) bool {
	_, ok := s.notifications.index[id]
	return ok
}

// Items devuelve las notificaciones en caché de la más reciente a la más antigua
func (s *UnreadNotificationsState) Items() []*entity.Notification {
	items := make([]*entity.Notification, 0, s.notifications.len())
	for e := s.notifications.order.Back(); e != nil; e = e.Prev() {
		items = append(items, e.Value.(*entity.Notification))
	}
	return items
}

// ArrivalOrder devuelve los ids en orden de llegada, del más antiguo al más nuevo
func (s *UnreadNotificationsState) ArrivalOrder() []uuid.UUID {
	ids := make([]uuid.UUID, 0, s.notifications.len())
	for e := s.notifications.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*entity.Notification).ID)
	}
	return ids
}

// Len devuelve el número de notificaciones en caché
func (s *UnreadNotificationsState) Len() int {
	return s.notifications.len()
}

// TotalUnread devuelve el total de no leídas en el almacén
func (s *UnreadNotificationsState) TotalUnread() int {
	return s.totalUnread
}

// Limit devuelve el máximo de notificaciones materializadas
func (s *UnreadNotificationsState) Limit() int {
	return s.limit
}

// UnreadCountState es el contador de no leídas de una suscripción de solo conteo
type UnreadCountState struct {
	unreadCount int
}

// NewUnreadCountState crea un contador a cero
func NewUnreadCountState() *UnreadCountState {
	return &UnreadCountState{}
}

// Set reemplaza el contador con el valor del almacén
func (s *UnreadCountState) Set(count int) {
	if count < 0 {
		count = 0
	}
	s.unreadCount = count
}

// Increment suma una no leída
func (s *UnreadCountState) Increment() {
	s.unreadCount++
}

// Decrement resta una no leída sin bajar de cero
func (s *UnreadCountState) Decrement() {
	if s.unreadCount > 0 {
		s.unreadCount--
	}
}

// UnreadCount devuelve el valor actual del contador
func (s *UnreadCountState) UnreadCount() int {
	return s.unreadCount
}
