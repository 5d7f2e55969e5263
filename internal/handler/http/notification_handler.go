package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/domain/repository"
	"notification-sync-service/internal/usecase"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const defaultUnreadLimit = 20

// NotificationService son las operaciones de notificaciones expuestas por HTTP
type NotificationService interface {
	CreateNotifications(ctx context.Context, req usecase.CreateNotificationsRequest) ([]*entity.Notification, error)
	WithdrawRequest(ctx context.Context, tenantID, requestID uuid.UUID) (int, error)
	GetNotification(ctx context.Context, tenantID, id uuid.UUID) (*entity.Notification, error)
	ListUnread(ctx context.Context, tenantID, recipientID uuid.UUID, limit int) (*entity.NotificationPage, error)
	MarkAsRead(ctx context.Context, tenantID, recipientID, notificationID uuid.UUID) error
}

// NotificationHandler maneja las peticiones HTTP relacionadas con notificaciones
type NotificationHandler struct {
	notificationService NotificationService
	maxLimit            int
}

// NewNotificationHandler crea un nuevo NotificationHandler
func NewNotificationHandler(notificationService NotificationService, maxLimit int) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		maxLimit:            maxLimit,
	}
}

// RegisterRoutes registra las rutas del manejador. Las rutas del usuario exigen token Bearer.
func (h *NotificationHandler) RegisterRoutes(router *mux.Router, authenticator Authenticator) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/notifications", h.CreateNotifications).Methods(http.MethodPost)
	api.HandleFunc("/notification-requests/{id}", h.WithdrawRequest).Methods(http.MethodDelete)

	user := api.PathPrefix("/notifications").Subrouter()
	user.Use(BearerAuth(authenticator))
	user.HandleFunc("/unread", h.ListUnread).Methods(http.MethodGet)
	user.HandleFunc("/{id}", h.GetNotification).Methods(http.MethodGet)
	user.HandleFunc("/{id}/read", h.MarkAsRead).Methods(http.MethodPost)
}

// CreateNotifications guarda una notificación por destinatario
func (h *NotificationHandler) CreateNotifications(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID     uuid.UUID              `json:"tenant_id"`
		RequestID    uuid.UUID              `json:"request_id"`
		RecipientIDs []uuid.UUID            `json:"recipient_ids"`
		Type         string                 `json:"type"`
		Subject      string                 `json:"subject"`
		Text         string                 `json:"text"`
		Info         map[string]interface{} `json:"info"`
	}

	// Decodificar el cuerpo de la petición
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validar campos requeridos
	if req.TenantID == uuid.Nil || len(req.RecipientIDs) == 0 || req.Text == "" {
		respondWithError(w, http.StatusBadRequest, "tenant_id, recipient_ids and text are required")
		return
	}

	notifications, err := h.notificationService.CreateNotifications(r.Context(), usecase.CreateNotificationsRequest{
		TenantID:     req.TenantID,
		RequestID:    req.RequestID,
		RecipientIDs: req.RecipientIDs,
		Type:         parseNotificationType(req.Type),
		Subject:      req.Subject,
		Text:         req.Text,
		Info:         req.Info,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.ID.String())
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"request_id":       notifications[0].RequestID.String(),
		"notification_ids": ids,
		"status":           "success",
	})
}

// WithdrawRequest elimina las notificaciones de una solicitud
func (h *NotificationHandler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid tenant_id")
		return
	}

	affected, err := h.notificationService.WithdrawRequest(r.Context(), tenantID, requestID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"request_id":          requestID.String(),
		"affected_recipients": affected,
		"status":              "success",
	})
}

// ListUnread devuelve las últimas no leídas del usuario autenticado
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	limit := defaultUnreadLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		i, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = i
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		limit = h.maxLimit
	}

	page, err := h.notificationService.ListUnread(r.Context(), identity.TenantID, identity.UserID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []*entity.Notification{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications":      items,
		"total_unread_count": page.TotalUnread,
		"limit":              limit,
	})
}

// GetNotification obtiene una notificación del usuario autenticado
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	notificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	notification, err := h.notificationService.GetNotification(r.Context(), identity.TenantID, notificationID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	// Las notificaciones de otros usuarios no existen para el llamante
	if notification.RecipientID != identity.UserID {
		respondWithError(w, http.StatusNotFound, "Notification not found")
		return
	}

	respondWithJSON(w, http.StatusOK, notification)
}

// MarkAsRead marca una notificación del usuario autenticado como leída
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	notificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.notificationService.MarkAsRead(r.Context(), identity.TenantID, identity.UserID, notificationID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

func parseNotificationType(value string) entity.NotificationType {
	switch entity.NotificationType(value) {
	case entity.NotificationTypeAlarm:
		return entity.NotificationTypeAlarm
	case entity.NotificationTypeSystem:
		return entity.NotificationTypeSystem
	default:
		return entity.NotificationTypeGeneral
	}
}

// respondWithServiceError traduce los errores del servicio a códigos HTTP
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotificationNotFound), errors.Is(err, repository.ErrRequestNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrInvalidNotificationData), errors.Is(err, usecase.ErrInvalidLimit):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
