package usecase

import (
	"context"
	"fmt"

	"notification-sync-service/internal/domain/entity"
	"notification-sync-service/internal/domain/repository"
	"notification-sync-service/pkg/metrics"

	"github.com/google/uuid"
)

// SnapshotFetcher obtiene del almacén el estado autoritativo de no leídas
type SnapshotFetcher interface {
	// FetchUnreadPage devuelve las últimas no leídas (más recientes primero) y el total
	FetchUnreadPage(ctx context.Context, tenantID, entityID uuid.UUID, limit int) (*entity.NotificationPage, error)
	// FetchUnreadCount devuelve el número de no leídas
	FetchUnreadCount(ctx context.Context, tenantID, entityID uuid.UUID) (int, error)
}

// RepositorySnapshotFetcher implementa SnapshotFetcher sobre el repositorio de notificaciones
type RepositorySnapshotFetcher struct {
	repo repository.NotificationRepository
}

// NewRepositorySnapshotFetcher crea un fetcher sobre el repositorio
func NewRepositorySnapshotFetcher(repo repository.NotificationRepository) *RepositorySnapshotFetcher {
	return &RepositorySnapshotFetcher{repo: repo}
}

// FetchUnreadPage implementa SnapshotFetcher
func (f *RepositorySnapshotFetcher) FetchUnreadPage(ctx context.Context, tenantID, entityID uuid.UUID, limit int) (*entity.NotificationPage, error) {
	done := metrics.TrackSnapshotFetch(string(KindUnreadNotifications))

	page, err := f.repo.FindLatestUnread(ctx, tenantID, entityID, limit)
	done(metrics.Result(err))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return page, nil
}

// FetchUnreadCount implementa SnapshotFetcher
func (f *RepositorySnapshotFetcher) FetchUnreadCount(ctx context.Context, tenantID, entityID uuid.UUID) (int, error) {
	done := metrics.TrackSnapshotFetch(string(KindUnreadCount))

	count, err := f.repo.CountUnread(ctx, tenantID, entityID)
	done(metrics.Result(err))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}
