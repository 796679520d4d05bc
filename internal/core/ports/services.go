package ports

import (
	"context"
	"errors"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishFacilitiesChanged(ctx context.Context, event *domain.FacilitiesChanged) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeFacilitiesChanged(ctx context.Context, handler func(ctx context.Context, event *domain.FacilitiesChanged) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// FacilitySource is the remote record fetch consumed by the discovery core.
type FacilitySource interface {
	Fetch(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error)
}

// LocationProvider is the device location API.
type LocationProvider interface {
	// RequestPermission asks for foreground location access.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition requests a single position fix.
	CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error)
}

// MapSurface receives camera commands for the map presentation.
type MapSurface interface {
	SetRegion(region domain.Region) error
	AnimateToRegion(region domain.Region, durationMs int) error
	FitToCoordinates(coords []domain.Coordinate, padding domain.EdgePadding) error
}
