package ports

import (
	"context"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// FacilityRepository persists facility records.
type FacilityRepository interface {
	UpsertBatch(ctx context.Context, records []domain.FacilityRecord) error
	GetByID(ctx context.Context, id string) (*domain.FacilityRecord, error)
	// List returns records matching the filter. An empty Category or SearchText is not applied.
	List(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error)
	Count(ctx context.Context) (int, error)
}
