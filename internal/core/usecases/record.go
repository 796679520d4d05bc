package usecases

import (
	"context"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// Record is the capability set the discovery pipeline needs from a record shape.
// Stores and health facilities share one pipeline through it.
type Record interface {
	RecordID() string
	Location() domain.Coordinate
	CategoryTag() string
	DisplayName() string
}

// RecordSource fetches the full record set for a filter.
type RecordSource[R Record] interface {
	Fetch(ctx context.Context, filter domain.FilterState) ([]R, error)
}
