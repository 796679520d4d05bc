package usecases

import (
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/geospatial"
)

// DefaultViewportBuffer is added to every side of the region, in degrees.
const DefaultViewportBuffer = 0.001

// VisibleRecords returns the records inside the buffered region. Without a region
// or before the map surface is ready nothing is visible.
func VisibleRecords[R Record](records []R, region *domain.Region, mapReady bool, buffer float64) []R {
	if region == nil || !mapReady {
		return []R{}
	}

	bounds := geospatial.RegionBounds(*region, buffer)
	out := make([]R, 0, len(records))
	for _, r := range records {
		if bounds.Contains(r.Location()) {
			out = append(out, r)
		}
	}
	return out
}
