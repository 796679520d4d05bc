package geospatial

import (
	"math"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineKm(lat1, lon1, lat2, lon2) * 1000
}

// HaversineKm calculates the great-circle distance in kilometers between two coordinates.
func HaversineKm(a, b domain.Coordinate) float64 {
	return haversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// RegionBounds returns the box covered by a region grown by buffer degrees on every side.
// The spans extend from the center in both directions.
func RegionBounds(r domain.Region, buffer float64) domain.Bounds {
	return domain.Bounds{
		MinLat: r.Center.Latitude - r.LatitudeSpan - buffer,
		MaxLat: r.Center.Latitude + r.LatitudeSpan + buffer,
		MinLon: r.Center.Longitude - r.LongitudeSpan - buffer,
		MaxLon: r.Center.Longitude + r.LongitudeSpan + buffer,
	}
}

// InRegion reports whether c falls inside the buffered region.
func InRegion(c domain.Coordinate, r domain.Region, buffer float64) bool {
	return RegionBounds(r, buffer).Contains(c)
}

// BoundsOf returns the smallest box containing every coordinate. ok is false for an empty slice.
func BoundsOf(coords []domain.Coordinate) (b domain.Bounds, ok bool) {
	if len(coords) == 0 {
		return domain.Bounds{}, false
	}
	b = domain.Bounds{
		MinLat: coords[0].Latitude, MaxLat: coords[0].Latitude,
		MinLon: coords[0].Longitude, MaxLon: coords[0].Longitude,
	}
	for _, c := range coords[1:] {
		b.MinLat = math.Min(b.MinLat, c.Latitude)
		b.MaxLat = math.Max(b.MaxLat, c.Latitude)
		b.MinLon = math.Min(b.MinLon, c.Longitude)
		b.MaxLon = math.Max(b.MaxLon, c.Longitude)
	}
	return b, true
}

// RegionAround returns a region centered on c with equal spans.
func RegionAround(c domain.Coordinate, span float64) domain.Region {
	return domain.Region{Center: c, LatitudeSpan: span, LongitudeSpan: span}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
