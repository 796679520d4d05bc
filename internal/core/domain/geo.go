package domain

import "fmt"

// Coordinate represents a geographic coordinate (WGS 84).
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Region is the visible map viewport: a center plus latitude/longitude spans in degrees.
type Region struct {
	Center        Coordinate `json:"center"`
	LatitudeSpan  float64    `json:"latitude_span"`
	LongitudeSpan float64    `json:"longitude_span"`
}

// Validate rejects regions whose spans are not strictly positive.
func (r Region) Validate() error {
	if r.LatitudeSpan <= 0 || r.LongitudeSpan <= 0 {
		return fmt.Errorf("%w: spans must be positive, got %g/%g", ErrInvalidRegion, r.LatitudeSpan, r.LongitudeSpan)
	}
	return nil
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether c lies inside the box, edges included.
func (b Bounds) Contains(c Coordinate) bool {
	return c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat &&
		c.Longitude >= b.MinLon && c.Longitude <= b.MaxLon
}

// EdgePadding is the pixel inset applied when framing coordinates on the map.
type EdgePadding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}
