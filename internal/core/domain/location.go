package domain

import "time"

// LocationStatus is the state of device-location acquisition.
type LocationStatus string

const (
	LocationIdle                 LocationStatus = "idle"
	LocationRequestingPermission LocationStatus = "requesting_permission"
	LocationPermissionDenied     LocationStatus = "permission_denied"
	LocationAcquiring            LocationStatus = "acquiring"
	LocationAcquired             LocationStatus = "acquired"
	LocationAcquisitionFailed    LocationStatus = "acquisition_failed"
)

// Terminal reports whether the status only changes on an explicit retry.
func (s LocationStatus) Terminal() bool {
	return s == LocationPermissionDenied || s == LocationAcquisitionFailed
}

// UserLocation is the last successfully acquired device position.
type UserLocation struct {
	Coordinate Coordinate `json:"coordinate"`
	AcquiredAt time.Time  `json:"acquired_at"`
}

// Accuracy hints understood by location providers.
const (
	AccuracyLow      = "low"
	AccuracyBalanced = "balanced"
	AccuracyHigh     = "high"
)

// PositionOptions are advisory hints passed to the platform location API.
type PositionOptions struct {
	Accuracy             string        `json:"accuracy"`
	Interval             time.Duration `json:"interval"`
	DistanceFilterMeters float64       `json:"distance_filter_m"`
}

// DefaultPositionOptions returns the balanced single-fix hints.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		Accuracy:             AccuracyBalanced,
		Interval:             10 * time.Second,
		DistanceFilterMeters: 50,
	}
}
