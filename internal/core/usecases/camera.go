package usecases

import (
	"log/slog"
	"sync"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/geospatial"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

const (
	// CenterSpan is the latitude/longitude span used when centering on the user.
	CenterSpan = 0.05
	// CenterAnimationMs is the duration of the initial centering animation.
	CenterAnimationMs = 1000
)

// FitPadding is the inset used by fit-to-markers.
var FitPadding = domain.EdgePadding{Top: 50, Right: 50, Bottom: 50, Left: 50}

// Camera gates commands to a map surface on its readiness signal.
// Commands issued before MarkReady are dropped, never queued.
type Camera struct {
	surface ports.MapSurface
	log     *slog.Logger

	mu       sync.Mutex
	ready    bool
	centered bool
}

// NewCamera creates a Camera. A nil surface accepts readiness but delivers nothing.
func NewCamera(surface ports.MapSurface, log *slog.Logger) *Camera {
	if log == nil {
		log = slog.Default()
	}
	return &Camera{surface: surface, log: log}
}

// MarkReady records the surface's ready signal.
func (c *Camera) MarkReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// Ready reports whether the surface has signalled readiness.
func (c *Camera) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Centered reports whether the one-time centering animation was delivered.
func (c *Camera) Centered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.centered
}

// SetRegion moves the camera without animation.
func (c *Camera) SetRegion(region domain.Region) bool {
	return c.send("set_region", func(s ports.MapSurface) error {
		return s.SetRegion(region)
	})
}

// AnimateToRegion moves the camera over durationMs.
func (c *Camera) AnimateToRegion(region domain.Region, durationMs int) bool {
	return c.send("animate_to_region", func(s ports.MapSurface) error {
		return s.AnimateToRegion(region, durationMs)
	})
}

// FitToCoordinates frames coords with the given padding.
func (c *Camera) FitToCoordinates(coords []domain.Coordinate, padding domain.EdgePadding) bool {
	return c.send("fit_to_coordinates", func(s ports.MapSurface) error {
		return s.FitToCoordinates(coords, padding)
	})
}

// CenterOn animates to coord the first time it is called on a ready surface.
// Later calls are no-ops once a centering has been delivered.
func (c *Camera) CenterOn(coord domain.Coordinate) bool {
	c.mu.Lock()
	if c.centered {
		c.mu.Unlock()
		return false
	}
	if !c.ready || c.surface == nil {
		c.mu.Unlock()
		c.drop("center_on")
		return false
	}
	c.centered = true
	c.mu.Unlock()

	region := geospatial.RegionAround(coord, CenterSpan)
	if err := c.surface.AnimateToRegion(region, CenterAnimationMs); err != nil {
		c.log.Warn("camera centering failed", "error", err)
		c.mu.Lock()
		c.centered = false
		c.mu.Unlock()
		return false
	}
	return true
}

func (c *Camera) send(command string, fn func(ports.MapSurface) error) bool {
	c.mu.Lock()
	ready := c.ready && c.surface != nil
	c.mu.Unlock()

	if !ready {
		c.drop(command)
		return false
	}
	if err := fn(c.surface); err != nil {
		c.log.Warn("camera command failed", "command", command, "error", err)
		return false
	}
	return true
}

func (c *Camera) drop(command string) {
	metrics.CameraCommandsDropped.WithLabelValues(command).Inc()
	c.log.Debug("camera command dropped", "command", command, "error", domain.ErrMapNotReady)
}
