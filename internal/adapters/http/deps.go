package http

import (
	"context"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
)

// Pinger is a dependency that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker reports whether a long-lived connection is up.
type ConnChecker interface {
	IsConnected() bool
}

// Dependencies holds everything the HTTP handlers need. Unset fields are
// reported as "not configured" by the readiness probe.
type Dependencies struct {
	Facilities *usecases.FacilityService
	Sessions   *SessionHub
	DB         Pinger
	Cache      Pinger
	NATS       ConnChecker
	Version    string
}
