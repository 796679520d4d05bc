package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

// DefaultAcquireTimeout bounds a single permission or position request.
const DefaultAcquireTimeout = 15 * time.Second

// ErrSuperseded is returned by an acquisition whose result was discarded
// because a newer Retry started while it was in flight.
var ErrSuperseded = errors.New("superseded by a newer acquisition")

var errPermissionTimeout = errors.New("no answer to permission request")

// LocationState is a point-in-time view of a LocationTracker.
type LocationState struct {
	Status   domain.LocationStatus `json:"status"`
	Location *domain.UserLocation  `json:"location,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// TrackerOption configures a LocationTracker.
type TrackerOption func(*LocationTracker)

// WithCamera centers the camera once on the first acquired position.
func WithCamera(c *Camera) TrackerOption {
	return func(t *LocationTracker) { t.camera = c }
}

// WithOnAcquired registers a callback run after every successful acquisition.
func WithOnAcquired(fn func(domain.UserLocation)) TrackerOption {
	return func(t *LocationTracker) { t.onAcquired = fn }
}

// WithOnStatus registers a callback run after every state transition.
// Callbacks must not call back into the tracker.
func WithOnStatus(fn func(LocationState)) TrackerOption {
	return func(t *LocationTracker) { t.onStatus = fn }
}

// WithAcquireTimeout overrides DefaultAcquireTimeout.
func WithAcquireTimeout(d time.Duration) TrackerOption {
	return func(t *LocationTracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithPositionOptions overrides the hints passed to the provider.
func WithPositionOptions(o domain.PositionOptions) TrackerOption {
	return func(t *LocationTracker) { t.opts = o }
}

// LocationTracker obtains a single position fix, handling permission refusal
// and explicit retries.
type LocationTracker struct {
	provider   ports.LocationProvider
	camera     *Camera
	opts       domain.PositionOptions
	timeout    time.Duration
	onAcquired func(domain.UserLocation)
	onStatus   func(LocationState)
	log        *slog.Logger
	now        func() time.Time

	// emitMu orders state changes with their callbacks across runs.
	emitMu sync.Mutex

	mu       sync.Mutex
	status   domain.LocationStatus
	location *domain.UserLocation
	err      error
	gen      uint64
}

// NewLocationTracker creates an idle tracker.
func NewLocationTracker(provider ports.LocationProvider, log *slog.Logger, opts ...TrackerOption) *LocationTracker {
	if log == nil {
		log = slog.Default()
	}
	t := &LocationTracker{
		provider: provider,
		opts:     domain.DefaultPositionOptions(),
		timeout:  DefaultAcquireTimeout,
		log:      log,
		now:      time.Now,
		status:   domain.LocationIdle,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Acquire runs the permission and position sequence. A refused or failed
// permission request is asked once more before the tracker settles in
// PermissionDenied. An unanswered one settles in AcquisitionFailed.
func (t *LocationTracker) Acquire(ctx context.Context) error {
	gen := t.begin()

	granted, err := t.requestPermission(ctx)
	switch {
	case errors.Is(err, errPermissionTimeout):
		return t.settle(gen, domain.LocationAcquisitionFailed, nil,
			fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err))
	case err != nil:
		return t.settle(gen, domain.LocationPermissionDenied, nil,
			fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err))
	case !granted:
		return t.settle(gen, domain.LocationPermissionDenied, nil, domain.ErrPermissionDenied)
	}

	if !t.transition(gen, domain.LocationAcquiring) {
		return ErrSuperseded
	}

	fixCtx, cancel := context.WithTimeout(ctx, t.timeout)
	coord, err := t.provider.CurrentPosition(fixCtx, t.opts)
	cancel()
	if err != nil {
		return t.settle(gen, domain.LocationAcquisitionFailed, nil,
			fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err))
	}

	loc := domain.UserLocation{Coordinate: coord, AcquiredAt: t.now()}
	return t.settle(gen, domain.LocationAcquired, &loc, nil)
}

// Retry restarts acquisition from any state. Results of an earlier run that is
// still in flight are ignored.
func (t *LocationTracker) Retry(ctx context.Context) error {
	return t.Acquire(ctx)
}

// State returns the current status, location and error.
func (t *LocationTracker) State() LocationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Location returns the last acquired position, or nil.
func (t *LocationTracker) Location() *domain.UserLocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == nil {
		return nil
	}
	loc := *t.location
	return &loc
}

// Err returns the error of the last terminal failure, or nil.
func (t *LocationTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// requestPermission asks at most twice, each ask bounded by t.timeout.
func (t *LocationTracker) requestPermission(ctx context.Context) (bool, error) {
	var lastErr error
	for ask := 0; ask < 2; ask++ {
		if ask > 0 {
			t.log.Debug("location permission refused, asking again", "error", lastErr)
		}

		askCtx, cancel := context.WithTimeout(ctx, t.timeout)
		granted, err := t.provider.RequestPermission(askCtx)
		expired := errors.Is(askCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil && granted {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if expired {
			return false, errPermissionTimeout
		}
		lastErr = err
	}
	return false, lastErr
}

func (t *LocationTracker) begin() uint64 {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.status = domain.LocationRequestingPermission
	t.err = nil
	state := t.stateLocked()
	t.mu.Unlock()

	t.emit(state)
	return gen
}

func (t *LocationTracker) transition(gen uint64, status domain.LocationStatus) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return false
	}
	t.status = status
	state := t.stateLocked()
	t.mu.Unlock()

	t.emit(state)
	return true
}

// settle records a final outcome for run gen and returns cause, or
// ErrSuperseded when a newer run has started. A newer run cannot begin until
// the callbacks for this outcome have returned.
func (t *LocationTracker) settle(gen uint64, status domain.LocationStatus, loc *domain.UserLocation, cause error) error {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		t.log.Debug("discarding superseded location result", "status", status)
		return ErrSuperseded
	}
	t.status = status
	t.err = cause
	if loc != nil {
		t.location = loc
	}
	state := t.stateLocked()
	t.mu.Unlock()

	metrics.LocationAcquisitions.WithLabelValues(string(status)).Inc()
	if cause != nil {
		t.log.Info("location acquisition ended", "status", status, "error", cause)
	} else {
		t.log.Debug("location acquired", "lat", loc.Coordinate.Latitude, "lon", loc.Coordinate.Longitude)
	}
	t.emit(state)

	if loc != nil {
		if t.onAcquired != nil {
			t.onAcquired(*loc)
		}
		if t.camera != nil {
			t.camera.CenterOn(loc.Coordinate)
		}
	}
	return cause
}

func (t *LocationTracker) stateLocked() LocationState {
	s := LocationState{Status: t.status}
	if t.location != nil {
		loc := *t.location
		s.Location = &loc
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	return s
}

func (t *LocationTracker) emit(s LocationState) {
	if t.onStatus != nil {
		t.onStatus(s)
	}
}
