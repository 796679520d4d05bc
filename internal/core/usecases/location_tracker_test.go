package usecases_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/logging"
)

func TestLocationTracker_Acquired(t *testing.T) {
	provider := &mockLocation{}
	surface := &mockSurface{}
	cam := usecases.NewCamera(surface, logging.Discard())
	cam.MarkReady()

	var mu sync.Mutex
	var statuses []domain.LocationStatus
	var acquired []domain.UserLocation

	tracker := usecases.NewLocationTracker(provider, logging.Discard(),
		usecases.WithCamera(cam),
		usecases.WithOnStatus(func(s usecases.LocationState) {
			mu.Lock()
			statuses = append(statuses, s.Status)
			mu.Unlock()
		}),
		usecases.WithOnAcquired(func(l domain.UserLocation) {
			mu.Lock()
			acquired = append(acquired, l)
			mu.Unlock()
		}),
	)

	if got := tracker.State().Status; got != domain.LocationIdle {
		t.Fatalf("expected idle before acquiring, got %s", got)
	}
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.LocationStatus{
		domain.LocationRequestingPermission,
		domain.LocationAcquiring,
		domain.LocationAcquired,
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("transitions = %v, want %v", statuses, want)
	}
	if len(acquired) != 1 {
		t.Fatalf("expected 1 acquisition callback, got %d", len(acquired))
	}
	loc := tracker.Location()
	if loc == nil || loc.Coordinate.Latitude != -16.5 {
		t.Errorf("unexpected location %+v", loc)
	}
	if len(surface.Animations()) != 1 {
		t.Errorf("expected camera to center once, got %d animations", len(surface.Animations()))
	}
}

func TestLocationTracker_PassesPositionOptions(t *testing.T) {
	var got domain.PositionOptions
	provider := &mockLocation{
		positionFn: func(_ context.Context, _ int, opts domain.PositionOptions) (domain.Coordinate, error) {
			got = opts
			return domain.Coordinate{}, nil
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.DefaultPositionOptions() {
		t.Errorf("expected default hints, got %+v", got)
	}
	if got.Accuracy != domain.AccuracyBalanced || got.Interval != 10*time.Second || got.DistanceFilterMeters != 50 {
		t.Errorf("unexpected hints %+v", got)
	}
}

func TestLocationTracker_RePromptsOnce(t *testing.T) {
	provider := &mockLocation{
		permissionFn: func(_ context.Context, call int) (bool, error) { return call > 1, nil },
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	perm, pos := provider.counts()
	if perm != 2 || pos != 1 {
		t.Errorf("expected 2 permission and 1 position calls, got %d and %d", perm, pos)
	}
	if tracker.State().Status != domain.LocationAcquired {
		t.Errorf("expected acquired, got %s", tracker.State().Status)
	}
}

func TestLocationTracker_PermissionDenied(t *testing.T) {
	provider := &mockLocation{
		permissionFn: func(context.Context, int) (bool, error) { return false, nil },
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	err := tracker.Acquire(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	perm, pos := provider.counts()
	if perm != 2 {
		t.Errorf("expected exactly one re-prompt, got %d permission calls", perm)
	}
	if pos != 0 {
		t.Errorf("expected no position request, got %d", pos)
	}
	state := tracker.State()
	if state.Status != domain.LocationPermissionDenied || state.Error == "" {
		t.Errorf("unexpected state %+v", state)
	}
	if !errors.Is(tracker.Err(), domain.ErrPermissionDenied) {
		t.Errorf("expected Err to report ErrPermissionDenied, got %v", tracker.Err())
	}
}

func TestLocationTracker_PermissionErrorAsksAgain(t *testing.T) {
	provider := &mockLocation{
		permissionFn: func(_ context.Context, call int) (bool, error) {
			if call == 1 {
				return false, errors.New("prompt dismissed")
			}
			return true, nil
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perm, _ := provider.counts(); perm != 2 {
		t.Errorf("expected 2 permission calls, got %d", perm)
	}
	if tracker.State().Status != domain.LocationAcquired {
		t.Errorf("expected acquired, got %s", tracker.State().Status)
	}
}

func TestLocationTracker_PermissionErrorTwice(t *testing.T) {
	provider := &mockLocation{
		permissionFn: func(context.Context, int) (bool, error) { return false, errors.New("prompt dismissed") },
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	err := tracker.Acquire(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if perm, _ := provider.counts(); perm != 2 {
		t.Errorf("expected 2 permission calls, got %d", perm)
	}
}

func TestLocationTracker_PermissionTimeout(t *testing.T) {
	provider := &mockLocation{
		permissionFn: func(ctx context.Context, _ int) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard(),
		usecases.WithAcquireTimeout(20*time.Millisecond))

	start := time.Now()
	err := tracker.Acquire(context.Background())
	if !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("permission timeout was not applied")
	}

	perm, pos := provider.counts()
	if perm != 1 || pos != 0 {
		t.Errorf("expected 1 permission and 0 position calls, got %d and %d", perm, pos)
	}
	state := tracker.State()
	if state.Status != domain.LocationAcquisitionFailed || state.Error == "" {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestLocationTracker_AcquisitionFailed(t *testing.T) {
	provider := &mockLocation{
		positionFn: func(context.Context, int, domain.PositionOptions) (domain.Coordinate, error) {
			return domain.Coordinate{}, errors.New("gps off")
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	err := tracker.Acquire(context.Background())
	if !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	if tracker.State().Status != domain.LocationAcquisitionFailed {
		t.Errorf("expected acquisition_failed, got %s", tracker.State().Status)
	}
	if tracker.Location() != nil {
		t.Error("expected no location after failure")
	}
}

func TestLocationTracker_Timeout(t *testing.T) {
	provider := &mockLocation{
		positionFn: func(ctx context.Context, _ int, _ domain.PositionOptions) (domain.Coordinate, error) {
			<-ctx.Done()
			return domain.Coordinate{}, ctx.Err()
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard(),
		usecases.WithAcquireTimeout(20*time.Millisecond))

	start := time.Now()
	err := tracker.Acquire(context.Background())
	if !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not applied")
	}
}

func TestLocationTracker_RetryAfterFailure(t *testing.T) {
	provider := &mockLocation{
		positionFn: func(_ context.Context, call int, _ domain.PositionOptions) (domain.Coordinate, error) {
			if call == 1 {
				return domain.Coordinate{}, errors.New("no fix")
			}
			return domain.Coordinate{Latitude: 1, Longitude: 2}, nil
		},
	}

	tracker := usecases.NewLocationTracker(provider, logging.Discard())
	_ = tracker.Acquire(context.Background())
	if err := tracker.Retry(context.Background()); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}

	state := tracker.State()
	if state.Status != domain.LocationAcquired || state.Error != "" {
		t.Errorf("unexpected state after retry %+v", state)
	}
}

func TestLocationTracker_RetrySupersedesInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &mockLocation{
		positionFn: func(_ context.Context, call int, _ domain.PositionOptions) (domain.Coordinate, error) {
			if call == 1 {
				close(started)
				<-release
				return domain.Coordinate{Latitude: 10, Longitude: 10}, nil
			}
			return domain.Coordinate{Latitude: 20, Longitude: 20}, nil
		},
	}

	var acquired []domain.UserLocation
	var mu sync.Mutex
	tracker := usecases.NewLocationTracker(provider, logging.Discard(),
		usecases.WithOnAcquired(func(l domain.UserLocation) {
			mu.Lock()
			acquired = append(acquired, l)
			mu.Unlock()
		}))

	firstErr := make(chan error, 1)
	go func() { firstErr <- tracker.Acquire(context.Background()) }()
	<-started

	if err := tracker.Retry(context.Background()); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	close(release)

	if err := <-firstErr; !errors.Is(err, usecases.ErrSuperseded) {
		t.Errorf("expected first run to be superseded, got %v", err)
	}
	loc := tracker.Location()
	if loc == nil || loc.Coordinate.Latitude != 20 {
		t.Errorf("expected location from the retry, got %+v", loc)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(acquired) != 1 {
		t.Errorf("expected only the retry to report acquisition, got %d", len(acquired))
	}
}

func TestLocationTracker_RetryWaitsForCallbacks(t *testing.T) {
	provider := &mockLocation{
		positionFn: func(_ context.Context, call int, _ domain.PositionOptions) (domain.Coordinate, error) {
			return domain.Coordinate{Latitude: float64(call), Longitude: float64(call)}, nil
		},
	}

	inCallback := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		statuses []domain.LocationStatus
		acquired []float64
		blocked  bool
	)
	tracker := usecases.NewLocationTracker(provider, logging.Discard(),
		usecases.WithOnStatus(func(s usecases.LocationState) {
			mu.Lock()
			statuses = append(statuses, s.Status)
			block := s.Status == domain.LocationAcquired && !blocked
			if block {
				blocked = true
			}
			mu.Unlock()
			if block {
				close(inCallback)
				<-release
			}
		}),
		usecases.WithOnAcquired(func(l domain.UserLocation) {
			mu.Lock()
			acquired = append(acquired, l.Coordinate.Latitude)
			mu.Unlock()
		}))

	firstErr := make(chan error, 1)
	go func() { firstErr <- tracker.Acquire(context.Background()) }()
	<-inCallback

	retryErr := make(chan error, 1)
	go func() { retryErr <- tracker.Retry(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	n := len(statuses)
	mu.Unlock()
	if n != 3 {
		t.Errorf("expected the retry to wait for the first run's callbacks, saw %d statuses", n)
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("unexpected first run error: %v", err)
	}
	if err := <-retryErr; err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}

	want := []domain.LocationStatus{
		domain.LocationRequestingPermission, domain.LocationAcquiring, domain.LocationAcquired,
		domain.LocationRequestingPermission, domain.LocationAcquiring, domain.LocationAcquired,
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}
	if !reflect.DeepEqual(acquired, []float64{1, 2}) {
		t.Errorf("acquired = %v, want [1 2]", acquired)
	}
}

func TestLocationTracker_CameraNotReady(t *testing.T) {
	surface := &mockSurface{}
	cam := usecases.NewCamera(surface, logging.Discard())

	tracker := usecases.NewLocationTracker(&mockLocation{}, logging.Discard(), usecases.WithCamera(cam))
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(surface.Animations()) != 0 || cam.Centered() {
		t.Error("expected centering to be dropped before the map is ready")
	}
}
