package usecases_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
)

// --- Mock RecordSource ---

type mockSource struct {
	mu      sync.Mutex
	calls   []domain.FilterState
	fetchFn func(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error)
}

func (m *mockSource) Fetch(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, filter)
	fn := m.fetchFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, filter)
	}
	return nil, nil
}

func (m *mockSource) Calls() []domain.FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FilterState(nil), m.calls...)
}

// --- Mock MapSurface ---

type animation struct {
	region     domain.Region
	durationMs int
}

type mockSurface struct {
	mu        sync.Mutex
	regions   []domain.Region
	animated  []animation
	fits      [][]domain.Coordinate
	paddings  []domain.EdgePadding
	animateFn func(region domain.Region, durationMs int) error
}

func (m *mockSurface) SetRegion(region domain.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = append(m.regions, region)
	return nil
}

func (m *mockSurface) AnimateToRegion(region domain.Region, durationMs int) error {
	m.mu.Lock()
	fn := m.animateFn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(region, durationMs); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.animated = append(m.animated, animation{region: region, durationMs: durationMs})
	return nil
}

func (m *mockSurface) FitToCoordinates(coords []domain.Coordinate, padding domain.EdgePadding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fits = append(m.fits, coords)
	m.paddings = append(m.paddings, padding)
	return nil
}

func (m *mockSurface) Animations() []animation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]animation(nil), m.animated...)
}

func (m *mockSurface) Fits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fits)
}

// --- Mock LocationProvider ---

type mockLocation struct {
	mu              sync.Mutex
	permissionCalls int
	positionCalls   int
	permissionFn    func(ctx context.Context, call int) (bool, error)
	positionFn      func(ctx context.Context, call int, opts domain.PositionOptions) (domain.Coordinate, error)
}

func (m *mockLocation) RequestPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.permissionCalls++
	call := m.permissionCalls
	fn := m.permissionFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return true, nil
}

func (m *mockLocation) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	m.mu.Lock()
	m.positionCalls++
	call := m.positionCalls
	fn := m.positionFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call, opts)
	}
	return domain.Coordinate{Latitude: -16.5, Longitude: -68.15}, nil
}

func (m *mockLocation) counts() (permission, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissionCalls, m.positionCalls
}

// --- Mock FacilityRepository ---

type mockFacilityRepo struct {
	upsertBatchFn func(ctx context.Context, records []domain.FacilityRecord) error
	getByIDFn     func(ctx context.Context, id string) (*domain.FacilityRecord, error)
	listFn        func(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error)
	countFn       func(ctx context.Context) (int, error)
}

func (m *mockFacilityRepo) UpsertBatch(ctx context.Context, records []domain.FacilityRecord) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, records)
	}
	return nil
}

func (m *mockFacilityRepo) GetByID(ctx context.Context, id string) (*domain.FacilityRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockFacilityRepo) List(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockFacilityRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []*domain.FacilitiesChanged
}

func (m *mockPublisher) PublishFacilitiesChanged(_ context.Context, event *domain.FacilitiesChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// --- Helpers ---

func facility(id, name, category string, lat, lon float64) domain.FacilityRecord {
	return domain.FacilityRecord{
		ID:         id,
		Name:       name,
		Category:   category,
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		Active:     true,
	}
}

// laPazFixture has three pharmacies (two near the center of La Paz) and two clinics.
func laPazFixture() []domain.FacilityRecord {
	return []domain.FacilityRecord{
		facility("p1", "Farmacia Central", domain.CategoryPharmacy, -16.5000, -68.1500),
		facility("p2", "Farmacia Chávez", domain.CategoryPharmacy, -16.5040, -68.1480),
		facility("p3", "Farmacia El Alto", domain.CategoryPharmacy, -16.5200, -68.1900),
		facility("c1", "Clínica Alemana", domain.CategoryClinic, -16.5010, -68.1510),
		facility("c2", "Clínica del Sur", domain.CategoryClinic, -16.5400, -68.0800),
	}
}

func laPazRegion() domain.Region {
	return domain.Region{
		Center:        domain.Coordinate{Latitude: -16.5, Longitude: -68.15},
		LatitudeSpan:  0.01,
		LongitudeSpan: 0.01,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ids(records []domain.FacilityRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
