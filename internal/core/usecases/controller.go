package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/geospatial"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

// DefaultFetchTimeout bounds a single remote fetch issued by a Controller.
const DefaultFetchTimeout = 15 * time.Second

// Snapshot is an immutable view of a Controller after a change.
// Slices and maps are shared between snapshots and must not be modified.
type Snapshot[R Record] struct {
	Version     uint64               `json:"version"`
	Filter      domain.FilterState   `json:"filter"`
	Region      *domain.Region       `json:"region,omitempty"`
	MapReady    bool                 `json:"map_ready"`
	Total       int                  `json:"total"`
	Filtered    []R                  `json:"filtered"`
	Visible     []R                  `json:"visible"`
	DistancesKm map[string]float64   `json:"distances_km,omitempty"`
	Location    *domain.UserLocation `json:"location,omitempty"`
	Loading     bool                 `json:"loading"`
	FetchError  string               `json:"fetch_error,omitempty"`
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	camera       *Camera
	distances    *geospatial.DistanceCache
	debounce     time.Duration
	buffer       float64
	fetchTimeout time.Duration
}

// WithMapCamera routes fit-to-markers and initial centering through c.
func WithMapCamera(c *Camera) ControllerOption {
	return func(o *controllerOptions) { o.camera = c }
}

// WithDistanceCache replaces the controller's own distance cache.
func WithDistanceCache(dc *geospatial.DistanceCache) ControllerOption {
	return func(o *controllerOptions) { o.distances = dc }
}

// WithSearchDebounce sets the quiet period for text-driven fetches.
func WithSearchDebounce(d time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.debounce = d }
}

// WithViewportBuffer sets the culling margin in degrees.
func WithViewportBuffer(b float64) ControllerOption {
	return func(o *controllerOptions) { o.buffer = b }
}

// WithFetchTimeout bounds each remote fetch.
func WithFetchTimeout(d time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.fetchTimeout = d }
}

// Controller owns the record set, filter, viewport region and user location of
// one discovery screen, and derives the list (filtered) and map (visible) views.
type Controller[R Record] struct {
	source       RecordSource[R]
	camera       *Camera
	distances    *geospatial.DistanceCache
	debouncer    *Debouncer
	buffer       float64
	fetchTimeout time.Duration
	log          *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	records     []R
	filter      domain.FilterState
	region      *domain.Region
	location    *domain.UserLocation
	filtered    []R
	visible     []R
	distancesKm map[string]float64
	fetchErr    error
	lastFetch   uint64
	loading     bool
	version     uint64

	notifyMu sync.Mutex
	listener func(Snapshot[R])
	notified uint64
}

// NewController creates a Controller that fetches from source.
// Call Refresh for the initial load.
func NewController[R Record](source RecordSource[R], log *slog.Logger, opts ...ControllerOption) *Controller[R] {
	o := controllerOptions{
		debounce:     DefaultSearchDebounce,
		buffer:       DefaultViewportBuffer,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.Default()
	}
	if o.camera == nil {
		o.camera = NewCamera(nil, log)
	}
	if o.distances == nil {
		o.distances = geospatial.NewDistanceCache(geospatial.WithCounters(
			metrics.DistanceCacheHits, metrics.DistanceCacheMisses, metrics.DistanceCacheClears))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller[R]{
		source:       source,
		camera:       o.camera,
		distances:    o.distances,
		debouncer:    NewDebouncer(o.debounce),
		buffer:       o.buffer,
		fetchTimeout: o.fetchTimeout,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		filtered:     []R{},
		visible:      []R{},
	}
}

// OnChange registers the listener receiving a Snapshot after every change.
// Snapshots are delivered in version order; older ones are skipped. The
// listener must not call back into the controller's mutating methods.
func (c *Controller[R]) OnChange(fn func(Snapshot[R])) {
	c.notifyMu.Lock()
	c.listener = fn
	c.notifyMu.Unlock()
}

// Refresh re-fetches the record set for the current filter.
func (c *Controller[R]) Refresh() {
	c.mu.Lock()
	id, ok := c.issueFetchLocked()
	filter := c.filter
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !ok {
		return
	}
	c.notify(snap)
	c.runFetch(id, filter)
}

// SetCategory applies a category tag ("" clears it) and re-fetches immediately.
func (c *Controller[R]) SetCategory(category string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.filter.Category = category
	c.recomputeLocked()
	id, _ := c.issueFetchLocked()
	filter := c.filter
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	c.runFetch(id, filter)
}

// SetSearchText applies the text locally at once. The remote fetch for it is
// debounced; only the last text in a burst is fetched.
func (c *Controller[R]) SetSearchText(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.filter.SearchText = text
	c.recomputeLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	c.debouncer.Trigger(func() { c.fetchForText(text) })
}

// OnRegionChange records the viewport the map settled on.
func (c *Controller[R]) OnRegionChange(region domain.Region) error {
	if err := region.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.region = &region
	c.recomputeLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// OnMapReady opens the camera gate. If the user location is already known the
// camera centers on it.
func (c *Controller[R]) OnMapReady() {
	c.camera.MarkReady()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.recomputeLocked()
	snap := c.snapshotLocked()
	var loc *domain.UserLocation
	if c.location != nil {
		l := *c.location
		loc = &l
	}
	c.mu.Unlock()

	c.notify(snap)
	if loc != nil {
		c.camera.CenterOn(loc.Coordinate)
	}
}

// OnLocationAcquired records the user position used for distance annotation.
func (c *Controller[R]) OnLocationAcquired(loc domain.UserLocation) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.location = &loc
	c.recomputeLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// FitToMarkers frames all filtered records. It does nothing with fewer than two
// records or before the map is ready.
func (c *Controller[R]) FitToMarkers() bool {
	c.mu.Lock()
	coords := make([]domain.Coordinate, 0, len(c.filtered))
	for _, r := range c.filtered {
		coords = append(coords, r.Location())
	}
	c.mu.Unlock()

	if len(coords) < 2 {
		return false
	}
	return c.camera.FitToCoordinates(coords, FitPadding)
}

// Snapshot returns the current state.
func (c *Controller[R]) Snapshot() Snapshot[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Filtered returns the records passing the current filter.
func (c *Controller[R]) Filtered() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filtered
}

// Visible returns the filtered records inside the current viewport.
func (c *Controller[R]) Visible() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Record looks up a record of the current set by ID.
func (c *Controller[R]) Record(id string) (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// Close cancels pending work and waits for in-flight fetches to return.
func (c *Controller[R]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.debouncer.Stop()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller[R]) fetchForText(text string) {
	c.mu.Lock()
	id, ok := c.issueFetchLocked()
	filter := domain.FilterState{Category: c.filter.Category, SearchText: text}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !ok {
		return
	}
	c.notify(snap)
	c.runFetch(id, filter)
}

// issueFetchLocked hands out the next request id. It registers the fetch with
// the wait group so Close can wait for it.
func (c *Controller[R]) issueFetchLocked() (uint64, bool) {
	if c.closed {
		return 0, false
	}
	c.lastFetch++
	c.loading = true
	c.version++
	c.wg.Add(1)
	return c.lastFetch, true
}

func (c *Controller[R]) runFetch(id uint64, filter domain.FilterState) {
	if id == 0 {
		return
	}
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
		defer cancel()

		start := time.Now()
		records, err := c.source.Fetch(ctx, filter)
		metrics.FacilityFetchDuration.Observe(time.Since(start).Seconds())

		c.applyFetch(id, filter, records, err)
	}()
}

func (c *Controller[R]) applyFetch(id uint64, filter domain.FilterState, records []R, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if id != c.lastFetch {
		c.mu.Unlock()
		metrics.FacilityFetches.WithLabelValues("stale").Inc()
		c.log.Debug("discarding stale fetch", "request_id", id, "category", filter.Category, "search", filter.SearchText)
		return
	}

	c.loading = false
	if err != nil {
		c.fetchErr = fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		c.version++
		snap := c.snapshotLocked()
		c.mu.Unlock()

		metrics.FacilityFetches.WithLabelValues("error").Inc()
		c.log.Warn("facility fetch failed", "category", filter.Category, "search", filter.SearchText, "error", err)
		c.notify(snap)
		return
	}

	c.fetchErr = nil
	c.records = records
	c.recomputeLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.FacilityFetches.WithLabelValues("ok").Inc()
	c.notify(snap)
}

func (c *Controller[R]) recomputeLocked() {
	c.filtered = FilterRecords(c.records, c.filter.Category, c.filter.SearchText)
	c.visible = VisibleRecords(c.filtered, c.region, c.camera.Ready(), c.buffer)

	c.distancesKm = nil
	if c.location != nil {
		c.distancesKm = make(map[string]float64, len(c.filtered))
		for _, r := range c.filtered {
			c.distancesKm[r.RecordID()] = c.distances.DistanceKm(c.location.Coordinate, r.Location())
		}
	}
	c.version++
}

func (c *Controller[R]) snapshotLocked() Snapshot[R] {
	s := Snapshot[R]{
		Version:     c.version,
		Filter:      c.filter,
		MapReady:    c.camera.Ready(),
		Total:       len(c.records),
		Filtered:    c.filtered,
		Visible:     c.visible,
		DistancesKm: c.distancesKm,
		Loading:     c.loading,
	}
	if c.region != nil {
		r := *c.region
		s.Region = &r
	}
	if c.location != nil {
		l := *c.location
		s.Location = &l
	}
	if c.fetchErr != nil {
		s.FetchError = c.fetchErr.Error()
	}
	return s
}

func (c *Controller[R]) notify(s Snapshot[R]) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.listener == nil || s.Version <= c.notified {
		return
	}
	c.notified = s.Version
	c.listener(s)
}
