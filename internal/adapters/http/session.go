package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/geospatial"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

// Client actions.
const (
	ActionMapReady      = "map_ready"
	ActionRegionChange  = "region_change"
	ActionSetCategory   = "set_category"
	ActionSetSearch     = "set_search"
	ActionFitToMarkers  = "fit_to_markers"
	ActionRetryLocation = "retry_location"
	ActionPermission    = "permission"
	ActionPosition      = "position"
	ActionSelect        = "select"
	ActionRefresh       = "refresh"
)

// Server message types.
const (
	TypeSnapshot          = "snapshot"
	TypeLocation          = "location"
	TypeCamera            = "camera"
	TypePermissionRequest = "permission_request"
	TypePositionRequest   = "position_request"
	TypeNavigate          = "navigate"
	TypeError             = "error"
)

// ClientMessage is a message received from a discovery client.
type ClientMessage struct {
	Action    string         `json:"action"`
	Region    *domain.Region `json:"region,omitempty"`
	Category  string         `json:"category,omitempty"`
	Text      string         `json:"text,omitempty"`
	Granted   bool           `json:"granted,omitempty"`
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
	Error     string         `json:"error,omitempty"`
	ID        string         `json:"id,omitempty"`
}

// ServerMessage is a message pushed to a discovery client.
type ServerMessage struct {
	Type            string                                   `json:"type"`
	Snapshot        *usecases.Snapshot[domain.FacilityRecord] `json:"snapshot,omitempty"`
	Location        *usecases.LocationState                  `json:"location,omitempty"`
	Command         string                                   `json:"command,omitempty"`
	Region          *domain.Region                           `json:"region,omitempty"`
	DurationMs      int                                      `json:"duration_ms,omitempty"`
	Coordinates     []domain.Coordinate                      `json:"coordinates,omitempty"`
	Padding         *domain.EdgePadding                      `json:"padding,omitempty"`
	Accuracy        string                                   `json:"accuracy,omitempty"`
	IntervalMs      int64                                    `json:"interval_ms,omitempty"`
	DistanceFilterM float64                                  `json:"distance_filter_m,omitempty"`
	ID              string                                   `json:"id,omitempty"`
	Message         string                                   `json:"message,omitempty"`
}

// SessionConfig builds the per-connection discovery pipeline. Zero values keep
// the core defaults.
type SessionConfig struct {
	Source usecases.RecordSource[domain.FacilityRecord]
	// Location picks the position source for a client address. Nil means the
	// client's own device answers permission and position requests.
	Location            func(remoteIP string) ports.LocationProvider
	SearchDebounce      time.Duration
	ViewportBuffer      float64
	DistanceCacheSize   int
	DistanceCachePolicy geospatial.EvictionPolicy
	LocationTimeout     time.Duration
	Logger              *slog.Logger
}

type clientReply struct {
	granted bool
	coord   domain.Coordinate
	err     error
}

// Session is one connected discovery client. It is the map surface and, for
// the device source, the location provider of its own pipeline.
type Session struct {
	ID string

	send       func(ServerMessage) error
	log        *slog.Logger
	camera     *usecases.Camera
	controller *usecases.Controller[domain.FacilityRecord]
	tracker    *usecases.LocationTracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	waiters map[string]chan clientReply
}

// NewSession wires a controller, tracker and camera for one client. send must
// be safe for concurrent use.
func NewSession(id string, send func(ServerMessage) error, remoteIP string, cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:      id,
		send:    send,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		waiters: make(map[string]chan clientReply),
	}

	s.camera = usecases.NewCamera(s, log)

	distances := geospatial.NewDistanceCache(
		geospatial.WithMaxEntries(cfg.DistanceCacheSize),
		geospatial.WithEvictionPolicy(cfg.DistanceCachePolicy),
		geospatial.WithCounters(metrics.DistanceCacheHits, metrics.DistanceCacheMisses, metrics.DistanceCacheClears),
	)
	opts := []usecases.ControllerOption{
		usecases.WithMapCamera(s.camera),
		usecases.WithDistanceCache(distances),
	}
	if cfg.SearchDebounce > 0 {
		opts = append(opts, usecases.WithSearchDebounce(cfg.SearchDebounce))
	}
	if cfg.ViewportBuffer > 0 {
		opts = append(opts, usecases.WithViewportBuffer(cfg.ViewportBuffer))
	}
	s.controller = usecases.NewController[domain.FacilityRecord](cfg.Source, log, opts...)
	s.controller.OnChange(func(snap usecases.Snapshot[domain.FacilityRecord]) {
		s.push(ServerMessage{Type: TypeSnapshot, Snapshot: &snap})
	})

	var provider ports.LocationProvider = s
	if cfg.Location != nil {
		provider = cfg.Location(remoteIP)
	}
	s.tracker = usecases.NewLocationTracker(provider, log,
		usecases.WithCamera(s.camera),
		usecases.WithOnAcquired(s.controller.OnLocationAcquired),
		usecases.WithOnStatus(func(st usecases.LocationState) {
			s.push(ServerMessage{Type: TypeLocation, Location: &st})
		}),
		usecases.WithAcquireTimeout(cfg.LocationTimeout),
	)

	return s
}

// Start loads the initial record set and begins location acquisition.
func (s *Session) Start() {
	s.controller.Refresh()
	s.acquire(s.tracker.Acquire)
}

// Refresh re-fetches the session's records for its current filter.
func (s *Session) Refresh() {
	s.controller.Refresh()
}

// Snapshot returns the session's current discovery state.
func (s *Session) Snapshot() usecases.Snapshot[domain.FacilityRecord] {
	return s.controller.Snapshot()
}

// LocationState returns the session's location status.
func (s *Session) LocationState() usecases.LocationState {
	return s.tracker.State()
}

// HandleMessage dispatches one raw client message.
func (s *Session) HandleMessage(data []byte) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		s.pushError("invalid JSON")
		return
	}

	switch m.Action {
	case ActionMapReady:
		s.controller.OnMapReady()
	case ActionRegionChange:
		if m.Region == nil {
			s.pushError("region_change requires a region")
			return
		}
		if err := s.controller.OnRegionChange(*m.Region); err != nil {
			s.pushError(err.Error())
		}
	case ActionSetCategory:
		s.controller.SetCategory(m.Category)
	case ActionSetSearch:
		s.controller.SetSearchText(m.Text)
	case ActionFitToMarkers:
		s.controller.FitToMarkers()
	case ActionRetryLocation:
		s.acquire(s.tracker.Retry)
	case ActionPermission:
		s.resolve(ActionPermission, clientReply{granted: m.Granted})
	case ActionPosition:
		s.resolve(ActionPosition, positionReply(m))
	case ActionSelect:
		if _, ok := s.controller.Record(m.ID); !ok {
			s.pushError(fmt.Sprintf("unknown facility %q", m.ID))
			return
		}
		s.push(ServerMessage{Type: TypeNavigate, ID: m.ID})
	case ActionRefresh:
		s.controller.Refresh()
	default:
		s.pushError("unknown action: " + m.Action)
	}
}

// Close stops the pipeline and abandons outstanding client requests.
func (s *Session) Close() {
	s.cancel()
	s.controller.Close()
	s.wg.Wait()
}

// SetRegion implements ports.MapSurface.
func (s *Session) SetRegion(region domain.Region) error {
	return s.send(ServerMessage{Type: TypeCamera, Command: "set_region", Region: &region})
}

// AnimateToRegion implements ports.MapSurface.
func (s *Session) AnimateToRegion(region domain.Region, durationMs int) error {
	return s.send(ServerMessage{Type: TypeCamera, Command: "animate_to_region", Region: &region, DurationMs: durationMs})
}

// FitToCoordinates implements ports.MapSurface.
func (s *Session) FitToCoordinates(coords []domain.Coordinate, padding domain.EdgePadding) error {
	return s.send(ServerMessage{Type: TypeCamera, Command: "fit_to_coordinates", Coordinates: coords, Padding: &padding})
}

// RequestPermission implements ports.LocationProvider by asking the client.
func (s *Session) RequestPermission(ctx context.Context) (bool, error) {
	reply, err := s.await(ctx, ActionPermission, ServerMessage{Type: TypePermissionRequest})
	if err != nil {
		return false, err
	}
	return reply.granted, nil
}

// CurrentPosition implements ports.LocationProvider by asking the client.
func (s *Session) CurrentPosition(ctx context.Context, opts domain.PositionOptions) (domain.Coordinate, error) {
	reply, err := s.await(ctx, ActionPosition, ServerMessage{
		Type:            TypePositionRequest,
		Accuracy:        opts.Accuracy,
		IntervalMs:      opts.Interval.Milliseconds(),
		DistanceFilterM: opts.DistanceFilterMeters,
	})
	if err != nil {
		return domain.Coordinate{}, err
	}
	return reply.coord, reply.err
}

func (s *Session) acquire(fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil && !errors.Is(err, usecases.ErrSuperseded) {
			s.log.Debug("location acquisition ended without a fix", "error", err)
		}
	}()
}

// await sends msg and waits for the client's answer of the given kind. A newer
// request of the same kind replaces the waiter.
func (s *Session) await(ctx context.Context, kind string, msg ServerMessage) (clientReply, error) {
	ch := make(chan clientReply, 1)
	s.mu.Lock()
	s.waiters[kind] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.waiters[kind] == ch {
			delete(s.waiters, kind)
		}
		s.mu.Unlock()
	}()

	if err := s.send(msg); err != nil {
		return clientReply{}, err
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return clientReply{}, ctx.Err()
	case <-s.ctx.Done():
		return clientReply{}, s.ctx.Err()
	}
}

func (s *Session) resolve(kind string, r clientReply) {
	s.mu.Lock()
	ch := s.waiters[kind]
	delete(s.waiters, kind)
	s.mu.Unlock()

	if ch == nil {
		s.log.Debug("unsolicited client reply", "action", kind)
		return
	}
	ch <- r
}

func positionReply(m ClientMessage) clientReply {
	if m.Error != "" {
		return clientReply{err: errors.New(m.Error)}
	}
	if m.Latitude == nil || m.Longitude == nil {
		return clientReply{err: errors.New("position without coordinates")}
	}
	return clientReply{coord: domain.Coordinate{Latitude: *m.Latitude, Longitude: *m.Longitude}}
}

func (s *Session) push(m ServerMessage) {
	if err := s.send(m); err != nil {
		s.log.Debug("push to client failed", "type", m.Type, "error", err)
	}
}

func (s *Session) pushError(msg string) {
	s.push(ServerMessage{Type: TypeError, Message: msg})
}
