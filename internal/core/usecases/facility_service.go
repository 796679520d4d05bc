package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/ports"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/metrics"
)

// facilityVersionKey is bumped on every import so older cached lists fall out of use.
const facilityVersionKey = "facilities:version"

// FacilityService serves the record store behind the remote fetch endpoint.
type FacilityService struct {
	facilities ports.FacilityRepository
	cache      ports.CacheService
	publisher  ports.EventPublisher
	ttl        int
}

// NewFacilityService creates a new FacilityService. cache and publisher may be nil.
func NewFacilityService(facilities ports.FacilityRepository, cache ports.CacheService, publisher ports.EventPublisher, ttl time.Duration) *FacilityService {
	secs := int(ttl.Seconds())
	if secs <= 0 {
		secs = 300
	}
	return &FacilityService{facilities: facilities, cache: cache, publisher: publisher, ttl: secs}
}

// List returns facilities matching the filter, ordered by name.
func (s *FacilityService) List(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	cacheKey := fmt.Sprintf("facilities:v%d:list:%s:%s", s.version(ctx), filter.Category, strings.ToLower(filter.SearchText))
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var records []domain.FacilityRecord
			if err := json.Unmarshal(data, &records); err == nil {
				metrics.CacheHits.WithLabelValues("facilities_list").Inc()
				return records, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("facilities_list").Inc()
	}

	records, err := s.facilities.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	if records == nil {
		records = []domain.FacilityRecord{}
	}

	if s.cache != nil {
		if data, err := json.Marshal(records); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}

	return records, nil
}

// GetByID returns a single facility or domain.ErrNotFound.
func (s *FacilityService) GetByID(ctx context.Context, id string) (*domain.FacilityRecord, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}

	cacheKey := fmt.Sprintf("facilities:v%d:id:%s", s.version(ctx), id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var record domain.FacilityRecord
			if err := json.Unmarshal(data, &record); err == nil {
				metrics.CacheHits.WithLabelValues("facility_id").Inc()
				return &record, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("facility_id").Inc()
	}

	record, err := s.facilities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		if data, err := json.Marshal(record); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl*2)
		}
	}

	return record, nil
}

// Count returns the number of stored facilities.
func (s *FacilityService) Count(ctx context.Context) (int, error) {
	return s.facilities.Count(ctx)
}

// Import upserts records, invalidates cached lists and announces the change.
func (s *FacilityService) Import(ctx context.Context, runID string, records []domain.FacilityRecord) (*domain.FacilitiesChanged, error) {
	if err := s.Store(ctx, records); err != nil {
		return nil, err
	}
	if err := s.Invalidate(ctx); err != nil {
		return nil, err
	}
	return s.Announce(ctx, runID, records)
}

// Store validates and upserts records. Re-running it with the same records is
// harmless.
func (s *FacilityService) Store(ctx context.Context, records []domain.FacilityRecord) error {
	for i := range records {
		if records[i].ID == "" {
			return fmt.Errorf("import record %d: %w", i, domain.ErrMissingID)
		}
	}
	if err := s.facilities.UpsertBatch(ctx, records); err != nil {
		return fmt.Errorf("upsert facilities: %w", err)
	}
	return nil
}

// Announce publishes a FacilitiesChanged event for an import run. The event is
// returned even when publishing fails.
func (s *FacilityService) Announce(ctx context.Context, runID string, records []domain.FacilityRecord) (*domain.FacilitiesChanged, error) {
	event := &domain.FacilitiesChanged{
		RunID:      runID,
		Categories: Categories(records),
		Count:      len(records),
		At:         time.Now().UTC(),
	}
	if s.publisher != nil {
		if err := s.publisher.PublishFacilitiesChanged(ctx, event); err != nil {
			return event, fmt.Errorf("publish facilities changed: %w", err)
		}
	}
	return event, nil
}

// Invalidate moves cached reads to a fresh key space.
func (s *FacilityService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Incr(ctx, facilityVersionKey); err != nil {
		return fmt.Errorf("bump facility cache version: %w", err)
	}
	return nil
}

func (s *FacilityService) version(ctx context.Context) int64 {
	if s.cache == nil {
		return 0
	}
	data, err := s.cache.Get(ctx, facilityVersionKey)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			metrics.CacheMisses.WithLabelValues("facilities_version").Inc()
		}
		return 0
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Categories returns the distinct, sorted category tags of records.
func Categories(records []domain.FacilityRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.Category != "" {
			seen[r.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
