package workflows_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/workflows"
)

// ---- Fakes ----

type stubFeed struct {
	records []domain.FacilityRecord
	err     error
}

func (f *stubFeed) FetchFeed(context.Context, string) ([]domain.FacilityRecord, error) {
	return f.records, f.err
}

type memRepo struct {
	mu      sync.Mutex
	upserts int
	stored  map[string]domain.FacilityRecord
}

func (r *memRepo) UpsertBatch(_ context.Context, records []domain.FacilityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.stored == nil {
		r.stored = make(map[string]domain.FacilityRecord)
	}
	for _, rec := range records {
		r.stored[rec.ID] = rec
	}
	return nil
}
func (r *memRepo) GetByID(context.Context, string) (*domain.FacilityRecord, error) { return nil, nil }
func (r *memRepo) List(context.Context, domain.FilterState) ([]domain.FacilityRecord, error) {
	return nil, nil
}
func (r *memRepo) Count(context.Context) (int, error) { return len(r.stored), nil }

type counterCache struct {
	mu      sync.Mutex
	version int64
}

func (c *counterCache) Get(context.Context, string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []byte(strconv.FormatInt(c.version, 10)), nil
}
func (c *counterCache) Set(context.Context, string, []byte, int) error { return nil }
func (c *counterCache) Delete(context.Context, string) error           { return nil }
func (c *counterCache) Incr(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	return c.version, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	err    error
	events []*domain.FacilitiesChanged
}

func (p *stubPublisher) PublishFacilitiesChanged(_ context.Context, e *domain.FacilitiesChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

// ---- Helpers ----

func feedRecords() []domain.FacilityRecord {
	return []domain.FacilityRecord{
		{ID: "p1", Name: "Farmacia Central", Category: domain.CategoryPharmacy},
		{ID: "c1", Name: "Clínica Alemana", Category: domain.CategoryClinic},
		{ID: "p2", Name: "Farmacia Chávez", Category: domain.CategoryPharmacy},
	}
}

type fixture struct {
	repo      *memRepo
	cache     *counterCache
	publisher *stubPublisher
}

func runImport(t *testing.T, feed *stubFeed, publishErr error) (fixture, *workflows.ImportResult, error) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	f := fixture{repo: &memRepo{}, cache: &counterCache{}, publisher: &stubPublisher{err: publishErr}}
	env.RegisterWorkflow(workflows.FacilityImportWorkflow)
	env.RegisterActivity(&workflows.ImportActivities{
		Feed:       feed,
		Facilities: usecases.NewFacilityService(f.repo, f.cache, f.publisher, 0),
	})

	env.ExecuteWorkflow(workflows.FacilityImportWorkflow, workflows.ImportInput{RunID: "run-42", FeedURL: "http://feed.test/lapaz.json"})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		return f, nil, err
	}

	var result workflows.ImportResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return f, &result, nil
}

// ---- Tests ----

func TestFacilityImportWorkflow_Success(t *testing.T) {
	f, result, err := runImport(t, &stubFeed{records: feedRecords()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Count != 3 || !result.Published {
		t.Errorf("unexpected result %+v", result)
	}
	if len(result.Categories) != 2 || result.Categories[0] != domain.CategoryClinic {
		t.Errorf("expected sorted categories, got %v", result.Categories)
	}
	if len(f.repo.stored) != 3 {
		t.Errorf("expected 3 stored records, got %d", len(f.repo.stored))
	}
	if f.cache.version != 1 {
		t.Errorf("expected cache version bump, got %d", f.cache.version)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].RunID != "run-42" {
		t.Errorf("expected one event for run-42, got %+v", f.publisher.events)
	}
}

func TestFacilityImportWorkflow_EmptyFeed(t *testing.T) {
	f, result, err := runImport(t, &stubFeed{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 0 || result.Published {
		t.Errorf("unexpected result %+v", result)
	}
	if f.repo.upserts != 0 || f.cache.version != 0 || len(f.publisher.events) != 0 {
		t.Error("empty feed must not touch the store")
	}
}

func TestFacilityImportWorkflow_InvalidRecordFailsFast(t *testing.T) {
	records := append(feedRecords(), domain.FacilityRecord{Name: "Sin ID"})
	f, _, err := runImport(t, &stubFeed{records: records}, nil)
	if err == nil {
		t.Fatal("expected workflow error")
	}
	if f.repo.upserts != 0 {
		t.Errorf("expected no upserts, got %d", f.repo.upserts)
	}
	if f.cache.version != 0 {
		t.Error("cache must not be invalidated after a failed upsert")
	}
}

func TestFacilityImportWorkflow_FeedError(t *testing.T) {
	_, _, err := runImport(t, &stubFeed{err: errors.New("feed unreachable")}, nil)
	if err == nil {
		t.Fatal("expected workflow error")
	}
}

func TestFacilityImportWorkflow_PublishFailureKeepsImport(t *testing.T) {
	f, result, err := runImport(t, &stubFeed{records: feedRecords()}, errors.New("nats down"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Published {
		t.Error("expected Published=false")
	}
	if len(f.repo.stored) != 3 {
		t.Errorf("records should be stored, got %d", len(f.repo.stored))
	}
}
