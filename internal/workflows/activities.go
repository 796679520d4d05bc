package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
)

// FeedFetcher downloads a complete facility feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, feedURL string) ([]domain.FacilityRecord, error)
}

// ImportActivities holds the activity implementations for the import workflow.
type ImportActivities struct {
	Feed       FeedFetcher
	Facilities *usecases.FacilityService
}

// FetchFeed downloads the records to import.
func (a *ImportActivities) FetchFeed(ctx context.Context, feedURL string) ([]domain.FacilityRecord, error) {
	ctx, span := telemetry.Tracer("workflows").Start(ctx, "import.FetchFeed")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrFeedURL, feedURL))

	records, err := a.Feed.FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	activity.GetLogger(ctx).Info("feed downloaded", "url", feedURL, "records", len(records))
	return records, nil
}

// UpsertFacilities stores the records. A batch with invalid records fails
// without retries.
func (a *ImportActivities) UpsertFacilities(ctx context.Context, records []domain.FacilityRecord) error {
	ctx, span := telemetry.Tracer("workflows").Start(ctx, "import.UpsertFacilities")
	defer span.End()
	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(records)))

	if err := a.Facilities.Store(ctx, records); err != nil {
		if errors.Is(err, domain.ErrMissingID) {
			return temporal.NewNonRetryableApplicationError(err.Error(), "invalid_feed", err)
		}
		return err
	}
	return nil
}

// InvalidateCache retires every cached facility read.
func (a *ImportActivities) InvalidateCache(ctx context.Context) error {
	return a.Facilities.Invalidate(ctx)
}

// PublishChange announces the import to discovery gateways.
func (a *ImportActivities) PublishChange(ctx context.Context, runID string, records []domain.FacilityRecord) (*domain.FacilitiesChanged, error) {
	ctx, span := telemetry.Tracer("workflows").Start(ctx, "import.PublishChange")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrRunID, runID))

	return a.Facilities.Announce(ctx, runID, records)
}
