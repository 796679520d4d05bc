package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/usecases"
)

// ImportInput is the input for the facility import workflow.
type ImportInput struct {
	RunID   string
	FeedURL string
}

// ImportResult summarizes a finished import.
type ImportResult struct {
	RunID      string
	Count      int
	Categories []string
	Published  bool
}

// FacilityImportWorkflow downloads a feed, stores it, retires cached reads and
// tells the gateways. Once the records are stored a failed announcement does
// not fail the import; sessions pick the change up on their next fetch.
func FacilityImportWorkflow(ctx workflow.Context, input ImportInput) (*ImportResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting facility import", "runID", input.RunID, "feed", input.FeedURL)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	var records []domain.FacilityRecord
	if err := workflow.ExecuteActivity(ctx, "FetchFeed", input.FeedURL).Get(ctx, &records); err != nil {
		return nil, err
	}

	result := &ImportResult{
		RunID:      input.RunID,
		Count:      len(records),
		Categories: usecases.Categories(records),
	}
	if len(records) == 0 {
		logger.Warn("Feed is empty, nothing to import")
		return result, nil
	}

	if err := workflow.ExecuteActivity(ctx, "UpsertFacilities", records).Get(ctx, nil); err != nil {
		return nil, err
	}
	if err := workflow.ExecuteActivity(ctx, "InvalidateCache").Get(ctx, nil); err != nil {
		return nil, err
	}

	var event domain.FacilitiesChanged
	if err := workflow.ExecuteActivity(ctx, "PublishChange", input.RunID, records).Get(ctx, &event); err != nil {
		logger.Warn("Change announcement failed", "error", err)
		return result, nil
	}
	result.Published = true

	logger.Info("Facility import finished", "count", result.Count, "categories", result.Categories)
	return result, nil
}
