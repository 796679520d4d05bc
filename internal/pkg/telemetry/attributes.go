package telemetry

// Span attribute keys shared by instrumented adapters.
const (
	AttrCategory   = "facility.category"
	AttrSearchText = "facility.search"
	AttrItemCount  = "facility.count"
	AttrFacilityID = "facility.id"
	AttrAttempt    = "http.attempt"
	AttrFeedURL    = "import.feed_url"
	AttrRunID      = "import.run_id"
)
