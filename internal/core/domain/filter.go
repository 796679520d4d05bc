package domain

// FilterState is the user-controlled filter. An empty Category means no category filter.
type FilterState struct {
	Category   string `json:"category,omitempty"`
	SearchText string `json:"search_text"`
}
